package channel

import (
	"context"

	"golang.org/x/time/rate"
)

// sendLimiter throttles outbound platform sends so a burst of replies does
// not trip platform flood protection.
type sendLimiter struct {
	l *rate.Limiter
}

func newSendLimiter(perMinute, burst int) *sendLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 5
	}
	return &sendLimiter{l: rate.NewLimiter(rate.Limit(perMinute)/60.0, burst)}
}

// wait blocks until a send slot is available.
func (s *sendLimiter) wait() {
	_ = s.l.Wait(context.Background())
}
