// Package channel contains the platform adapters implementing
// domain.Channel, plus the helpers they share: outbound chunking, streamed
// media fetching, and send throttling.
package channel

import (
	"strings"

	"chatgate/internal/domain"
)

// Handler receives translated inbound messages from an adapter's receive
// loop. The dispatch engine implements it.
type Handler interface {
	HandleInbound(msg *domain.InboundMessage)
}

// splitMessage splits text into chunks of at most maxLen bytes, preferring
// newline boundaries in the second half of a chunk.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
