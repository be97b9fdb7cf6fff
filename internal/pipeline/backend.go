package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"chatgate/internal/domain"
)

const (
	backendDefaultTimeout = 120 * time.Second
	backendRatePerMinute  = 30
	backendBurst          = 5
)

// Backend forwards text contexts to an OpenAI-compatible chat completion
// endpoint and wraps the answer in a text Reply. Calls are throttled with a
// token bucket so a message burst cannot overload the completion service.
type Backend struct {
	baseURL string
	model   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

type BackendConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewBackend(cfg BackendConfig) *Backend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = backendDefaultTimeout
	}
	return &Backend{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(backendRatePerMinute)/60.0, backendBurst),
		logger:  cfg.Logger,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (b *Backend) Handle(ctx context.Context, c *domain.Context) (*domain.Reply, error) {
	if c.Type != domain.MessageText && c.Type != domain.MessageSharing {
		return nil, nil
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model:    b.model,
		Messages: []chatMessage{{Role: "user", Content: c.Content}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion backend: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion backend status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("completion backend error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("completion backend returned no choices")
	}

	b.logger.Debug("completion received",
		"session", c.SessionKey,
		"latency", time.Since(start).Round(time.Millisecond),
	)
	return domain.TextReply(parsed.Choices[0].Message.Content), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
