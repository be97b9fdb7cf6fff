// Package pipeline provides handling-pipeline collaborators for the dispatch
// engine: a built-in command responder and an HTTP completion backend. Both
// are safe for concurrent calls from multiple workers.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatgate/internal/domain"
)

// Command is a minimal pipeline answering built-in commands and echoing
// everything else. It stands in when no completion backend is configured.
type Command struct {
	startedAt time.Time
	version   string
	logger    *slog.Logger
}

func NewCommand(version string, logger *slog.Logger) *Command {
	return &Command{startedAt: time.Now(), version: version, logger: logger}
}

func (p *Command) Handle(ctx context.Context, c *domain.Context) (*domain.Reply, error) {
	if c.Type != domain.MessageText && c.Type != domain.MessageSharing {
		// no media handling here; nothing to say
		return nil, nil
	}

	fields := strings.Fields(c.Content)
	if len(fields) == 0 {
		return nil, nil
	}
	switch fields[0] {
	case "/help":
		return &domain.Reply{Type: domain.ReplyInfo, Content: helpText}, nil
	case "/status":
		return &domain.Reply{
			Type: domain.ReplyInfo,
			Content: fmt.Sprintf("chatgate %s, up %s",
				p.version, time.Since(p.startedAt).Round(time.Second)),
		}, nil
	case "/ping":
		return domain.TextReply("pong"), nil
	}

	return domain.TextReply("echo: " + c.Content), nil
}

const helpText = `Commands:
/help   show this message
/status gateway status
/ping   liveness check`
