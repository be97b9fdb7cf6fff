package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatgate/internal/domain"
)

// Terminal implements domain.Channel for interactive terminal chat. It is
// the default channel and doubles as an end-to-end harness for the
// dispatch path without any platform credentials.
type Terminal struct {
	handler Handler
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
}

type TerminalConfig struct {
	Handler Handler
	Logger  *slog.Logger
	In      io.Reader
	Out     io.Writer
}

func NewTerminal(cfg TerminalConfig) *Terminal {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Terminal{
		handler: cfg.Handler,
		logger:  cfg.Logger,
		in:      cfg.In,
		out:     cfg.Out,
	}
}

func (t *Terminal) Name() string { return "terminal" }

// Startup runs the REPL and blocks until ctx is cancelled or input hits EOF.
func (t *Terminal) Startup(ctx context.Context) error {
	_, _ = fmt.Fprintln(t.out, "chatgate terminal. Type a message and press Enter. /quit to exit.")
	_, _ = fmt.Fprint(t.out, "You> ")

	scanner := bufio.NewScanner(t.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err() // nil on EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_, _ = fmt.Fprint(t.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			t.logger.Info("terminal quit requested")
			return nil
		}

		t.handler.HandleInbound(&domain.InboundMessage{
			ID:         uuid.NewString(),
			Type:       domain.MessageText,
			Content:    line,
			CreateTime: time.Now(),
			SenderID:   "terminal-user",
			SenderName: "You",
		})
	}
}

// Send prints the reply back to the terminal.
func (t *Terminal) Send(reply *domain.Reply, route domain.Route) error {
	switch reply.Type {
	case domain.ReplyText, domain.ReplyInfo, domain.ReplyError:
		_, _ = fmt.Fprintln(t.out, "\n--- chatgate ---")
		_, _ = fmt.Fprintln(t.out, reply.Content)
		_, _ = fmt.Fprintln(t.out, "----------------")
	default:
		_, _ = fmt.Fprintf(t.out, "\n[%s reply: %s]\n", reply.Type, reply.Content)
	}
	_, _ = fmt.Fprint(t.out, "You> ")
	return nil
}

func (t *Terminal) SearchContacts(name string) []domain.Target {
	if strings.Contains("terminal-user", strings.ToLower(name)) || strings.Contains("you", strings.ToLower(name)) {
		return []domain.Target{{ID: "terminal-user", Name: "You"}}
	}
	return nil
}

func (t *Terminal) SearchGroups(string) []domain.Target { return nil }
