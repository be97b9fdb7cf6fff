package channel

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatgate/internal/config"
	"chatgate/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSplitMessageShortPassesThrough(t *testing.T) {
	chunks := splitMessage("hello", 100)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("expected single chunk, got %v", chunks)
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	msg := strings.Repeat("a", 60) + "\n" + strings.Repeat("b", 60)
	chunks := splitMessage(msg, 100)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n") {
		t.Errorf("first chunk should end at the newline, got %q", chunks[0][len(chunks[0])-5:])
	}
	if got := chunks[0] + chunks[1]; got != msg {
		t.Error("chunks do not reassemble to the original message")
	}
}

func TestSplitMessageHardCutWithoutNewlines(t *testing.T) {
	msg := strings.Repeat("x", 250)
	chunks := splitMessage(msg, 100)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d exceeds limit: %d bytes", i, len(c))
		}
	}
}

func TestMediaFetcherDownloads(t *testing.T) {
	payload := bytes.Repeat([]byte("img"), 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	f := newMediaFetcher(testLogger())
	data, size, err := f.fetch(srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if size != int64(len(payload)) {
		t.Errorf("size = %d, want %d", size, len(payload))
	}
	got, _ := io.ReadAll(data)
	if !bytes.Equal(got, payload) {
		t.Error("downloaded bytes differ from served payload")
	}
}

func TestMediaFetcherRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := newMediaFetcher(testLogger())
	if _, _, err := f.fetch(srv.URL); err == nil {
		t.Fatal("expected error on 404 response")
	}
}

func TestDirectoryObserveAndSearch(t *testing.T) {
	d := newDirectory()
	d.observe(&domain.InboundMessage{
		SenderID: "u1", SenderName: "Alice Smith",
		IsGroup: true, GroupID: "g1", GroupName: "Team Alpha",
	})
	d.observe(&domain.InboundMessage{
		SenderID: "u2", SenderName: "Bob", IsSelf: true,
	})

	if got := d.searchContacts("alice"); len(got) != 1 || got[0].ID != "u1" {
		t.Errorf("searchContacts(alice) = %v", got)
	}
	if got := d.searchContacts("bob"); len(got) != 0 {
		t.Errorf("self sender should not be indexed, got %v", got)
	}
	if got := d.searchGroups("alpha"); len(got) != 1 || got[0].ID != "g1" {
		t.Errorf("searchGroups(alpha) = %v", got)
	}
	if got := d.searchGroups("beta"); len(got) != 0 {
		t.Errorf("searchGroups(beta) = %v", got)
	}
}

func TestSlackTimestampParsing(t *testing.T) {
	got := slackTimestamp("1724800000.000123")
	if got.Unix() != 1724800000 {
		t.Errorf("parsed %v, want unix 1724800000", got)
	}
	// garbage falls back to now rather than a zero time
	if slackTimestamp("not-a-ts").IsZero() {
		t.Error("invalid timestamp should not produce a zero time")
	}
}

type recordingHandler struct {
	msgs []*domain.InboundMessage
}

func (r *recordingHandler) HandleInbound(msg *domain.InboundMessage) {
	r.msgs = append(r.msgs, msg)
}

func TestTerminalLoopback(t *testing.T) {
	h := &recordingHandler{}
	var out bytes.Buffer
	term := NewTerminal(TerminalConfig{
		Handler: h,
		Logger:  testLogger(),
		In:      strings.NewReader("hello there\n/quit\n"),
		Out:     &out,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- term.Startup(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("startup: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("terminal did not exit on /quit")
	}

	if len(h.msgs) != 1 {
		t.Fatalf("expected 1 inbound message, got %d", len(h.msgs))
	}
	msg := h.msgs[0]
	if msg.Content != "hello there" || msg.Type != domain.MessageText {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.ID == "" {
		t.Error("terminal messages need unique ids for dedup")
	}

	if err := term.Send(domain.TextReply("hi back"), domain.Route{Receiver: "terminal-user"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out.String(), "hi back") {
		t.Error("reply content missing from terminal output")
	}
}

func TestTerminalSearchContacts(t *testing.T) {
	term := NewTerminal(TerminalConfig{Handler: &recordingHandler{}, Logger: testLogger(), In: strings.NewReader(""), Out: io.Discard})
	if got := term.SearchContacts("you"); len(got) != 1 {
		t.Errorf("SearchContacts(you) = %v", got)
	}
	if got := term.SearchContacts("nobody"); len(got) != 0 {
		t.Errorf("SearchContacts(nobody) = %v", got)
	}
}

func TestBuildTerminalAdapter(t *testing.T) {
	cfg := config.Defaults()
	cfg.General.Channel = "terminal"
	ch, err := Build(cfg, &recordingHandler{}, testLogger())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if ch.Name() != "terminal" {
		t.Errorf("Name() = %q", ch.Name())
	}
}

func TestBuildRejectsMissingCredentials(t *testing.T) {
	for _, name := range []string{"telegram", "slack", "discord"} {
		cfg := config.Defaults()
		cfg.General.Channel = name
		if _, err := Build(cfg, &recordingHandler{}, testLogger()); err == nil {
			t.Errorf("%s: expected credential error with blank config", name)
		}
	}
}
