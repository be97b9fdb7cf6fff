package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chatgate/internal/cache"
	"chatgate/internal/domain"
)

// fakeChannel records sends and blocks in Startup until the context ends.
type fakeChannel struct {
	mu       sync.Mutex
	sent     []sentReply
	failFor  map[string]bool // receivers whose sends fail
	started  chan struct{}
	startErr error
}

type sentReply struct {
	reply *domain.Reply
	route domain.Route
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{failFor: make(map[string]bool), started: make(chan struct{})}
}

func (f *fakeChannel) Name() string { return "fake" }

func (f *fakeChannel) Startup(ctx context.Context) error {
	close(f.started)
	<-ctx.Done()
	return f.startErr
}

func (f *fakeChannel) Send(reply *domain.Reply, route domain.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[route.Receiver] {
		return errors.New("simulated send failure")
	}
	f.sent = append(f.sent, sentReply{reply: reply, route: route})
	return nil
}

func (f *fakeChannel) SearchContacts(name string) []domain.Target { return nil }
func (f *fakeChannel) SearchGroups(name string) []domain.Target   { return nil }

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakePipeline echoes content, failing when content says so.
type fakePipeline struct {
	mu      sync.Mutex
	handled map[string]int // message id -> times handled
	delay   time.Duration
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{handled: make(map[string]int)}
}

func (p *fakePipeline) Handle(ctx context.Context, c *domain.Context) (*domain.Reply, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	p.handled[c.Message.ID]++
	p.mu.Unlock()
	if c.Content == "boom" {
		return nil, errors.New("pipeline exploded")
	}
	if c.Content == "silent" {
		return nil, nil
	}
	return domain.TextReply("echo: " + c.Content), nil
}

func (p *fakePipeline) handledTotal() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, v := range p.handled {
		n += v
	}
	return n
}

func (p *fakePipeline) handledTimes(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handled[id]
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestEngine(t *testing.T, workers, queueSize int, pl domain.Pipeline, ch domain.Channel) (*Engine, context.CancelFunc) {
	t.Helper()
	chain := NewChain(testLogger(),
		Duplicate(cache.NewExpiring(time.Minute)),
		SelfEcho(),
		Capability(CapabilityToggles{SpeechRecognition: true, GroupSpeechRecognition: true}),
	)
	eng := NewEngine(EngineConfig{
		Workers:   workers,
		QueueSize: queueSize,
		Grace:     2 * time.Second,
		Pipeline:  pl,
		Chain:     chain,
		Composer:  NewComposer(nil, testLogger()),
		Logger:    testLogger(),
	})
	eng.BindChannel(ch)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = eng.Startup(ctx) }()
	return eng, cancel
}

func TestEngine_BurstNoLossExactlyOnce(t *testing.T) {
	pl := newFakePipeline()
	pl.delay = time.Millisecond
	ch := newFakeChannel()
	eng, cancel := newTestEngine(t, 2, 4, pl, ch) // queue far smaller than burst
	defer cancel()
	defer eng.Shutdown()

	const burst = 100
	var wg sync.WaitGroup
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			msg := textMsg(fmt.Sprintf("burst-%d", n))
			msg.SenderID = fmt.Sprintf("user-%d", n%7)
			eng.HandleInbound(msg)
		}(i)
	}
	wg.Wait() // back-pressure: HandleInbound returns only once enqueued

	waitFor(t, func() bool { return pl.handledTotal() == burst }, "burst to drain")

	for i := 0; i < burst; i++ {
		id := fmt.Sprintf("burst-%d", i)
		if n := pl.handledTimes(id); n != 1 {
			t.Errorf("message %s handled %d times, want exactly 1", id, n)
		}
	}
	waitFor(t, func() bool { return ch.sentCount() == burst }, "replies to be sent")
}

func TestEngine_DedupIdempotence(t *testing.T) {
	pl := newFakePipeline()
	ch := newFakeChannel()
	eng, cancel := newTestEngine(t, 2, 8, pl, ch)
	defer cancel()
	defer eng.Shutdown()

	for i := 0; i < 5; i++ {
		eng.HandleInbound(textMsg("same-id"))
	}
	waitFor(t, func() bool { return pl.handledTimes("same-id") >= 1 }, "first delivery")
	time.Sleep(50 * time.Millisecond)
	if n := pl.handledTimes("same-id"); n != 1 {
		t.Errorf("repeated id handled %d times within TTL, want 1", n)
	}
}

func TestEngine_FailureIsolation(t *testing.T) {
	pl := newFakePipeline()
	ch := newFakeChannel()
	eng, cancel := newTestEngine(t, 1, 8, pl, ch) // one worker: failures and successors share it
	defer cancel()
	defer eng.Shutdown()

	bad := textMsg("k")
	bad.Content = "boom"
	eng.HandleInbound(bad)
	for i := 0; i < 5; i++ {
		eng.HandleInbound(textMsg(fmt.Sprintf("after-%d", i)))
	}

	waitFor(t, func() bool { return pl.handledTotal() == 6 }, "all units to be handled")
	if ch.sentCount() != 5 {
		t.Errorf("sent %d replies, want 5 (failed unit produces none)", ch.sentCount())
	}
}

func TestEngine_SendFailureDoesNotStopPool(t *testing.T) {
	pl := newFakePipeline()
	ch := newFakeChannel()
	ch.failFor["user-dead"] = true
	eng, cancel := newTestEngine(t, 1, 8, pl, ch)
	defer cancel()
	defer eng.Shutdown()

	failing := textMsg("f1")
	failing.SenderID = "user-dead"
	eng.HandleInbound(failing)
	eng.HandleInbound(textMsg("f2"))

	waitFor(t, func() bool { return pl.handledTotal() == 2 }, "both units handled")
	waitFor(t, func() bool { return ch.sentCount() == 1 }, "surviving reply sent")
}

func TestEngine_SelfEchoNeverReachesPipeline(t *testing.T) {
	pl := newFakePipeline()
	ch := newFakeChannel()
	eng, cancel := newTestEngine(t, 2, 8, pl, ch)
	defer cancel()
	defer eng.Shutdown()

	own := textMsg("own-1")
	own.IsSelf = true
	eng.HandleInbound(own)

	groupOwn := textMsg("own-2")
	groupOwn.IsSelf = true
	groupOwn.IsGroup = true
	groupOwn.GroupID = "g1"
	eng.HandleInbound(groupOwn)

	waitFor(t, func() bool { return pl.handledTimes("own-2") == 1 }, "group self message")
	if pl.handledTimes("own-1") != 0 {
		t.Error("single-chat self message reached the pipeline")
	}
}

func TestEngine_NilReplySendsNothing(t *testing.T) {
	pl := newFakePipeline()
	ch := newFakeChannel()
	eng, cancel := newTestEngine(t, 1, 8, pl, ch)
	defer cancel()
	defer eng.Shutdown()

	msg := textMsg("q1")
	msg.Content = "silent"
	eng.HandleInbound(msg)

	waitFor(t, func() bool { return pl.handledTotal() == 1 }, "unit handled")
	if ch.sentCount() != 0 {
		t.Errorf("nil reply should not be sent, got %d sends", ch.sentCount())
	}
}

func TestEngine_ProduceAfterShutdownIsNoOp(t *testing.T) {
	pl := newFakePipeline()
	ch := newFakeChannel()
	eng, cancel := newTestEngine(t, 2, 8, pl, ch)
	defer cancel()

	eng.Shutdown()

	eng.Produce(&domain.Context{
		Type:       domain.MessageText,
		Content:    "late",
		SessionKey: "s",
		Message:    textMsg("late-1"),
	})
	time.Sleep(20 * time.Millisecond)
	if pl.handledTotal() != 0 {
		t.Error("context produced after shutdown was handled")
	}
}

func TestEngine_ShutdownDrainsQueued(t *testing.T) {
	pl := newFakePipeline()
	pl.delay = 5 * time.Millisecond
	ch := newFakeChannel()
	eng, cancel := newTestEngine(t, 1, 32, pl, ch)
	defer cancel()

	const queued = 20
	for i := 0; i < queued; i++ {
		eng.HandleInbound(textMsg(fmt.Sprintf("drain-%d", i)))
	}
	eng.Shutdown()

	if got := pl.handledTotal(); got != queued {
		t.Errorf("drained %d of %d queued units", got, queued)
	}
}

func TestEngine_StartupRunsChannelLoop(t *testing.T) {
	pl := newFakePipeline()
	ch := newFakeChannel()
	eng, cancel := newTestEngine(t, 1, 8, pl, ch)
	defer eng.Shutdown()

	select {
	case <-ch.started:
	case <-time.After(time.Second):
		t.Fatal("channel receive loop never entered")
	}
	cancel()
}
