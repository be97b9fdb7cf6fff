package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chatgate/internal/domain"
	"chatgate/internal/metrics"
)

const (
	defaultWorkers   = 8
	defaultQueueSize = 64
	defaultGrace     = 10 * time.Second
)

// Engine is the concurrent dispatch core: a bounded worker pool consuming
// composed Contexts, invoking the handling pipeline and routing replies back
// through the bound channel.
//
// Ordering: no guarantee between sessions, best-effort within a session.
// Workers process concurrently, so two messages from one conversation can
// complete out of order. That is a named limitation, not a bug.
type Engine struct {
	queue    chan *domain.Context
	workers  int
	grace    time.Duration
	pipeline domain.Pipeline
	chain    *Chain
	composer *Composer
	channel  domain.Channel
	logger   *slog.Logger

	runCtx   context.Context
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	inflight atomic.Int64
}

// EngineConfig holds the engine's collaborators and tuning parameters.
type EngineConfig struct {
	Workers   int
	QueueSize int
	Grace     time.Duration // shutdown drain budget
	Pipeline  domain.Pipeline
	Chain     *Chain
	Composer  *Composer
	Logger    *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Grace <= 0 {
		cfg.Grace = defaultGrace
	}
	return &Engine{
		queue:    make(chan *domain.Context, cfg.QueueSize),
		workers:  cfg.Workers,
		grace:    cfg.Grace,
		pipeline: cfg.Pipeline,
		chain:    cfg.Chain,
		composer: cfg.Composer,
		logger:   cfg.Logger,
		runCtx:   context.Background(),
		stop:     make(chan struct{}),
	}
}

// BindChannel attaches the platform adapter the engine sends replies through.
// Must be called before Startup.
func (e *Engine) BindChannel(ch domain.Channel) {
	e.channel = ch
}

// HandleInbound is the adapter-facing entry point: filter, compose, produce.
// Adapters call it from their receive loop for every translated message.
func (e *Engine) HandleInbound(msg *domain.InboundMessage) {
	metrics.MessagesReceived.Inc()

	if !e.chain.Accept(msg) {
		return
	}
	c, ok := e.composer.Compose(msg.Type, msg.Content, msg.IsGroup, msg)
	if !ok {
		e.logger.Debug("nothing to dispatch", "id", msg.ID, "type", msg.Type)
		return
	}
	e.Produce(c)
}

// Produce enqueues one Context. When the queue is full it blocks, pushing
// back-pressure into the platform receive loop rather than dropping work.
// After Shutdown it is a logged no-op, which keeps teardown races harmless
// for callers.
func (e *Engine) Produce(c *domain.Context) {
	select {
	case <-e.stop:
		e.logger.Info("produce after shutdown ignored", "session", c.SessionKey)
		return
	default:
	}

	select {
	case e.queue <- c:
		metrics.MessagesDispatched.Inc()
		metrics.QueueDepth.Set(int64(len(e.queue)))
	case <-e.stop:
		e.logger.Info("produce after shutdown ignored", "session", c.SessionKey)
	}
}

// Startup launches the worker pool, then blocks in the bound channel's
// receive loop until ctx is cancelled or the platform session dies.
func (e *Engine) Startup(ctx context.Context) error {
	// Workers outlive ctx so in-flight units can drain during shutdown.
	e.runCtx = context.WithoutCancel(ctx)

	e.logger.Info("dispatch engine started",
		"workers", e.workers,
		"queue", cap(e.queue),
	)
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}

	return e.channel.Startup(ctx)
}

// Shutdown stops intake, lets in-flight workers finish their current unit,
// and returns once the pool has drained or the grace budget elapses. On
// timeout the still-queued units are logged and abandoned.
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() { close(e.stop) })

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("dispatch engine drained")
	case <-time.After(e.grace):
		abandoned := e.inflight.Load()
		for {
			select {
			case c := <-e.queue:
				abandoned++
				e.logger.Warn("abandoning queued unit", "session", c.SessionKey, "type", c.Type)
				continue
			default:
			}
			break
		}
		e.logger.Warn("dispatch engine shutdown timed out", "abandoned", abandoned)
	}
}

func (e *Engine) worker(id int) {
	defer e.wg.Done()
	for {
		select {
		case c := <-e.queue:
			metrics.QueueDepth.Set(int64(len(e.queue)))
			e.handle(c)
		case <-e.stop:
			// Drain whatever was accepted before shutdown, then exit.
			for {
				select {
				case c := <-e.queue:
					metrics.QueueDepth.Set(int64(len(e.queue)))
					e.handle(c)
				default:
					e.logger.Debug("worker stopped", "worker", id)
					return
				}
			}
		}
	}
}

// handle processes exactly one unit. Every failure is logged and swallowed:
// a bad message must never take down the worker or the pool.
func (e *Engine) handle(c *domain.Context) {
	e.inflight.Add(1)
	defer e.inflight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic handling message",
				"session", c.SessionKey,
				"panic", r,
			)
		}
	}()

	reply, err := e.pipeline.Handle(e.runCtx, c)
	if err != nil {
		metrics.PipelineFailures.Inc()
		e.logger.Error("pipeline failed",
			"session", c.SessionKey,
			"type", c.Type,
			"err", err,
		)
		return
	}
	metrics.MessagesHandled.Inc()
	if reply == nil {
		return
	}

	if err := e.channel.Send(reply, c.Route); err != nil {
		metrics.SendFailures.Inc()
		e.logger.Error("send failed",
			"receiver", c.Route.Receiver,
			"reply_type", reply.Type,
			"err", err,
		)
	}
}
