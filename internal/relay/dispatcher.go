package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/logger"
)

// Handler runs one command. *Relay implements it.
type Handler interface {
	Handle(ctx context.Context, cmd channel.Command) State
}

type job struct {
	ctx context.Context
	cmd channel.Command
}

// Dispatcher runs every accepted command on its own goroutine so webhook
// handlers can acknowledge immediately. The queue bounds admission; the
// concurrency limit only caps simultaneous streams.
type Dispatcher struct {
	handler Handler
	queue   chan job
	slots   chan struct{}
	logger  *slog.Logger

	once     sync.Once
	mu       sync.RWMutex
	stopped  bool
	pumpDone chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher running at most concurrency commands at
// once, with queueSize commands waiting for a slot.
func NewDispatcher(log *slog.Logger, handler Handler, concurrency, queueSize int) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		handler:  handler,
		queue:    make(chan job, queueSize),
		slots:    make(chan struct{}, concurrency),
		logger:   log.With(slog.String("component", "dispatcher")),
		pumpDone: make(chan struct{}),
	}
}

// Start launches the dispatch loop once.
func (d *Dispatcher) Start(context.Context) {
	d.once.Do(func() {
		go d.pump()
		d.logger.Info("dispatcher started",
			slog.Int("concurrency", cap(d.slots)),
			slog.Int("queue_size", cap(d.queue)))
	})
}

// Enqueue hands cmd over without blocking. The job outlives the caller's
// context, which usually belongs to an HTTP request that is answered right
// away.
func (d *Dispatcher) Enqueue(ctx context.Context, cmd channel.Command) error {
	d.Start(ctx)
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), cmd: cmd}:
		return nil
	default:
		d.logger.Warn("relay queue full",
			slog.String("platform", cmd.Platform.String()),
			slog.String("workspace_id", cmd.WorkspaceID))
		return ErrQueueFull
	}
}

// Shutdown stops taking commands, lets everything already accepted run and
// waits for it until ctx ends. Accepted commands have been acknowledged to
// the platform, so they are never dropped.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.Start(ctx)
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		if n := len(d.queue); n > 0 {
			d.logger.Info("draining queued commands", slog.Int("count", n))
		}
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-d.pumpDone
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) pump() {
	defer close(d.pumpDone)
	for j := range d.queue {
		d.slots <- struct{}{}
		d.wg.Add(1)
		go d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	defer func() {
		<-d.slots
		d.wg.Done()
	}()
	state := d.handler.Handle(j.ctx, j.cmd)
	logger.FromContext(j.ctx).Debug("relay done",
		slog.String("platform", j.cmd.Platform.String()),
		slog.String("state", string(state)))
}
