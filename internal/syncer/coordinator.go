// Package syncer routes local mutations to the remote gateway when reachable
// and to the durable offline queue otherwise, replaying the queue whenever
// connectivity returns.
package syncer

import (
	"context"
	"sync"
	"time"

	"academycore/internal/gateway"
	"academycore/internal/observability"
	"academycore/internal/queue"
	"academycore/pkg/domain"
)

// Mutation is one remote write in a dependency-ordered batch.
type Mutation struct {
	Table   gateway.Table
	Op      queue.Operation
	Payload domain.ChangePayload
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Coordinator is the single entry point for remote writes.
type Coordinator struct {
	queue   *queue.Queue
	gw      gateway.Gateway
	monitor ConnectivityMonitor
	logger  observability.Logger
	metrics observability.MetricsRecorder

	mu          sync.Mutex
	unsubscribe func()
	lastOnline  bool
	drains      sync.WaitGroup
}

// New wires a coordinator. gw may be nil, in which case every mutation is queued.
func New(q *queue.Queue, gw gateway.Gateway, monitor ConnectivityMonitor, opts ...Option) *Coordinator {
	if monitor == nil {
		monitor = NewManualMonitor(false)
	}
	c := &Coordinator{
		queue:   q,
		gw:      gw,
		monitor: monitor,
		logger:  observability.NoopLogger{},
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Queue exposes the underlying queue.
func (c *Coordinator) Queue() *queue.Queue { return c.queue }

// Gateway returns the configured gateway (nil when offline-only).
func (c *Coordinator) Gateway() gateway.Gateway { return c.gw }

// Online reports whether remote writes would be attempted now.
func (c *Coordinator) Online() bool {
	return c.gw != nil && c.monitor.IsOnline()
}

// Mutate writes through to the remote store when online and queues otherwise.
// Remote failures are logged and queued; the call always reports acceptance.
// A write never overtakes older queued actions: the backlog is drained first
// and the write is queued behind whatever is still pending.
func (c *Coordinator) Mutate(ctx context.Context, table gateway.Table, op queue.Operation, payload domain.ChangePayload) bool {
	return c.MutateOrdered(ctx, []Mutation{{Table: table, Op: op, Payload: payload}})
}

// MutateOrdered sends a dependency-ordered batch sequentially. At the first
// failure that mutation and every later one are queued in order.
func (c *Coordinator) MutateOrdered(ctx context.Context, mutations []Mutation) bool {
	start := 0
	if c.writeThrough(ctx) {
		for ; start < len(mutations); start++ {
			m := mutations[start]
			if err := c.send(ctx, m.Table, m.Op, m.Payload); err != nil {
				break
			}
		}
	}
	for _, m := range mutations[start:] {
		c.queue.Enqueue(ctx, m.Table, m.Op, m.Payload)
	}
	return true
}

// writeThrough reports whether a new write may go straight to the remote.
// That needs connectivity and an empty queue once any backlog has been replayed.
func (c *Coordinator) writeThrough(ctx context.Context) bool {
	if !c.Online() {
		return false
	}
	if c.queue.Size() == 0 {
		return true
	}
	res := c.queue.Drain(ctx, c.gw)
	if res.Skipped {
		return false
	}
	return c.queue.Size() == 0
}

func (c *Coordinator) send(ctx context.Context, table gateway.Table, op queue.Operation, payload domain.ChangePayload) error {
	started := time.Now()
	action := queue.OfflineAction{Table: table, Operation: op.Normalize(), Payload: payload}
	err := queue.Apply(ctx, c.gw, action)
	c.metrics.Observe(ctx, "remote."+string(table), err == nil, time.Since(started))
	if err != nil {
		c.logger.Warn("remote write failed, queueing", "table", table, "op", action.Operation, "err", err)
	}
	return err
}

// SyncNow drains the queue unconditionally.
func (c *Coordinator) SyncNow(ctx context.Context) queue.DrainResult {
	if c.gw == nil {
		return queue.DrainResult{Remaining: c.queue.Pending()}
	}
	return c.queue.Drain(ctx, c.gw)
}

// Pending returns the queue size.
func (c *Coordinator) Pending() int {
	return c.queue.Size()
}

// Start subscribes to connectivity changes; every offline to online
// transition triggers one drain. When already online with pending actions
// a drain starts immediately.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.mu.Unlock()
		return
	}
	c.lastOnline = c.monitor.IsOnline()
	c.unsubscribe = c.monitor.Subscribe(func(online bool) {
		c.mu.Lock()
		wasOnline := c.lastOnline
		c.lastOnline = online
		c.mu.Unlock()
		if online && !wasOnline {
			c.drainAsync(ctx)
		}
	})
	startOnline := c.lastOnline
	c.mu.Unlock()

	if startOnline && c.queue.Size() > 0 {
		c.drainAsync(ctx)
	}
}

func (c *Coordinator) drainAsync(ctx context.Context) {
	if c.gw == nil {
		return
	}
	c.drains.Add(1)
	go func() {
		defer c.drains.Done()
		res := c.queue.Drain(ctx, c.gw)
		if res.Skipped {
			c.logger.Debug("drain already running")
		}
	}()
}

// Stop unsubscribes and waits for in-flight drains.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	c.drains.Wait()
}
