// Package queue implements the durable offline mutation queue. Actions are
// appended in FIFO order, persisted after every change and destroyed only
// once the remote gateway acknowledges them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"academycore/internal/gateway"
	"academycore/internal/observability"
	"academycore/pkg/domain"
)

// Operation is the replayed remote call.
type Operation string

// Supported operations. Insert is accepted for compatibility and stored as Upsert.
const (
	OpUpsert Operation = "UPSERT"
	OpDelete Operation = "DELETE"
	OpInsert Operation = "INSERT"
)

// Normalize maps an operation to its replay form.
func (o Operation) Normalize() Operation {
	switch Operation(strings.ToUpper(string(o))) {
	case OpDelete:
		return OpDelete
	default:
		return OpUpsert
	}
}

// OfflineAction is one pending remote mutation.
type OfflineAction struct {
	ID         string               `json:"id"`
	Table      gateway.Table        `json:"table"`
	Operation  Operation            `json:"operation"`
	Payload    domain.ChangePayload `json:"payload"`
	EnqueuedAt time.Time            `json:"timestamp"`
}

// Row decodes the payload.
func (a OfflineAction) Row() (gateway.Row, error) {
	var row gateway.Row
	if err := a.Payload.Decode(&row); err != nil {
		return nil, fmt.Errorf("decode action %s payload: %w", a.ID, err)
	}
	if row == nil {
		return nil, fmt.Errorf("action %s: %w", a.ID, ErrEmptyPayload)
	}
	return row, nil
}

// ErrEmptyPayload marks an action that cannot be replayed.
var ErrEmptyPayload = errors.New("empty payload")

// Storage persists the whole queue.
type Storage interface {
	LoadQueue(ctx context.Context) ([]OfflineAction, error)
	SaveQueue(ctx context.Context, actions []OfflineAction) error
}

// DrainResult summarises one replay pass.
type DrainResult struct {
	Succeeded int
	Remaining []OfflineAction
	Skipped   bool
}

// Option customises a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithMetrics sets the recorder; when it also implements QueueGauge the
// depth is reported after every change.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(q *Queue) {
		if m == nil {
			return
		}
		q.metrics = m
		if g, ok := m.(observability.QueueGauge); ok {
			q.gauge = g
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// Queue is safe for concurrent use. Only one Drain runs at a time.
type Queue struct {
	mu       sync.Mutex
	items    []OfflineAction
	storage  Storage
	draining atomic.Bool

	logger  observability.Logger
	metrics observability.MetricsRecorder
	gauge   observability.QueueGauge
	now     func() time.Time
}

// New constructs a queue over storage (nil keeps the queue in memory).
func New(storage Storage, opts ...Option) *Queue {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	q := &Queue{
		storage: storage,
		logger:  observability.NoopLogger{},
		metrics: observability.NoopMetrics{},
		gauge:   observability.NoopMetrics{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Load replaces the in-memory queue with the persisted one.
func (q *Queue) Load(ctx context.Context) error {
	items, err := q.storage.LoadQueue(ctx)
	if err != nil {
		return fmt.Errorf("load offline queue: %w", err)
	}
	for i := range items {
		items[i].Operation = items[i].Operation.Normalize()
	}
	q.mu.Lock()
	q.items = items
	n := len(q.items)
	q.mu.Unlock()
	q.gauge.SetQueueDepth(n)
	return nil
}

// Enqueue appends an action and persists the queue. It never fails: when
// persistence fails the action is kept in memory and the error is logged.
func (q *Queue) Enqueue(ctx context.Context, table gateway.Table, op Operation, payload domain.ChangePayload) OfflineAction {
	action := OfflineAction{
		ID:         uuid.NewString(),
		Table:      table,
		Operation:  op.Normalize(),
		Payload:    payload,
		EnqueuedAt: q.now(),
	}
	q.mu.Lock()
	q.items = append(q.items, action)
	snapshot := cloneActions(q.items)
	err := q.storage.SaveQueue(ctx, snapshot)
	q.mu.Unlock()

	if err != nil {
		q.logger.Error("persist offline queue", "table", table, "op", action.Operation, "action_id", action.ID, "err", err)
	} else {
		q.logger.Debug("queued offline action", "table", table, "op", action.Operation, "action_id", action.ID)
	}
	q.gauge.SetQueueDepth(len(snapshot))
	return action
}

// Size returns the number of pending actions.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the pending actions in FIFO order.
func (q *Queue) Pending() []OfflineAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return cloneActions(q.items)
}

// Drain replays pending actions in order against gw. Failed actions stay in
// their original relative order, followed by anything enqueued during the pass.
// A call made while another drain is running returns Skipped.
func (q *Queue) Drain(ctx context.Context, gw gateway.Gateway) DrainResult {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true, Remaining: q.Pending()}
	}
	defer q.draining.Store(false)

	started := time.Now()
	q.mu.Lock()
	batch := cloneActions(q.items)
	q.mu.Unlock()

	var failed []OfflineAction
	succeeded := 0
	for _, action := range batch {
		if err := ctx.Err(); err != nil {
			failed = append(failed, action)
			continue
		}
		if err := Apply(ctx, gw, action); err != nil {
			q.logger.Warn("replay offline action", "table", action.Table, "op", action.Operation, "action_id", action.ID, "err", err)
			failed = append(failed, action)
			continue
		}
		succeeded++
	}

	q.mu.Lock()
	merged := failed
	if len(q.items) > len(batch) {
		merged = append(merged, q.items[len(batch):]...)
	}
	q.items = cloneActions(merged)
	remaining := cloneActions(q.items)
	err := q.storage.SaveQueue(ctx, remaining)
	q.mu.Unlock()
	if err != nil {
		q.logger.Error("persist offline queue", "err", err)
	}

	q.gauge.SetQueueDepth(len(remaining))
	q.metrics.Observe(ctx, "queue.drain", len(failed) == 0, time.Since(started))
	if len(batch) > 0 {
		q.logger.Info("offline queue drained", "succeeded", succeeded, "remaining", len(remaining))
	}
	return DrainResult{Succeeded: succeeded, Remaining: remaining}
}

// Apply performs a single action against the gateway.
func Apply(ctx context.Context, gw gateway.Gateway, action OfflineAction) error {
	if gw == nil {
		return errors.New("no remote gateway configured")
	}
	row, err := action.Row()
	if err != nil {
		return err
	}
	switch action.Operation.Normalize() {
	case OpDelete:
		return gw.Delete(ctx, action.Table, row.ID())
	default:
		return gw.Upsert(ctx, action.Table, row)
	}
}

func cloneActions(in []OfflineAction) []OfflineAction {
	if len(in) == 0 {
		return nil
	}
	out := make([]OfflineAction, len(in))
	copy(out, in)
	return out
}
