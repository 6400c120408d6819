package observability

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes aggregate timing and result counters via expvar.
// The recorder maintains totals in milliseconds per operation, success/error
// counters and the latest offline queue depth.
type ExpvarMetricsRecorder struct {
	name       string
	mu         sync.Mutex
	durations  map[string]float64
	results    map[string]map[string]int64
	queueDepth int
}

// ExpvarMetricsSnapshot captures a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	QueueDepth  int                         `json:"queue_depth"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder and publishes it
// under the supplied name. When name is empty, a unique identifier is generated.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("academy_sync_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}

	results := make(map[string]map[string]int64, len(r.results))
	for op, statusCounts := range r.results {
		cpy := make(map[string]int64, len(statusCounts))
		for status, count := range statusCounts {
			cpy[status] = count
		}
		results[op] = cpy
	}

	return ExpvarMetricsSnapshot{
		DurationsMS: durations,
		Results:     results,
		QueueDepth:  r.queueDepth,
		RecordedAt:  time.Now().UTC(),
	}
}

// Observe records an operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	status := "error"
	if success {
		status = "success"
	}

	r.mu.Lock()
	r.durations[operation] += ms
	if _, ok := r.results[operation]; !ok {
		r.results[operation] = make(map[string]int64, 2)
	}
	r.results[operation][status]++
	r.mu.Unlock()
}

// SetQueueDepth records the pending offline action count.
func (r *ExpvarMetricsRecorder) SetQueueDepth(n int) {
	r.mu.Lock()
	r.queueDepth = n
	r.mu.Unlock()
}

// JSONEventEntry is one sync event written by JSONEventLog.
type JSONEventEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONEventLog serializes timed operations to a writer as JSON lines and
// retains them for inspection.
type JSONEventLog struct {
	mu      sync.Mutex
	entries []JSONEventEntry
	enc     *json.Encoder
}

// NewJSONEventLog constructs an event log writing to w (nil keeps entries in memory only).
func NewJSONEventLog(w io.Writer) *JSONEventLog {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONEventLog{enc: enc}
}

// Entries returns a copy of all recorded events.
func (l *JSONEventLog) Entries() []JSONEventEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]JSONEventEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Start opens a timed event; call the returned func with the outcome.
func (l *JSONEventLog) Start(operation string) func(err error) {
	started := time.Now().UTC()
	return func(err error) {
		status := "success"
		var errMsg string
		if err != nil {
			status = "error"
			errMsg = err.Error()
		}
		ended := time.Now().UTC()
		entry := JSONEventEntry{
			Operation:  operation,
			Status:     status,
			DurationMS: float64(ended.Sub(started)) / float64(time.Millisecond),
			Error:      errMsg,
			StartedAt:  started,
			EndedAt:    ended,
		}
		l.mu.Lock()
		l.entries = append(l.entries, entry)
		if l.enc != nil {
			_ = l.enc.Encode(entry)
		}
		l.mu.Unlock()
	}
}

// Observe lets the event log double as a MetricsRecorder.
func (l *JSONEventLog) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	ended := time.Now().UTC()
	status := "success"
	if !success {
		status = "error"
	}
	entry := JSONEventEntry{
		Operation:  operation,
		Status:     status,
		DurationMS: float64(duration) / float64(time.Millisecond),
		StartedAt:  ended.Add(-duration),
		EndedAt:    ended,
	}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if l.enc != nil {
		_ = l.enc.Encode(entry)
	}
	l.mu.Unlock()
}

// Multi fans observations out to several recorders.
type Multi []MetricsRecorder

// Observe forwards to every recorder.
func (m Multi) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		if r != nil {
			r.Observe(ctx, operation, success, duration)
		}
	}
}

// SetQueueDepth forwards to every recorder that tracks queue depth.
func (m Multi) SetQueueDepth(n int) {
	for _, r := range m {
		if g, ok := r.(QueueGauge); ok {
			g.SetQueueDepth(n)
		}
	}
}
