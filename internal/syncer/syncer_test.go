package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"academycore/internal/gateway"
	"academycore/internal/observability"
	"academycore/internal/queue"
	"academycore/pkg/domain"
)

func rowPayload(t *testing.T, id string) domain.ChangePayload {
	t.Helper()
	p, err := domain.NewChangePayloadFromValue(gateway.Row{"id": id})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	return p
}

func TestMutateOfflineQueues(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMemory()
	c := New(queue.New(nil), gw, NewManualMonitor(false))
	if !c.Mutate(ctx, gateway.TableStudents, queue.OpUpsert, rowPayload(t, "s1")) {
		t.Fatalf("mutate must always accept")
	}
	if c.Pending() != 1 || len(gw.Calls()) != 0 {
		t.Fatalf("expected queued without remote call")
	}
}

func TestMutateWithoutGatewayQueues(t *testing.T) {
	c := New(queue.New(nil), nil, NewManualMonitor(true))
	c.Mutate(context.Background(), gateway.TableStudents, queue.OpUpsert, rowPayload(t, "s1"))
	if c.Pending() != 1 || c.Online() {
		t.Fatalf("expected offline-only coordinator to queue")
	}
	if res := c.SyncNow(context.Background()); len(res.Remaining) != 1 {
		t.Fatalf("expected sync without gateway to keep queue")
	}
}

func TestMutateOnlineWritesThroughAndQueuesFailures(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMemory()
	metrics := observability.NewExpvarMetricsRecorder("")
	c := New(queue.New(nil), gw, NewManualMonitor(true), WithMetrics(metrics))

	c.Mutate(ctx, gateway.TableStudents, queue.OpUpsert, rowPayload(t, "s1"))
	if _, ok := gw.Get(gateway.TableStudents, "s1"); !ok || c.Pending() != 0 {
		t.Fatalf("expected direct remote write")
	}

	gw.FailNext(errors.New("503"))
	c.Mutate(ctx, gateway.TableStudents, queue.OpUpsert, rowPayload(t, "s2"))
	if c.Pending() != 1 {
		t.Fatalf("expected failed write to be queued")
	}
	results := metrics.Snapshot().Results["remote.students"]
	if results["success"] != 1 || results["error"] != 1 {
		t.Fatalf("unexpected metrics %+v", results)
	}
}

func TestMutateOrderedQueuesTailFromFirstFailure(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMemory()
	q := queue.New(nil)
	c := New(q, gw, NewManualMonitor(true))
	gw.FailID("a1", errors.New("reset"))

	c.MutateOrdered(ctx, []Mutation{
		{Table: gateway.TableExams, Op: queue.OpDelete, Payload: rowPayload(t, "e1")},
		{Table: gateway.TableAttendance, Op: queue.OpUpsert, Payload: rowPayload(t, "a1")},
		{Table: gateway.TableStudents, Op: queue.OpDelete, Payload: rowPayload(t, "s1")},
	})

	pending := q.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected failing mutation and its successor queued, got %d", len(pending))
	}
	if pending[0].Table != gateway.TableAttendance || pending[1].Table != gateway.TableStudents || pending[1].Operation != queue.OpDelete {
		t.Fatalf("unexpected queue order %+v", pending)
	}
	calls := gw.Calls()
	if len(calls) != 2 || calls[0].Method != "delete" || calls[1].ID != "a1" {
		t.Fatalf("expected no remote call after the first failure, got %+v", calls)
	}
}

func namedPayload(t *testing.T, id, name string) domain.ChangePayload {
	t.Helper()
	p, err := domain.NewChangePayloadFromValue(gateway.Row{"id": id, "name": name})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	return p
}

func TestMutateAfterReconnectDoesNotOvertakeBacklog(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMemory()
	monitor := NewManualMonitor(false)
	c := New(queue.New(nil), gw, monitor)

	c.Mutate(ctx, gateway.TableStudents, queue.OpUpsert, namedPayload(t, "s1", "Old"))
	monitor.Set(true)
	c.Mutate(ctx, gateway.TableStudents, queue.OpUpsert, namedPayload(t, "s1", "New"))
	c.SyncNow(ctx)

	row, ok := gw.Get(gateway.TableStudents, "s1")
	if !ok || row["name"] != "New" || c.Pending() != 0 {
		t.Fatalf("expected the later write to win remotely, got %v (pending %d)", row, c.Pending())
	}
}

func TestMutateQueuesBehindStuckBacklog(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMemory()
	q := queue.New(nil)
	monitor := NewManualMonitor(false)
	c := New(q, gw, monitor)

	c.Mutate(ctx, gateway.TableStudents, queue.OpUpsert, namedPayload(t, "s1", "Old"))
	monitor.Set(true)
	gw.FailNext(errors.New("503"))
	c.Mutate(ctx, gateway.TableStudents, queue.OpUpsert, namedPayload(t, "s1", "New"))

	pending := q.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected the new write queued behind the backlog, got %d", len(pending))
	}
	if _, ok := gw.Get(gateway.TableStudents, "s1"); ok {
		t.Fatalf("expected no remote write while the backlog is stuck")
	}
	last, _ := pending[1].Row()
	if last["name"] != "New" {
		t.Fatalf("expected newest write last, got %v", last)
	}

	c.SyncNow(ctx)
	row, _ := gw.Get(gateway.TableStudents, "s1")
	if row["name"] != "New" || c.Pending() != 0 {
		t.Fatalf("expected replay to end on the newest write, got %v", row)
	}
}

func TestMutateOrderedOfflineQueuesAll(t *testing.T) {
	q := queue.New(nil)
	c := New(q, gateway.NewMemory(), NewManualMonitor(false))
	c.MutateOrdered(context.Background(), []Mutation{
		{Table: gateway.TableFees, Op: queue.OpDelete, Payload: rowPayload(t, "f1")},
		{Table: gateway.TableStudents, Op: queue.OpDelete, Payload: rowPayload(t, "s1")},
	})
	pending := q.Pending()
	if len(pending) != 2 || pending[0].Table != gateway.TableFees {
		t.Fatalf("expected children before parent in queue, got %+v", pending)
	}
}

func TestReconnectDrainsOnce(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMemory()
	monitor := NewManualMonitor(false)
	c := New(queue.New(nil), gw, monitor)
	c.Mutate(ctx, gateway.TableStudents, queue.OpUpsert, rowPayload(t, "s1"))
	c.Mutate(ctx, gateway.TableStudents, queue.OpUpsert, rowPayload(t, "s2"))

	c.Start(ctx)
	monitor.Set(true)
	monitor.Set(true)
	c.Stop()

	if c.Pending() != 0 {
		t.Fatalf("expected queue to drain on reconnect")
	}
	if got := len(gw.Calls()); got != 2 {
		t.Fatalf("expected exactly one replay pass, got %d calls", got)
	}

	monitor.Set(false)
	c.Mutate(ctx, gateway.TableStudents, queue.OpUpsert, rowPayload(t, "s3"))
	monitor.Set(true)
	if c.Pending() != 1 {
		t.Fatalf("expected no drain after Stop")
	}
}

func TestStartWhileOnlineDrainsBacklog(t *testing.T) {
	ctx := context.Background()
	q := queue.New(nil)
	q.Enqueue(ctx, gateway.TableStudents, queue.OpUpsert, rowPayload(t, "s1"))
	gw := gateway.NewMemory()
	c := New(q, gw, NewManualMonitor(true))
	c.Start(ctx)
	c.Stop()
	if c.Pending() != 0 {
		t.Fatalf("expected backlog to drain at start")
	}
}

func TestProbeMonitorEmitsOnlyTransitions(t *testing.T) {
	var mu sync.Mutex
	var reachable bool
	probe := ProbeFunc(func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if reachable {
			return nil
		}
		return errors.New("dial tcp: refused")
	})
	m := NewProbeMonitor(probe, time.Second, nil)
	var events []bool
	cancel := m.Subscribe(func(online bool) { events = append(events, online) })

	ctx := context.Background()
	m.Check(ctx)
	mu.Lock()
	reachable = true
	mu.Unlock()
	m.Check(ctx)
	m.Check(ctx)
	mu.Lock()
	reachable = false
	mu.Unlock()
	m.Check(ctx)
	cancel()
	mu.Lock()
	reachable = true
	mu.Unlock()
	m.Check(ctx)

	if len(events) != 2 || !events[0] || events[1] {
		t.Fatalf("unexpected transitions %v", events)
	}
	if !m.IsOnline() {
		t.Fatalf("expected final state online")
	}
}

func TestProbeMonitorRunStopsWithContext(t *testing.T) {
	m := NewProbeMonitor(ProbeFunc(func(context.Context) error { return nil }), time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
