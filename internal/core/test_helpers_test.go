package core

import (
	"context"
	"testing"
	"time"

	"academycore/internal/gateway"
	"academycore/internal/queue"
	"academycore/internal/syncer"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

type harness struct {
	svc     *Service
	gw      *gateway.Memory
	queue   *queue.Queue
	monitor *syncer.ManualMonitor
}

// newHarness wires a service to an in-memory gateway. The clock is fixed at today.
func newHarness(t *testing.T, online bool, today time.Time, opts ...Option) harness {
	t.Helper()
	gw := gateway.NewMemory()
	q := queue.New(nil)
	monitor := syncer.NewManualMonitor(online)
	coord := syncer.New(q, gw, monitor)
	opts = append([]Option{WithCoordinator(coord), WithClock(func() time.Time { return today })}, opts...)
	return harness{
		svc:     NewInMemoryService(NewDefaultRulesEngine(), opts...),
		gw:      gw,
		queue:   q,
		monitor: monitor,
	}
}

func mustStudent(t *testing.T, svc *Service, st Student) Student {
	t.Helper()
	created, _, err := svc.CreateStudent(context.Background(), st)
	if err != nil {
		t.Fatalf("create student %q: %v", st.Name, err)
	}
	return created
}
