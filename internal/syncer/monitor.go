package syncer

import (
	"context"
	"sync"
	"time"

	"academycore/internal/observability"
)

// ConnectivityMonitor reports reachability of the remote store and emits
// transitions to subscribers.
type ConnectivityMonitor interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) (cancel func())
}

type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(bool)
}

func (s *subscribers) add(fn func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(bool))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) notify(online bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.fns))
	for i := 0; i < s.next; i++ {
		if fn, ok := s.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
}

// ManualMonitor is switched explicitly. Set emits only on change.
type ManualMonitor struct {
	mu     sync.Mutex
	online bool
	subs   subscribers
}

// NewManualMonitor starts in the given state.
func NewManualMonitor(online bool) *ManualMonitor {
	return &ManualMonitor{online: online}
}

func (m *ManualMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *ManualMonitor) Subscribe(fn func(online bool)) func() {
	return m.subs.add(fn)
}

// Set changes the state and notifies subscribers when it differs.
func (m *ManualMonitor) Set(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()
	if changed {
		m.subs.notify(online)
	}
}

// Prober checks remote reachability.
type Prober interface {
	Ping(ctx context.Context) error
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Ping(ctx context.Context) error { return f(ctx) }

// ProbeMonitor polls a Prober. It starts offline and emits on change.
type ProbeMonitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   observability.Logger

	mu     sync.Mutex
	online bool
	subs   subscribers
}

// NewProbeMonitor constructs a monitor; interval defaults to 30s.
func NewProbeMonitor(prober Prober, interval time.Duration, logger observability.Logger) *ProbeMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = observability.NoopLogger{}
	}
	timeout := interval / 2
	if timeout > 10*time.Second {
		timeout = 10 * time.Second
	}
	return &ProbeMonitor{prober: prober, interval: interval, timeout: timeout, logger: logger}
}

func (m *ProbeMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *ProbeMonitor) Subscribe(fn func(online bool)) func() {
	return m.subs.add(fn)
}

// Check probes once and returns the resulting state.
func (m *ProbeMonitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.prober.Ping(probeCtx)
	cancel()
	online := err == nil

	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()
	if changed {
		if online {
			m.logger.Info("remote reachable")
		} else {
			m.logger.Warn("remote unreachable", "err", err)
		}
		m.subs.notify(online)
	}
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (m *ProbeMonitor) Run(ctx context.Context) {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
