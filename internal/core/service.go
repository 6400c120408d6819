package core

import (
	"context"
	"time"

	"academycore/internal/blob"
	"academycore/internal/gateway"
	"academycore/internal/infra/persistence/memory"
	"academycore/internal/messaging"
	"academycore/internal/observability"
	"academycore/internal/queue"
	"academycore/internal/syncer"
	"academycore/pkg/domain"
)

// Service applies academy mutations optimistically to the local snapshot and
// forwards every committed change to the sync coordinator.
type Service struct {
	store    PersistentStore
	markers  MarkerStore
	sync     *syncer.Coordinator
	logger   observability.Logger
	metrics  observability.MetricsRecorder
	now      func() time.Time
	photos   *blob.Photos
	drafter  *messaging.Drafter
	opener   messaging.Opener
	academy  string
	currency string
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithLogger configures the logger used by the service.
func WithLogger(logger observability.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics configures the metrics recorder for service operations.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source used for "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCoordinator routes replication through c.
func WithCoordinator(c *syncer.Coordinator) Option {
	return func(s *Service) {
		if c != nil {
			s.sync = c
		}
	}
}

// WithPhotos enables student photo storage.
func WithPhotos(p *blob.Photos) Option {
	return func(s *Service) { s.photos = p }
}

// WithDrafter enables AI-assisted message drafting.
func WithDrafter(d *messaging.Drafter) Option {
	return func(s *Service) { s.drafter = d }
}

// WithOpener sets where composed WhatsApp links are sent.
func WithOpener(o messaging.Opener) Option {
	return func(s *Service) { s.opener = o }
}

// WithMarkers overrides the store used for one-shot workflow markers.
func WithMarkers(m MarkerStore) Option {
	return func(s *Service) { s.markers = m }
}

// WithAcademy sets the names used in outbound messages.
func WithAcademy(name, currency string) Option {
	return func(s *Service) {
		s.academy = name
		s.currency = currency
	}
}

// NewService constructs a service backed by store. Without a coordinator
// every change is kept in an in-memory offline queue.
func NewService(store PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		logger:  observability.NoopLogger{},
		metrics: observability.NoopMetrics{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	if m, ok := store.(MarkerStore); ok {
		svc.markers = m
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.sync == nil {
		svc.sync = syncer.New(queue.New(nil, queue.WithLogger(svc.logger)), nil, nil, syncer.WithLogger(svc.logger))
	}
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Coordinator returns the sync coordinator.
func (s *Service) Coordinator() *syncer.Coordinator { return s.sync }

// SyncNow replays the offline queue.
func (s *Service) SyncNow(ctx context.Context) queue.DrainResult {
	return s.sync.SyncNow(ctx)
}

// PendingSync reports the number of queued offline actions.
func (s *Service) PendingSync() int { return s.sync.Pending() }

func (s *Service) today() time.Time { return s.now() }

func (s *Service) observe(ctx context.Context, op string, started time.Time, err error) {
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
}

// run executes fn in a store transaction and records the outcome.
func (s *Service) run(ctx context.Context, op string, fn func(Transaction) error) (Result, error) {
	started := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	s.observe(ctx, op, started, err)
	if err != nil {
		s.logger.Warn("transaction failed", "op", op, "err", err)
	}
	return res, err
}

func upsertMutation(entity EntityType, value any) (syncer.Mutation, error) {
	table, _ := gateway.TableFor(entity)
	row, err := gateway.RowFrom(value)
	if err != nil {
		return syncer.Mutation{}, err
	}
	payload, err := domain.NewChangePayloadFromValue(row)
	if err != nil {
		return syncer.Mutation{}, err
	}
	return syncer.Mutation{Table: table, Op: queue.OpUpsert, Payload: payload}, nil
}

func deleteMutation(entity EntityType, id string) (syncer.Mutation, error) {
	table, _ := gateway.TableFor(entity)
	payload, err := domain.NewChangePayloadFromValue(gateway.DeleteRow(id))
	if err != nil {
		return syncer.Mutation{}, err
	}
	return syncer.Mutation{Table: table, Op: queue.OpDelete, Payload: payload}, nil
}

// replicate forwards committed changes in dependency order.
func (s *Service) replicate(ctx context.Context, changes ...syncer.Mutation) {
	if len(changes) == 0 {
		return
	}
	s.sync.MutateOrdered(ctx, changes)
}

func (s *Service) replicateUpsert(ctx context.Context, entity EntityType, value any) {
	m, err := upsertMutation(entity, value)
	if err != nil {
		s.logger.Error("encode change", "entity", entity, "err", err)
		return
	}
	s.replicate(ctx, m)
}

func (s *Service) replicateDelete(ctx context.Context, entity EntityType, id string) {
	m, err := deleteMutation(entity, id)
	if err != nil {
		s.logger.Error("encode delete", "entity", entity, "id", id, "err", err)
		return
	}
	s.replicate(ctx, m)
}
