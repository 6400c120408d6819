package core

import (
	"context"
	"fmt"
	"time"

	"academycore/internal/blob"
	"academycore/internal/config"
	"academycore/internal/gateway"
	"academycore/internal/infra/gateway/postgres"
	"academycore/internal/infra/persistence/memory"
	"academycore/internal/infra/persistence/sqlite"
	"academycore/internal/observability"
	"academycore/internal/queue"
	"academycore/internal/syncer"
)

// StorageDriver identifies a concrete local snapshot implementation.
type StorageDriver string

const (
	StorageMemory StorageDriver = "memory" // in-memory only (tests / ephemeral)
	StorageSQLite StorageDriver = "sqlite" // embedded sqlite file
)

// RemoteDriver identifies the remote table gateway.
type RemoteDriver string

const (
	RemoteNone     RemoteDriver = "none"
	RemoteMemory   RemoteDriver = "memory"
	RemotePostgres RemoteDriver = "postgres"
)

// Local bundles the local snapshot with the queue storage living beside it.
type Local struct {
	Store PersistentStore
	Queue queue.Storage
	Close func() error
}

// OpenLocal selects the local snapshot backend from cfg.
func OpenLocal(cfg config.Config, engine *RulesEngine) (Local, error) {
	switch StorageDriver(cfg.StorageDriver) {
	case StorageMemory:
		return Local{Store: memory.NewStore(engine), Queue: queue.NewMemoryStorage(), Close: func() error { return nil }}, nil
	case StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return Local{}, err
		}
		return Local{Store: store, Queue: store, Close: store.Close}, nil
	default:
		return Local{}, fmt.Errorf("unknown storage driver %s", cfg.StorageDriver)
	}
}

// Pinger is implemented by gateways that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpenGateway returns the configured remote gateway, or nil for none.
func OpenGateway(ctx context.Context, cfg config.Config) (gateway.Gateway, func() error, error) {
	noop := func() error { return nil }
	switch RemoteDriver(cfg.RemoteDriver) {
	case RemoteNone, "":
		return nil, noop, nil
	case RemoteMemory:
		return gateway.NewMemory(), noop, nil
	case RemotePostgres:
		gw, err := postgres.NewGateway(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		return gw, gw.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown remote driver %s", cfg.RemoteDriver)
	}
}

// NewMonitor probes gw when it can be pinged; otherwise connectivity is fixed
// to whether a gateway exists.
func NewMonitor(gw gateway.Gateway, interval time.Duration, logger observability.Logger) syncer.ConnectivityMonitor {
	if p, ok := gw.(Pinger); ok {
		return syncer.NewProbeMonitor(syncer.ProbeFunc(p.Ping), interval, logger)
	}
	return syncer.NewManualMonitor(gw != nil)
}

// OpenPhotos opens the configured blob driver for student photos.
func OpenPhotos(ctx context.Context, cfg config.Config) (*blob.Photos, error) {
	store, err := blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:    cfg.Blob.S3Bucket,
			Region:    cfg.Blob.S3Region,
			Endpoint:  cfg.Blob.S3Endpoint,
			PathStyle: cfg.Blob.S3PathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open photo store: %w", err)
	}
	return blob.NewPhotos(store, blob.WithMaxSide(cfg.Blob.PhotoMaxSide)), nil
}
