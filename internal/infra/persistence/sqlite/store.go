// Package sqlite persists the academy snapshot, the offline mutation queue and
// one-shot markers to a single SQLite table of JSON buckets.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"academycore/internal/infra/persistence/memory"
	"academycore/internal/queue"
	"academycore/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.MarkerStore     = (*Store)(nil)
	_ queue.Storage          = (*Store)(nil)
)

const (
	defaultPath = "academy.db"
	queueBucket = "offline_queue"
)

var entityBuckets = []string{"students", "classes", "attendance", "fees", "exams"}

// Store persists the in-memory state to a single SQLite table as JSON blobs.
// It snapshots the full state after every successful transaction.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	txMu sync.Mutex // serialises commit+persist so a failed snapshot can be undone
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{Markers: map[string]time.Time{}}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var target any
		switch bucket {
		case "students":
			target = &snapshot.Students
		case "classes":
			target = &snapshot.Classes
		case "attendance":
			target = &snapshot.Attendance
		case "fees":
			target = &snapshot.Fees
		case "exams":
			target = &snapshot.Exams
		case queueBucket:
			continue
		default:
			var at time.Time
			if err := json.Unmarshal(payload, &at); err != nil {
				return fmt.Errorf("decode marker %s: %w", bucket, err)
			}
			snapshot.Markers[bucket] = at
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range entityBuckets {
		var data []byte
		switch bucket {
		case "students":
			data, err = json.Marshal(snapshot.Students)
		case "classes":
			data, err = json.Marshal(snapshot.Classes)
		case "attendance":
			data, err = json.Marshal(snapshot.Attendance)
		case "fees":
			data, err = json.Marshal(snapshot.Fees)
		case "exams":
			data, err = json.Marshal(snapshot.Exams)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if err = upsertBucket(ctx, tx, bucket, data); err != nil {
			retErr = err
			return retErr
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertBucket(ctx context.Context, db execer, bucket string, data []byte) error {
	if _, err := db.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
		return fmt.Errorf("upsert %s: %w", bucket, err)
	}
	return nil
}

// RunInTransaction applies the provided function within a transaction, then
// snapshots state to SQLite. When the snapshot cannot be written the in-memory
// commit is undone, so callers never observe a change that is not on disk.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	before := s.Collections()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(ctx); pErr != nil {
		return res, s.restore(ctx, before, pErr)
	}
	return res, nil
}

// ReplaceAll swaps every collection and snapshots the result. A failed
// snapshot restores the previous collections.
func (s *Store) ReplaceAll(ctx context.Context, c domain.Collections) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	before := s.Collections()
	if err := s.Store.ReplaceAll(ctx, c); err != nil {
		return err
	}
	if pErr := s.persist(ctx); pErr != nil {
		return s.restore(ctx, before, pErr)
	}
	return nil
}

func (s *Store) restore(ctx context.Context, before domain.Collections, cause error) error {
	if err := s.Store.ReplaceAll(ctx, before); err != nil {
		return fmt.Errorf("persist snapshot: %w (restore: %v)", cause, err)
	}
	return fmt.Errorf("persist snapshot: %w", cause)
}

// SetMarker records a marker in its own bucket. The marker becomes visible
// only after it is on disk.
func (s *Store) SetMarker(ctx context.Context, name string) error {
	if name == queueBucket {
		return fmt.Errorf("marker name %q is reserved", name)
	}
	for _, bucket := range entityBuckets {
		if name == bucket {
			return fmt.Errorf("marker name %q is reserved", name)
		}
	}
	data, err := json.Marshal(s.NowFunc()())
	if err != nil {
		return err
	}
	s.mu.Lock()
	err = upsertBucket(ctx, s.db, name, data)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.SetMarker(ctx, name)
}

// LoadQueue reads the persisted offline queue.
func (s *Store) LoadQueue(ctx context.Context) ([]queue.OfflineAction, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = ?`, queueBucket).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", queueBucket, err)
	}
	var actions []queue.OfflineAction
	if err := json.Unmarshal(payload, &actions); err != nil {
		return nil, fmt.Errorf("decode %s: %w", queueBucket, err)
	}
	return actions, nil
}

// SaveQueue replaces the persisted offline queue.
func (s *Store) SaveQueue(ctx context.Context, actions []queue.OfflineAction) error {
	if actions == nil {
		actions = []queue.OfflineAction{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode %s: %w", queueBucket, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertBucket(ctx, s.db, queueBucket, data)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
