// Package postgres implements the remote table gateway on Postgres through the
// pgx database/sql driver. Each remote table stores one JSONB document per id.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"academycore/internal/gateway"
)

// Compile-time contract assertion ensuring the gateway satisfies the remote contract.
var _ gateway.Gateway = (*Gateway)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/academy?sslmode=disable"

	uniqueViolation = "23505"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Gateway talks to the remote relational store.
type Gateway struct {
	db  *sql.DB
	now func() time.Time
}

// NewGateway opens the remote store using dsn (falls back to defaultDSN), pings
// it and ensures every table exists.
func NewGateway(ctx context.Context, dsn string) (*Gateway, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Gateway{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func ensureTables(ctx context.Context, db *sql.DB) error {
	for _, table := range gateway.Tables() {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, ident(table))
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure table %s: %w", table, err)
		}
	}
	return nil
}

func ident(table gateway.Table) string {
	return pgx.Identifier{string(table)}.Sanitize()
}

func encode(table gateway.Table, row gateway.Row) (string, error) {
	if !table.Valid() {
		return "", fmt.Errorf("%w: %q", gateway.ErrUnknownTable, table)
	}
	if row.ID() == "" {
		return "", fmt.Errorf("%w (table %s)", gateway.ErrMissingID, table)
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("encode %s row: %w", table, err)
	}
	return string(raw), nil
}

// Upsert writes row, replacing any existing row with the same id.
func (g *Gateway) Upsert(ctx context.Context, table gateway.Table, row gateway.Row) error {
	payload, err := encode(table, row)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, payload, updated_at) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`, ident(table))
	if _, err := g.db.ExecContext(ctx, query, row.ID(), payload, g.now()); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", table, row.ID(), err)
	}
	return nil
}

// Insert writes a new row; an existing id yields gateway.ErrDuplicate.
func (g *Gateway) Insert(ctx context.Context, table gateway.Table, row gateway.Row) error {
	payload, err := encode(table, row)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, payload, updated_at) VALUES ($1, $2, $3)`, ident(table))
	if _, err := g.db.ExecContext(ctx, query, row.ID(), payload, g.now()); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s/%s", gateway.ErrDuplicate, table, row.ID())
		}
		return fmt.Errorf("insert %s/%s: %w", table, row.ID(), err)
	}
	return nil
}

// Delete removes a row by id. Deleting an absent row succeeds.
func (g *Gateway) Delete(ctx context.Context, table gateway.Table, id string) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", gateway.ErrUnknownTable, table)
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, ident(table))
	if _, err := g.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	return nil
}

// Select returns every row of table ordered by id.
func (g *Gateway) Select(ctx context.Context, table gateway.Table) ([]gateway.Row, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", gateway.ErrUnknownTable, table)
	}
	rows, err := g.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, payload FROM %s ORDER BY id`, ident(table)))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []gateway.Row
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := gateway.Row{}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &row); err != nil {
				return nil, fmt.Errorf("decode %s/%s: %w", table, id, err)
			}
		}
		row["id"] = id
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// Ping reports reachability; it doubles as a connectivity probe.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

// Close releases the connection pool.
func (g *Gateway) Close() error { return g.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (g *Gateway) DB() *sql.DB { return g.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
