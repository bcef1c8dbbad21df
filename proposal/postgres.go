package proposal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS proposals (
    id          TEXT PRIMARY KEY,
    data        JSONB NOT NULL,
    status      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    expires_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_proposals_expires_at ON proposals (expires_at);
`

// PostgresStore is a Store backed by a PostgreSQL table.
type PostgresStore struct {
	conn *sql.DB
	ttl  time.Duration
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres opens a connection pool, verifies connectivity and creates
// the proposals table. ttl <= 0 selects DefaultTTL.
func OpenPostgres(ctx context.Context, databaseURL string, ttl time.Duration) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	s := NewPostgresStore(conn, ttl)
	if err := s.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an open pool. The caller runs Migrate.
func NewPostgresStore(conn *sql.DB, ttl time.Duration) *PostgresStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PostgresStore{conn: conn, ttl: ttl}
}

// Migrate creates the proposals table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error { return s.conn.Close() }

// Put upserts v under id and restarts its TTL.
func (s *PostgresStore) Put(ctx context.Context, id string, v *Stored) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode proposal: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO proposals (id, data, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, now() + $5 * interval '1 second')
		ON CONFLICT (id) DO UPDATE
		SET data = EXCLUDED.data, status = EXCLUDED.status, expires_at = EXCLUDED.expires_at`,
		id, data, string(v.Status), v.CreatedAt, int64(s.ttl/time.Second),
	)
	if err != nil {
		return fmt.Errorf("put proposal: %w", err)
	}
	return nil
}

// Get returns the proposal or ErrNotFound when it is unknown or expired.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Stored, error) {
	var data []byte
	err := s.conn.QueryRowContext(ctx,
		`SELECT data FROM proposals WHERE id = $1 AND expires_at > now()`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}

	var v Stored
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode proposal: %w", err)
	}
	return &v, nil
}

// DeleteExpired removes expired rows and returns how many were deleted.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM proposals WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired proposals: %w", err)
	}
	return res.RowsAffected()
}
