// File: internal/store/postgres.go
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xkilldash9x/relock/internal/locator"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const sqlCreateTable = `
	CREATE TABLE IF NOT EXISTS locator_records (
		identity    TEXT        NOT NULL,
		strategy    TEXT        NOT NULL,
		value       TEXT        NOT NULL,
		success     BOOLEAN     NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	);
`

const sqlCreateIndex = `
	CREATE UNIQUE INDEX IF NOT EXISTS locator_records_learned
		ON locator_records (identity, strategy, value) WHERE success;
`

const sqlInsertRecord = `
	INSERT INTO locator_records (identity, strategy, value, success, recorded_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (identity, strategy, value) WHERE success DO NOTHING;
`

const sqlSelectRecords = `
	SELECT strategy, value, recorded_at
	FROM locator_records
	WHERE identity = $1 AND success
	ORDER BY recorded_at DESC;
`

const sqlSelectIdentities = `
	SELECT DISTINCT identity FROM locator_records ORDER BY identity;
`

// PostgresStore implements Store on a shared Postgres database, for fleets of
// test workers that should learn from each other's healed locators. The
// partial unique index enforces the idempotent-append contract server side,
// so concurrent workers cannot race duplicate confirmations in.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres verifies connectivity and ensures the schema exists.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateTable); err != nil {
		return nil, fmt.Errorf("failed to ensure locator table: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateIndex); err != nil {
		return nil, fmt.Errorf("failed to ensure locator index: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store.postgres"),
	}, nil
}

// RecordsFor returns the successful records for id, newest first.
func (s *PostgresStore) RecordsFor(ctx context.Context, id locator.Identity) ([]Record, error) {
	rows, err := s.pool.Query(ctx, sqlSelectRecords, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query locator records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var strategy string
		if err := rows.Scan(&strategy, &rec.Descriptor.Value, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan locator record: %w", err)
		}
		rec.Descriptor.Strategy = locator.Strategy(strategy)
		rec.Success = true
		if err := rec.Descriptor.Validate(); err != nil {
			s.log.Warn("Skipping stored record with invalid descriptor", zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locator records: %w", err)
	}
	return out, nil
}

// Append inserts rec; learned duplicates are swallowed by the index.
func (s *PostgresStore) Append(ctx context.Context, id locator.Identity, rec Record) error {
	if err := rec.Descriptor.Validate(); err != nil {
		return fmt.Errorf("refusing to append invalid descriptor: %w", err)
	}
	_, err := s.pool.Exec(ctx, sqlInsertRecord,
		string(id),
		string(rec.Descriptor.Strategy),
		rec.Descriptor.Value,
		rec.Success,
		rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert locator record: %w", err)
	}
	return nil
}

// Identities lists every identity with at least one record.
func (s *PostgresStore) Identities(ctx context.Context) ([]locator.Identity, error) {
	rows, err := s.pool.Query(ctx, sqlSelectIdentities)
	if err != nil {
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	var ids []locator.Identity
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		ids = append(ids, locator.Identity(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identities: %w", err)
	}
	return ids, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
