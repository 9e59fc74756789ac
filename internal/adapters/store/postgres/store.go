// Package postgres implements [ports.Store] on PostgreSQL using pgx/v5 and a
// pgxpool connection pool. It is the production store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.Store = (*Store)(nil)

// PostgreSQL error codes mapped to domain sentinels.
const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL implementation of [ports.Store].
type Store struct {
	pool   *pgxpool.Pool
	q      querier
	inTx   bool
	logger *slog.Logger
	now    func() time.Time
}

// Open creates a pool for databaseURL, verifies connectivity and applies
// migrations from migrationFS.
func Open(ctx context.Context, databaseURL string, maxConns int32, migrationFS fs.FS, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &Store{
		pool:   pool,
		q:      pool,
		logger: logger.With(slog.String("component", "store_postgres")),
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if migrationFS != nil {
		if err := s.migrate(ctx, migrationFS); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close releases the pool. Calling Close on a transaction-bound Store is a
// no-op.
func (s *Store) Close() error {
	if !s.inTx {
		s.pool.Close()
	}
	return nil
}

// Name implements [ports.HealthChecker].
func (s *Store) Name() string {
	return "database"
}

// HealthCheck pings the pool.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// WithinTx runs fn in a transaction. A nested call joins the outer
// transaction; only the outermost call commits.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		bound := &Store{pool: s.pool, q: tx, inTx: true, logger: s.logger, now: s.now}
		return fn(ctx, bound)
	})
}

func (s *Store) migrate(ctx context.Context, filesystem fs.FS) error {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(filesystem, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		body, err := fs.ReadFile(filesystem, entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		applied := false
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, entry.Name())
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			applied = true
			_, err = tx.Exec(ctx, string(body))
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if applied {
			s.logger.Info("applied migration", slog.String("version", entry.Name()))
		}
	}

	return nil
}

func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", op, domain.ErrDuplicate)
		case codeCheckViolation:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrValidation, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func expectOne(op string, tag pgconn.CommandTag, onZero error) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, onZero)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
