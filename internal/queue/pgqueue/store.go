// Package pgqueue implements the processing queue on PostgreSQL so several
// hosts can share one queue. Claims rely on FOR UPDATE SKIP LOCKED.
package pgqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"curator/internal/queue"
)

// querier is the subset of pgxpool.Pool and pgx.Tx the queries need.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a queue.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	db   querier
	opts queue.Options
}

var _ queue.Store = (*Store)(nil)

// Open connects to url, applies migrations and returns a ready store.
func Open(ctx context.Context, url string, opts queue.Options) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrationsUp(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStore(pool, opts), nil
}

// NewStore wraps an already migrated pool.
func NewStore(pool *pgxpool.Pool, opts queue.Options) *Store {
	return &Store{pool: pool, db: pool, opts: opts.WithDefaults()}
}

// Pool exposes the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) now() time.Time {
	return s.opts.Now().UTC()
}

// Ping verifies the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("queue database connection unavailable")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping queue database: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) execTx(ctx context.Context, fn func(*Store) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Never use the caller ctx for cleanup; it may already be cancelled.
		rbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			if err != nil {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			} else {
				err = fmt.Errorf("rollback failed: %w", rbErr)
			}
		}
	}()

	txStore := &Store{pool: s.pool, db: tx, opts: s.opts}
	if err = fn(txStore); err != nil {
		return err
	}

	commitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = tx.Commit(commitCtx); err != nil {
		return err
	}
	committed = true
	return nil
}
