// Package pgx implements store.GraphStore on PostgreSQL.
//
// Entity locks are transaction-scoped advisory locks keyed by entity id, so
// they are released on commit or rollback and never outlive a failed call.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	BeginTx(ctx context.Context, txOptions pgxv5.TxOptions) (pgxv5.Tx, error)
}

// dbTx is the subset of pgx.Tx the queries need.
type dbTx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

// GraphDBStorage implements store.GraphStore on top of a pgx pool or connection.
type GraphDBStorage struct {
	conn pgxIConn
}

var _ store.GraphStore = (*GraphDBStorage)(nil)

// NewGraphDBStorageWithConnection creates a GraphDBStorage using an existing
// pool or connection. The schema must already be migrated, see Migrate.
func NewGraphDBStorageWithConnection(conn pgxIConn) *GraphDBStorage {
	return &GraphDBStorage{conn: conn}
}

// WithTx runs fn in a read-committed transaction that is committed only if fn
// returns nil.
func (s *GraphDBStorage) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.run(ctx, pgxv5.TxOptions{IsoLevel: pgxv5.ReadCommitted}, fn)
}

// Read runs fn in a read-only repeatable-read transaction so that every
// query inside fn sees the same snapshot.
func (s *GraphDBStorage) Read(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.run(ctx, pgxv5.TxOptions{IsoLevel: pgxv5.RepeatableRead, AccessMode: pgxv5.ReadOnly}, fn)
}

func (s *GraphDBStorage) run(ctx context.Context, opts pgxv5.TxOptions, fn func(tx store.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if err := fn(&pgTx{db: tx}); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// Postgres error codes that mean a concurrent transaction got in the way.
var conflictCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// mapError turns contention reported by Postgres into common.ErrLockConflict
// so that callers retry it like a failed advisory lock.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := conflictCodes[pgErr.Code]; ok {
			return fmt.Errorf("%w: %s", common.ErrLockConflict, pgErr.Message)
		}
	}
	return err
}

type pgTx struct {
	db dbTx
}

var _ store.Tx = (*pgTx)(nil)

const tryLockSQL = `SELECT pg_try_advisory_xact_lock($1)`

// LockEntities takes the advisory locks in ascending id order so that two
// transactions locking overlapping sets cannot deadlock.
func (t *pgTx) LockEntities(ctx context.Context, ids []int64) error {
	ids = common.SortedIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	rows, err := t.db.Query(ctx, `SELECT id FROM entities WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return err
	}
	found, err := pgxv5.CollectRows(rows, pgxv5.RowTo[int64])
	if err != nil {
		return err
	}
	if len(found) != len(ids) {
		for i, id := range ids {
			if i >= len(found) || found[i] != id {
				return common.NotFound("entity", id)
			}
		}
	}

	for _, id := range ids {
		var ok bool
		if err := t.db.QueryRow(ctx, tryLockSQL, id).Scan(&ok); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("entity %d: %w", id, common.ErrLockConflict)
		}
	}
	return nil
}

func noRows(err error) bool {
	return errors.Is(err, pgxv5.ErrNoRows)
}

// orEmpty keeps NOT NULL array columns from receiving NULL.
func orEmpty(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
