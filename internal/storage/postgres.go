package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryanbastic/go-geodrop/internal/object"
)

// PostgresStore implements ObjectStore on a single PostgreSQL table.
type PostgresStore struct {
	pool         *pgxpool.Pool
	table        string
	queryTimeout time.Duration
}

// NewPostgresStore creates an ObjectStore backed by table.
// queryTimeout sets the per-query context deadline; zero means no timeout.
func NewPostgresStore(pool *pgxpool.Pool, table string, queryTimeout time.Duration) *PostgresStore {
	return &PostgresStore{
		pool:         pool,
		table:        table,
		queryTimeout: queryTimeout,
	}
}

// withTimeout derives a child context with the configured query timeout.
// If queryTimeout is zero, the parent context is returned unchanged.
func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

func (s *PostgresStore) Insert(ctx context.Context, o *object.WorldObject, capacity *Capacity) (*object.WorldObject, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stored := o.Clone()
	stored.Version = 1
	body, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal object: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if capacity != nil {
			if err := s.checkCapacity(ctx, tx, capacity); err != nil {
				return err
			}
		}
		query := fmt.Sprintf(`
			INSERT INTO %s (id, kind, status, holder_id, version, body, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 1, $5, $6, $7)
		`, s.table)
		_, err := tx.Exec(ctx, query,
			stored.ID, string(stored.Kind), string(stored.Status), stored.HolderID, body, stored.CreatedAt, stored.UpdatedAt,
		)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		if errors.Is(err, ErrAtCapacity) {
			return nil, err
		}
		return nil, fmt.Errorf("insert object: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*object.WorldObject, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT version, body FROM %s WHERE id = $1`, s.table)
	o, err := scanObject(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*object.WorldObject, error) {
	query := fmt.Sprintf(`SELECT version, body FROM %s ORDER BY created_at ASC, id ASC`, s.table)
	return s.queryObjects(ctx, "list objects", query)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status object.Status) ([]*object.WorldObject, error) {
	query := fmt.Sprintf(`SELECT version, body FROM %s WHERE status = $1 ORDER BY created_at ASC, id ASC`, s.table)
	return s.queryObjects(ctx, "list objects by status", query, string(status))
}

func (s *PostgresStore) ListHeldBy(ctx context.Context, holderID string) ([]*object.WorldObject, error) {
	query := fmt.Sprintf(`
		SELECT version, body FROM %s
		WHERE holder_id = $1 AND status = $2
		ORDER BY created_at ASC, id ASC
	`, s.table)
	return s.queryObjects(ctx, "list held objects", query, holderID, string(object.StatusHeld))
}

func (s *PostgresStore) CountHeld(ctx context.Context, holderID string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE holder_id = $1 AND status = $2`, s.table)
	var n int
	if err := s.pool.QueryRow(ctx, query, holderID, string(object.StatusHeld)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count held: %w", err)
	}
	return n, nil
}

// UpdateIf locks the row, checks status and version, then capacity, so a
// lost race is a conflict even for a full holder. Capacity checks serialise
// per holder with a transaction-scoped advisory lock.
func (s *PostgresStore) UpdateIf(ctx context.Context, o *object.WorldObject, cond Condition) (*object.WorldObject, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stored := o.Clone()
	stored.Version = cond.Version + 1
	body, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal object: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			status  string
			version int64
		)
		lock := fmt.Sprintf(`SELECT status, version FROM %s WHERE id = $1 FOR UPDATE`, s.table)
		if err := tx.QueryRow(ctx, lock, stored.ID).Scan(&status, &version); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if object.Status(status) != cond.Status || version != cond.Version {
			return ErrConflict
		}
		if cond.Capacity != nil {
			if err := s.checkCapacity(ctx, tx, cond.Capacity); err != nil {
				return err
			}
		}
		query := fmt.Sprintf(`
			UPDATE %s
			SET status = $2, holder_id = $3, version = $4, body = $5, updated_at = $6
			WHERE id = $1
		`, s.table)
		_, err := tx.Exec(ctx, query,
			stored.ID, string(stored.Status), stored.HolderID, stored.Version, body, stored.UpdatedAt,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrAtCapacity) {
			return nil, err
		}
		return nil, fmt.Errorf("update object: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) checkCapacity(ctx context.Context, tx pgx.Tx, c *Capacity) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.table+":"+c.HolderID); err != nil {
		return fmt.Errorf("lock holder: %w", err)
	}
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE holder_id = $1 AND status = $2`, s.table)
	var n int
	if err := tx.QueryRow(ctx, query, c.HolderID, string(object.StatusHeld)).Scan(&n); err != nil {
		return fmt.Errorf("count held: %w", err)
	}
	if n >= c.Max {
		return ErrAtCapacity
	}
	return nil
}

func (s *PostgresStore) queryObjects(ctx context.Context, op, query string, args ...any) ([]*object.WorldObject, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var objects []*object.WorldObject
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return objects, nil
}

func scanObject(row pgx.Row) (*object.WorldObject, error) {
	var (
		version int64
		body    []byte
	)
	if err := row.Scan(&version, &body); err != nil {
		return nil, err
	}
	var o object.WorldObject
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	o.Version = version
	return &o, nil
}
