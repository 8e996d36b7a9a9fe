package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ryanbastic/go-geodrop/internal/object"
)

// SQLiteStore implements ObjectStore on an embedded SQLite file. The pool is
// limited to one connection so every transaction is serialised.
type SQLiteStore struct {
	db           *sql.DB
	table        string
	queryTimeout time.Duration
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path, table string, queryTimeout time.Duration) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := RunMigrationsForSQLite(ctx, db, table); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, table: table, queryTimeout: queryTimeout}, nil
}

func initPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Insert(ctx context.Context, o *object.WorldObject, capacity *Capacity) (*object.WorldObject, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stored := o.Clone()
	stored.Version = 1
	body, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal object: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if capacity != nil {
			if err := s.checkCapacity(ctx, tx, capacity); err != nil {
				return err
			}
		}
		query := fmt.Sprintf(`
			INSERT INTO %[1]s (id, seq, kind, status, holder_id, version, body, created_at, updated_at)
			VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM %[1]s), ?, ?, ?, 1, ?, ?, ?)
		`, s.table)
		_, err := tx.ExecContext(ctx, query,
			stored.ID.String(), string(stored.Kind), string(stored.Status), stored.HolderID, body,
			stored.CreatedAt.UnixNano(), stored.UpdatedAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAtCapacity) {
			return nil, err
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert object: %w", err)
	}
	return stored, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*object.WorldObject, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT version, body FROM %s WHERE id = ?`, s.table)
	o, err := scanSQLiteObject(s.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return o, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*object.WorldObject, error) {
	query := fmt.Sprintf(`SELECT version, body FROM %s ORDER BY seq ASC`, s.table)
	return s.queryObjects(ctx, "list objects", query)
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, status object.Status) ([]*object.WorldObject, error) {
	query := fmt.Sprintf(`SELECT version, body FROM %s WHERE status = ? ORDER BY seq ASC`, s.table)
	return s.queryObjects(ctx, "list objects by status", query, string(status))
}

func (s *SQLiteStore) ListHeldBy(ctx context.Context, holderID string) ([]*object.WorldObject, error) {
	query := fmt.Sprintf(`SELECT version, body FROM %s WHERE holder_id = ? AND status = ? ORDER BY seq ASC`, s.table)
	return s.queryObjects(ctx, "list held objects", query, holderID, string(object.StatusHeld))
}

func (s *SQLiteStore) CountHeld(ctx context.Context, holderID string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE holder_id = ? AND status = ?`, s.table)
	var n int
	if err := s.db.QueryRowContext(ctx, query, holderID, string(object.StatusHeld)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count held: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) UpdateIf(ctx context.Context, o *object.WorldObject, cond Condition) (*object.WorldObject, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stored := o.Clone()
	stored.Version = cond.Version + 1
	body, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal object: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var (
			status  string
			version int64
		)
		query := fmt.Sprintf(`SELECT status, version FROM %s WHERE id = ?`, s.table)
		if err := tx.QueryRowContext(ctx, query, stored.ID.String()).Scan(&status, &version); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
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
		update := fmt.Sprintf(`
			UPDATE %s SET status = ?, holder_id = ?, version = ?, body = ?, updated_at = ?
			WHERE id = ? AND version = ?
		`, s.table)
		_, err := tx.ExecContext(ctx, update,
			string(stored.Status), stored.HolderID, stored.Version, body, stored.UpdatedAt.UnixNano(),
			stored.ID.String(), cond.Version,
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

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) checkCapacity(ctx context.Context, tx *sql.Tx, c *Capacity) error {
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE holder_id = ? AND status = ?`, s.table)
	var n int
	if err := tx.QueryRowContext(ctx, query, c.HolderID, string(object.StatusHeld)).Scan(&n); err != nil {
		return fmt.Errorf("count held: %w", err)
	}
	if n >= c.Max {
		return ErrAtCapacity
	}
	return nil
}

func (s *SQLiteStore) queryObjects(ctx context.Context, op, query string, args ...any) ([]*object.WorldObject, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var objects []*object.WorldObject
	for rows.Next() {
		o, err := scanSQLiteObject(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteObject(row rowScanner) (*object.WorldObject, error) {
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
