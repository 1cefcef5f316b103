package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	quotaTable = "quota"

	// DefaultCounterName names the row holding the daily counter.
	DefaultCounterName = "daily"
)

// SQLite keeps the counter in a SQLite file, so separate invocations of the
// CLI on one machine share a single daily budget.
type SQLite struct {
	db   *sql.DB
	name string
}

// OpenSQLite opens (and if needed creates) the quota table in the database
// at path. Writers in other processes are waited for rather than failed.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite quota path is empty")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = path + "?_busy_timeout=5000&_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening quota database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := NewSQLite(db, "")
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite uses an already open database. An empty name uses
// DefaultCounterName.
func NewSQLite(db *sql.DB, name string) (*SQLite, error) {
	if name == "" {
		name = DefaultCounterName
	}
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS quota (
		name TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		used INTEGER NOT NULL DEFAULT 0
	);`)
	if err != nil {
		return nil, fmt.Errorf("initializing quota schema: %w", err)
	}
	return &SQLite{db: db, name: name}, nil
}

func (s *SQLite) Load(ctx context.Context, day string) (int, error) {
	var used int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.rollover(ctx, tx, day); err != nil {
			return err
		}
		var err error
		used, err = s.used(ctx, tx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite quota load: %w", err)
	}
	return used, nil
}

// Increment is a compare-and-set: the update only matches while the row is
// stamped with day and still below max.
func (s *SQLite) Increment(ctx context.Context, day string, max int) (int, bool, error) {
	var (
		used int
		ok   bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.rollover(ctx, tx, day); err != nil {
			return err
		}
		query, args, err := sq.Update(quotaTable).
			Set("used", sq.Expr("used + 1")).
			Where(sq.Eq{"name": s.name, "date": day}).
			Where(sq.Lt{"used": max}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building update: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		ok = n == 1
		used, err = s.used(ctx, tx)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("sqlite quota increment: %w", err)
	}
	return used, ok, nil
}

func (s *SQLite) Reset(ctx context.Context, day string) error {
	query, args, err := sq.Insert(quotaTable).
		Columns("name", "date", "used").
		Values(s.name, day, 0).
		Suffix("ON CONFLICT(name) DO UPDATE SET date = excluded.date, used = 0").
		ToSql()
	if err != nil {
		return fmt.Errorf("building reset: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite quota reset: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// rollover creates the row for day, or zeroes it when it still holds an
// earlier day's count.
func (s *SQLite) rollover(ctx context.Context, tx *sql.Tx, day string) error {
	query, args, err := sq.Insert(quotaTable).
		Columns("name", "date", "used").
		Values(s.name, day, 0).
		Suffix("ON CONFLICT(name) DO UPDATE SET date = excluded.date, used = 0 WHERE quota.date <> excluded.date").
		ToSql()
	if err != nil {
		return fmt.Errorf("building rollover: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLite) used(ctx context.Context, tx *sql.Tx) (int, error) {
	query, args, err := sq.Select("used").From(quotaTable).Where(sq.Eq{"name": s.name}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building select: %w", err)
	}
	var used int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&used); err != nil {
		return 0, err
	}
	return used, nil
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
