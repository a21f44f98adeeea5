// Package storage persists scripts in a SQLite database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/zond/juicebot"

	_ "modernc.org/sqlite"
)

const (
	schema = `
CREATE TABLE IF NOT EXISTS scripts (
  name TEXT PRIMARY KEY NOT NULL,
  code TEXT NOT NULL,
  created INTEGER NOT NULL,
  updated INTEGER NOT NULL DEFAULT 0
)`
)

type Script struct {
	Name    string `db:"name"`
	Code    string `db:"code"`
	Created int64  `db:"created"`
	// Updated is zero until the code has been replaced once.
	Updated int64 `db:"updated"`
}

func (s *Script) CreatedAt() time.Time {
	return time.Unix(0, s.Created)
}

func (s *Script) UpdatedAt() time.Time {
	if s.Updated == 0 {
		return time.Time{}
	}
	return time.Unix(0, s.Updated)
}

func (s *Script) String() string {
	return fmt.Sprintf("%+v", *s)
}

type Storage struct {
	db    *sqlx.DB
	fresh bool
}

// New opens the script database at path, creating it and the schema if necessary.
func New(ctx context.Context, path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, juicebot.WithStack(err)
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, juicebot.WithStack(err)
	}
	// SQLite serializes writers anyway, and a single connection keeps Upsert transactions from hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s := &Storage{db: db}
	tables := 0
	if err := db.GetContext(ctx, &tables, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'scripts'"); err != nil {
		db.Close()
		return nil, juicebot.WithStack(err)
	}
	s.fresh = tables == 0
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, juicebot.WithStack(err)
	}
	return s, nil
}

// Fresh returns whether the scripts table was created when this Storage was opened.
func (s *Storage) Fresh() bool {
	return s.fresh
}

func (s *Storage) Close() error {
	return juicebot.WithStack(s.db.Close())
}

func (s *Storage) Exists(ctx context.Context, name string) (bool, error) {
	count := 0
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM scripts WHERE name = ?", name); err != nil {
		return false, juicebot.WithStack(err)
	}
	return count > 0, nil
}

// Fetch returns the named script, or an error wrapping os.ErrNotExist.
func (s *Storage) Fetch(ctx context.Context, name string) (*Script, error) {
	result := &Script{}
	if err := s.db.GetContext(ctx, result, "SELECT * FROM scripts WHERE name = ?", name); errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(os.ErrNotExist, "script %q", name)
	} else if err != nil {
		return nil, juicebot.WithStack(err)
	}
	return result, nil
}

// List returns the names of all scripts in lexical order.
func (s *Storage) List(ctx context.Context) ([]string, error) {
	result := []string{}
	if err := s.db.SelectContext(ctx, &result, "SELECT name FROM scripts ORDER BY name"); err != nil {
		return nil, juicebot.WithStack(err)
	}
	return result, nil
}

// All returns every script in lexical order.
func (s *Storage) All(ctx context.Context) ([]Script, error) {
	result := []Script{}
	if err := s.db.SelectContext(ctx, &result, "SELECT * FROM scripts ORDER BY name"); err != nil {
		return nil, juicebot.WithStack(err)
	}
	return result, nil
}

// Upsert inserts a new script, or replaces the code of an existing one and bumps its update time.
// It returns whether the script was created.
func (s *Storage) Upsert(ctx context.Context, name string, code string) (bool, error) {
	created := false
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		count := 0
		if err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM scripts WHERE name = ?", name); err != nil {
			return juicebot.WithStack(err)
		}
		now := time.Now().UnixNano()
		if count == 0 {
			created = true
			_, err := tx.ExecContext(ctx, "INSERT INTO scripts (name, code, created, updated) VALUES (?, ?, ?, 0)", name, code, now)
			return juicebot.WithStack(err)
		}
		_, err := tx.ExecContext(ctx, "UPDATE scripts SET code = ?, updated = ? WHERE name = ?", code, now, name)
		return juicebot.WithStack(err)
	})
	return created, err
}

// Delete removes the named script. Deleting a missing script returns an error wrapping os.ErrNotExist.
func (s *Storage) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM scripts WHERE name = ?", name)
	if err != nil {
		return juicebot.WithStack(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return juicebot.WithStack(err)
	}
	if affected == 0 {
		return errors.Wrapf(os.ErrNotExist, "script %q", name)
	}
	return nil
}

func (s *Storage) withTx(ctx context.Context, f func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return juicebot.WithStack(err)
	}
	if err := f(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Wrapf(err, "rolling back failed: %v", rerr)
		}
		return err
	}
	return juicebot.WithStack(tx.Commit())
}
