// Package postgres is a kv.Store over the kv_entries table created by the embedded
// migrations in internal/db.
package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jcarweb/repuestospro-sub005/internal/kv"
)

const (
	qGet         = `SELECT value FROM kv_entries WHERE key = $1`
	qPut         = `INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, now()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	qPutIfAbsent = `INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, now()) ON CONFLICT (key) DO NOTHING`
	qDelete      = `DELETE FROM kv_entries WHERE key = $1`
	qList        = `SELECT key FROM kv_entries WHERE substr(key, 1, length($1)) = $1 ORDER BY key`
)

// Store implements kv.Store on a *sql.DB opened with the pgx driver.
type Store struct {
	db      *sql.DB
	ownConn bool
}

// New returns a Store using db. Close on the Store does not close db.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, kv.Wrap("open", "", errors.New("postgres: nil db"))
	}
	return &Store{db: db}, nil
}

// NewOwned is New, but Close also closes db.
func NewOwned(db *sql.DB) (*Store, error) {
	s, err := New(db)
	if err != nil {
		return nil, err
	}
	s.ownConn = true
	return s, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, qGet, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, kv.Wrap("get", key, err)
	}
	if v == nil {
		v = []byte{}
	}
	return v, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, qPut, key, value)
	return kv.Wrap("put", key, err)
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	if value == nil {
		value = []byte{}
	}
	res, err := s.db.ExecContext(ctx, qPutIfAbsent, key, value)
	if err != nil {
		return false, kv.Wrap("put_if_absent", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, kv.Wrap("put_if_absent", key, err)
	}
	return n == 1, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, qDelete, key)
	return kv.Wrap("delete", key, err)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, qList, prefix)
	if err != nil {
		return nil, kv.Wrap("list", prefix, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, kv.Wrap("list", prefix, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, kv.Wrap("list", prefix, err)
	}
	return keys, nil
}

func (s *Store) Close() error {
	if !s.ownConn {
		return nil
	}
	return s.db.Close()
}
