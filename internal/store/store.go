// Package store keeps tile payloads in a SQLite file so a downloaded region
// can be served offline.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Faultbox/globestream/internal/network"
)

const schema = `create table if not exists tiles (path text primary key, data blob not null);`

// Store is a SQLite tile file.
type Store struct {
	db   *sql.DB
	path string
	log  *zap.Logger
}

// Item is one payload for PutBatch.
type Item struct {
	Path string
	Data []byte
}

// Open opens or creates the store at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	// One connection keeps concurrent writers from tripping over the file lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tiles table in %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring %s: %w", path, err)
	}

	return &Store{db: db, path: path, log: log.Named("store")}, nil
}

// Put stores or replaces a payload.
func (s *Store) Put(ctx context.Context, path string, data []byte) error {
	_, err := s.db.ExecContext(ctx, "insert or replace into tiles (path, data) values (?, ?)", path, data)
	if err != nil {
		return fmt.Errorf("storing %s: %w", path, err)
	}
	return nil
}

// PutBatch stores several payloads in one transaction.
func (s *Store) PutBatch(ctx context.Context, items []Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "insert or replace into tiles (path, data) values (?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing batch: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.Path, it.Data); err != nil {
			tx.Rollback()
			return fmt.Errorf("storing %s: %w", it.Path, err)
		}
	}
	return tx.Commit()
}

// Has reports whether a payload exists.
func (s *Store) Has(ctx context.Context, path string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "select count(*) from tiles where path = ?", path).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("looking up %s: %w", path, err)
	}
	return n > 0, nil
}

// Count returns the number of stored payloads.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "select count(*) from tiles").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tiles: %w", err)
	}
	return n, nil
}

// Read returns a byte range of a payload. Missing payloads return
// network.ErrNotFound.
func (s *Store) Read(ctx context.Context, path string, rng network.Range) ([]byte, error) {
	var row *sql.Row
	if rng.Length > 0 {
		row = s.db.QueryRowContext(ctx,
			"select substr(data, ?, ?) from tiles where path = ?", rng.Offset+1, rng.Length, path)
	} else {
		row = s.db.QueryRowContext(ctx,
			"select substr(data, ?) from tiles where path = ?", rng.Offset+1, path)
	}

	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, network.ErrNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Fetcher serves sqlite servers, opening each file on first use.
type Fetcher struct {
	mu     sync.Mutex
	stores map[string]*Store
	log    *zap.Logger
}

// NewFetcher creates a fetcher for sqlite servers.
func NewFetcher(log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{stores: make(map[string]*Store), log: log}
}

// Fetch implements network.Fetcher. The server URL is the database path.
func (f *Fetcher) Fetch(ctx context.Context, srv network.Server, path string, rng network.Range) ([]byte, error) {
	s, err := f.open(srv.URL)
	if err != nil {
		return nil, &network.Error{Op: "dial", Server: srv.Name, Path: path, Err: err}
	}
	data, err := s.Read(ctx, path, rng)
	if err != nil && !errors.Is(err, network.ErrNotFound) {
		return nil, &network.Error{Op: "read", Server: srv.Name, Path: path, Err: err}
	}
	return data, err
}

func (f *Fetcher) open(path string) (*Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.stores[path]; ok {
		return s, nil
	}
	s, err := Open(path, f.log)
	if err != nil {
		return nil, err
	}
	f.stores[path] = s
	return s, nil
}

// Close closes every opened store.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for path, s := range f.stores {
		errs = append(errs, s.Close())
		delete(f.stores, path)
	}
	return errors.Join(errs...)
}
