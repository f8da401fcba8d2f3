// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package store keeps the network table image in SQLite.
//
// The image is stored as the same byte layout the scheduler exports, so a
// corrupted row is caught by the table checksum when it is loaded. The
// drivers table mirrors the identified records for inspection with the
// sqlite3 shell; it is never read back into the scheduler.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/Thermoquad/dalistat/pkg/gear"
)

const (
	dirPermissions    = 0750
	filePermissions   = 0600
	msPerSecond       = 1000
	connectionTimeout = 5 * time.Second
)

// ErrNoTable is returned by Load when nothing was saved yet
var ErrNoTable = errors.New("store: no network table saved")

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config contains the database settings
type Config struct {
	Path        string
	WALMode     bool
	BusyTimeout int // seconds
}

// Store is the SQLite network table store
type Store struct {
	db   *sql.DB
	path string
}

// Driver is one row of the drivers table
type Driver struct {
	Index        int
	ShortAddress byte
	Family       string
	RatedWattage uint32
	GTIN         string
}

// Open opens or creates the database and applies pending migrations
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d", cfg.Path, cfg.BusyTimeout*msPerSecond)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // one writer
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	_ = os.Chmod(cfg.Path, filePermissions)

	s := &Store{db: db, path: cfg.Path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		version := strings.SplitN(filepath.Base(name), "_", 2)[0]

		var n int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&n); err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if n > 0 {
			continue
		}

		body, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("starting transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", version, err)
		}
	}
	return nil
}

// Save replaces the stored image. session tags the commissioning run that
// produced it and may be empty. When the image is a valid table its
// records are mirrored into the drivers table.
func (s *Store) Save(ctx context.Context, image []byte, session string) error {
	if len(image) != gear.ImageLen {
		return fmt.Errorf("%w: %d bytes", gear.ErrImageLength, len(image))
	}

	var t gear.NetworkTable
	valid := t.Load(image) == nil

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO network_table (id, image, session, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET image = excluded.image, session = excluded.session, updated_at = excluded.updated_at`,
		image, session, time.Now().Unix()); err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM drivers"); err != nil {
		return fmt.Errorf("clearing drivers: %w", err)
	}
	if valid {
		for i := 0; i < t.Identified(); i++ {
			rec := t.Record(i)
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO drivers (idx, short_addr, family, rated_wattage, gtin) VALUES (?, ?, ?, ?, ?)",
				i, rec.ShortAddress, rec.Family.String(), rec.RatedWattage, rec.Bank0.GTIN.String()); err != nil {
				return fmt.Errorf("saving driver %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing table: %w", err)
	}
	return nil
}

// Load returns the stored image. It is not validated here.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	var image []byte
	err := s.db.QueryRowContext(ctx, "SELECT image FROM network_table WHERE id = 1").Scan(&image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoTable
	}
	if err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}
	return image, nil
}

// Session returns the session id and time of the last save
func (s *Store) Session(ctx context.Context) (string, time.Time, error) {
	var session string
	var updated int64
	err := s.db.QueryRowContext(ctx, "SELECT session, updated_at FROM network_table WHERE id = 1").Scan(&session, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, ErrNoTable
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("loading session: %w", err)
	}
	return session, time.Unix(updated, 0), nil
}

// Drivers returns the mirrored driver rows in index order
func (s *Store) Drivers(ctx context.Context) ([]Driver, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT idx, short_addr, family, rated_wattage, gtin FROM drivers ORDER BY idx")
	if err != nil {
		return nil, fmt.Errorf("querying drivers: %w", err)
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.Index, &d.ShortAddress, &d.Family, &d.RatedWattage, &d.GTIN); err != nil {
			return nil, fmt.Errorf("scanning driver: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Erase removes the stored table
func (s *Store) Erase(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM network_table"); err != nil {
		return fmt.Errorf("erasing image: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM drivers"); err != nil {
		return fmt.Errorf("erasing drivers: %w", err)
	}
	return tx.Commit()
}
