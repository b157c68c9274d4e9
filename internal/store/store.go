// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store opens the chronicle event log that holds run histories.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeluxeOwl/chronicle/event"
	"github.com/DeluxeOwl/chronicle/eventlog"
	"github.com/avast/retry-go/v4"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ngnhng/durablereplay/api"
	"github.com/ngnhng/durablereplay/internal/config"
)

const (
	defaultHistoryTable = "workflow_history"
	pingAttempts        = 5
	pingDelay           = 500 * time.Millisecond
)

// Store is an opened event log plus whatever must be closed with it.
type Store struct {
	Log     event.Log
	Backend string

	closers []func() error
	pings   []func() error
}

// Options carries the dependencies some backends need.
type Options struct {
	// NATS is required by the nats backend.
	NATS *nats.Conn

	// InMemoryFS keeps the pebble backend off disk.
	InMemoryFS bool

	Logger *slog.Logger
}

// Open opens the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", cfg.Backend)

	s := &Store{Backend: cfg.Backend}
	var err error
	switch cfg.Backend {
	case config.StoreMemory, "":
		s.Backend = config.StoreMemory
		s.Log = eventlog.NewMemory()
	case config.StoreSqlite:
		err = s.openSqlite(ctx, cfg)
	case config.StorePebble:
		err = s.openPebble(cfg, opts.InMemoryFS)
	case config.StorePostgres:
		err = s.openPostgres(ctx, cfg, logger)
	case config.StoreNATS:
		err = s.openNATS(ctx, cfg, opts.NATS)
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}

	logger.Info("history store opened")
	return s, nil
}

func (s *Store) openSqlite(ctx context.Context, cfg config.StoreConfig) error {
	db, err := sql.Open("sqlite3", cfg.SqlitePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", cfg.SqlitePath, err)
	}
	s.closers = append(s.closers, db.Close)
	s.pings = append(s.pings, db.Ping)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite %s: %w", cfg.SqlitePath, err)
	}

	var opts []eventlog.SqliteOption
	if cfg.Table != "" {
		opts = append(opts, eventlog.SqliteTableName(cfg.Table))
	}
	log, err := eventlog.NewSqlite(db, opts...)
	if err != nil {
		return fmt.Errorf("sqlite event log: %w", err)
	}
	s.Log = log
	return nil
}

func (s *Store) openPebble(cfg config.StoreConfig, inMemory bool) error {
	popts := &pebble.Options{}
	if inMemory {
		popts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(cfg.PebbleDir, popts)
	if err != nil {
		return fmt.Errorf("open pebble %s: %w", cfg.PebbleDir, err)
	}
	s.closers = append(s.closers, db.Close)
	s.Log = eventlog.NewPebble(db)
	return nil
}

func (s *Store) openPostgres(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) error {
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	s.closers = append(s.closers, db.Close)
	s.pings = append(s.pings, db.Ping)

	err = retry.Do(
		func() error { return db.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(pingAttempts),
		retry.Delay(pingDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("postgres not ready", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = defaultHistoryTable
	}
	log, err := eventlog.NewPostgres(db, eventlog.PostgresTableName(table))
	if err != nil {
		return fmt.Errorf("postgres event log: %w", err)
	}
	s.Log = log
	return nil
}

func (s *Store) openNATS(ctx context.Context, cfg config.StoreConfig, nc *nats.Conn) error {
	if nc == nil {
		return errors.New("nats store backend needs a NATS connection")
	}
	stream := cfg.NATSStream
	if stream == "" {
		stream = api.HistoryStream
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}
	log, err := newNATSLog(ctx, js, stream)
	if err != nil {
		return fmt.Errorf("nats event log: %w", err)
	}
	s.Log = log
	s.pings = append(s.pings, func() error {
		if !nc.IsConnected() {
			return fmt.Errorf("nats connection %s", nc.Status())
		}
		return nil
	})
	return nil
}

// Ping reports whether the backend is reachable. In-process backends are
// always reachable.
func (s *Store) Ping() error {
	for _, ping := range s.pings {
		if err := ping(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the backend in reverse order of opening.
func (s *Store) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
