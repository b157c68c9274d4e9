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

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ngnhng/durablereplay/api/serde"
	"github.com/ngnhng/durablereplay/examples/scenarios"
	"github.com/ngnhng/durablereplay/internal/config"
	httphandler "github.com/ngnhng/durablereplay/internal/handler/http"
	"github.com/ngnhng/durablereplay/internal/store"
	"github.com/ngnhng/durablereplay/sdk/client"
	"github.com/ngnhng/durablereplay/sdk/worker"
)

// Manager owns the history store, the task queue and a worker built from one
// configuration.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger

	conn   *client.NATSConn
	memq   interface{ Close() error }
	store  *store.Store
	codec  serde.Codec
	client client.Client
	worker worker.Worker
}

func NewManager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	codec, err := cfgCodec(cfg)
	if err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, logger: logger, codec: codec}

	if cfg.UsesNATS() {
		conn, err := client.ConnectNATS(&cfg.NATS, cfg.NATS.Namespace, codec, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		m.conn = conn
	}

	var storeOpts store.Options
	storeOpts.Logger = logger
	if m.conn != nil {
		storeOpts.NATS = m.conn.NATS()
	}
	s, err := store.Open(ctx, cfg.Store, storeOpts)
	if err != nil {
		m.Shutdown()
		return nil, err
	}
	m.store = s

	var queue client.TaskQueue
	if cfg.Queue.Backend == config.QueueNATS {
		queue = m.conn
	} else {
		memq := client.NewMemoryTaskQueue()
		m.memq, queue = memq, memq
	}

	m.client, err = client.NewClient(&client.Options{
		EventLog:           s.Log,
		TaskQueue:          queue,
		Codec:              codec,
		Logger:             logger,
		ResultPollInterval: cfg.Client.ResultPollInterval,
	})
	if err != nil {
		m.Shutdown()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	m.worker, err = worker.NewWorker(m.client, worker.Options{
		TaskList:                   cfg.Worker.TaskList,
		MaxConcurrentWorkflowTasks: cfg.Worker.MaxConcurrentWorkflowTasks,
		MaxConcurrentActivities:    cfg.Worker.MaxConcurrentActivities,
		DeadlockDetectionTimeout:   cfg.Worker.DeadlockDetectionTimeout,
		Logger:                     logger,
	})
	if err != nil {
		m.Shutdown()
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	return m, nil
}

// Client returns the manager's workflow client.
func (m *Manager) Client() client.Client { return m.client }

// Codec returns the configured payload codec.
func (m *Manager) Codec() serde.Codec { return m.codec }

// Register registers every example's workflows and activities on the worker.
func (m *Manager) Register(examples ...scenarios.Example) error {
	for _, ex := range examples {
		if err := ex.Register(m.worker); err != nil {
			return fmt.Errorf("register example %s: %w", ex.Name(), err)
		}
	}
	return nil
}

// Run runs the worker and then the client side of examples, until ctx is done
// or a component fails. Examples run one after another; Run keeps the worker
// serving after they finish.
func (m *Manager) Run(ctx context.Context, examples ...scenarios.Example) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m.logger.Info("starting worker",
			"task_list", m.cfg.Worker.TaskList, "store", m.store.Backend, "queue", m.cfg.Queue.Backend)
		return m.worker.Run(gCtx)
	})

	if m.cfg.HTTP.Addr != "" {
		srv := httphandler.NewServer(m.cfg.HTTP.Addr, m.client, m.readinessChecks(), m.logger)
		g.Go(func() error { return srv.Start(gCtx) })
	}

	if len(examples) > 0 {
		g.Go(func() error {
			for _, ex := range examples {
				m.logger.Info("running example", "example", ex.Name())
				if err := ex.RunClient(gCtx, m.client, m.cfg.Worker.TaskList); err != nil {
					if gCtx.Err() != nil {
						return nil
					}
					return fmt.Errorf("example %s: %w", ex.Name(), err)
				}
			}
			return nil
		})
	}

	err := g.Wait()

	m.logger.Info("initiating graceful shutdown")
	m.Shutdown()

	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("manager stopped with error", "error", err)
		return err
	}

	m.logger.Info("manager shutdown complete")
	return nil
}

func (m *Manager) readinessChecks() []httphandler.Check {
	s := m.store
	checks := []httphandler.Check{{Name: "store", Run: s.Ping}}
	if conn := m.conn; conn != nil {
		checks = append(checks, httphandler.Check{Name: "nats", Run: func() error {
			if !conn.IsConnected() {
				return errors.New("NATS disconnected")
			}
			return nil
		}})
	}
	return checks
}

// Shutdown releases everything NewManager opened.
func (m *Manager) Shutdown() {
	if m.memq != nil {
		_ = m.memq.Close()
		m.memq = nil
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.logger.Error("failed to close history store", "error", err)
		}
		m.store = nil
	}
	if m.conn != nil {
		m.logger.Info("closing NATS connection")
		m.conn.Close()
		m.conn = nil
	}
}

func cfgCodec(cfg *config.Config) (serde.Codec, error) {
	codec, ok := serde.ByName(cfg.Client.Codec)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", cfg.Client.Codec)
	}
	return codec, nil
}
