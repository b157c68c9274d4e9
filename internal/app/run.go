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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ngnhng/durablereplay/examples/scenarios"
	"github.com/ngnhng/durablereplay/internal/config"
	"github.com/ngnhng/durablereplay/internal/logger"
	"github.com/ngnhng/durablereplay/sdk/worker"
)

// Options are command-line overrides applied on top of the environment.
type Options struct {
	NATSHost     string
	NATSPort     string
	StoreBackend string
	QueueBackend string
	TaskList     string
	HTTPAddr     string

	// Examples whose client side runs once the worker is up.
	Examples []string

	// ReplayFile replays a history file and exits.
	ReplayFile string

	// ExportWorkflowID writes that workflow's current history to ExportPath and exits.
	ExportWorkflowID string
	ExportPath       string

	// ReplayWorkflowID replays that workflow's stored history and exits.
	ReplayWorkflowID string
}

func Run(ctx context.Context, opts Options) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	defer cfg.CloseFiles()

	log, err := logger.NewLogger(ctx, &logger.LoggerOptions{
		Debug:          cfg.Mode == config.ModeDebug,
		Writers:        cfg.Writers(),
		Level:          cfg.LogLevel(),
		Format:         cfg.LogFormat(),
		SampleRate:     cfg.SampleRate(),
		Fields:         cfg.ExtraFields(),
		OTELExporter:   cfg.OTELExporter(),
		OTELEndpoint:   cfg.OTELEndpoint(),
		ServiceName:    cfg.ServiceName(),
		ServiceVersion: cfg.GetVersion(),
	})
	if err != nil {
		return err
	}
	slog.SetDefault(log.Slogger)
	defer func() {
		if err := log.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Error("failed to shut down logger provider", "error", err)
		}
	}()

	all := scenarios.All()

	if opts.ReplayFile != "" {
		codec, err := cfgCodec(cfg)
		if err != nil {
			return err
		}
		return ReplayFile(opts.ReplayFile, worker.ReplayerOptions{
			Codec:                    codec,
			Logger:                   log.Slogger,
			DeadlockDetectionTimeout: cfg.Worker.DeadlockDetectionTimeout,
		}, all...)
	}

	mgr, err := NewManager(ctx, cfg, log.Slogger)
	if err != nil {
		return err
	}

	switch {
	case opts.ExportWorkflowID != "":
		defer mgr.Shutdown()
		if opts.ExportPath == "" {
			return mgr.ExportHistory(ctx, os.Stdout, opts.ExportWorkflowID, "")
		}
		return mgr.ExportHistoryFile(ctx, opts.ExportPath, opts.ExportWorkflowID, "")
	case opts.ReplayWorkflowID != "":
		defer mgr.Shutdown()
		if err := mgr.ReplayExecution(ctx, opts.ReplayWorkflowID, "", all...); err != nil {
			return err
		}
		slog.Info("stored history replayed deterministically", "workflow_id", opts.ReplayWorkflowID)
		return nil
	}

	if err := mgr.Register(all...); err != nil {
		mgr.Shutdown()
		return err
	}
	selected := make([]scenarios.Example, 0, len(opts.Examples))
	for _, name := range opts.Examples {
		ex, ok := scenarios.Get(name)
		if !ok {
			mgr.Shutdown()
			return fmt.Errorf("unknown example %q, available: %v", name, scenarios.Names())
		}
		selected = append(selected, ex)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return mgr.Run(ctx, selected...)
}

func (o Options) apply(cfg *config.Config) {
	if o.NATSHost != "" || o.NATSPort != "" {
		if o.NATSHost != "" {
			cfg.NATS.Host = o.NATSHost
		}
		if o.NATSPort != "" {
			cfg.NATS.Port = o.NATSPort
		}
		cfg.NATS.URL = ""
		cfg.NATS.Resolve()
	}
	if o.StoreBackend != "" {
		cfg.Store.Backend = o.StoreBackend
	}
	if o.QueueBackend != "" {
		cfg.Queue.Backend = o.QueueBackend
	}
	if o.TaskList != "" {
		cfg.Worker.TaskList = o.TaskList
	}
	if o.HTTPAddr != "" {
		cfg.HTTP.Addr = o.HTTPAddr
	}
}
