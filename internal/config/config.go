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

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	env "github.com/caarlos0/env/v11"
	sdkconfig "github.com/ngnhng/durablereplay/sdk/config"
)

// Mode selects between the human-readable debug logger and the release
// logger that exports to OpenTelemetry.
type Mode string

const (
	ModeDebug   Mode = "debug"
	ModeRelease Mode = "release"
)

// Store backends understood by StoreConfig.Backend.
const (
	StoreMemory   = "memory"
	StoreSqlite   = "sqlite"
	StorePebble   = "pebble"
	StorePostgres = "postgres"
	StoreNATS     = "nats"
)

// Queue backends understood by QueueConfig.Backend.
const (
	QueueMemory = "memory"
	QueueNATS   = "nats"
)

// Config holds the complete application configuration
type Config struct {
	Service string                 `json:"service_name" env:"APP_NAME"    envDefault:"durablereplay"`
	Version string                 `json:"version"      env:"VERSION"     envDefault:"v0.1.0"`
	Mode    Mode                   `json:"mode"         env:"MODE"        envDefault:"debug"`
	Store   StoreConfig            `json:"store"        envPrefix:"STORE_"`
	Queue   QueueConfig            `json:"queue"        envPrefix:"QUEUE_"`
	NATS    sdkconfig.NATSConfig   `json:"nats"         envPrefix:"NATS_"`
	Worker  sdkconfig.WorkerConfig `json:"worker"       envPrefix:"WORKER_"`
	Client  sdkconfig.ClientConfig `json:"client"       envPrefix:"CLIENT_"`
	Logger  LoggerConfig           `json:"logger"       envPrefix:"LOG_"`
	HTTP    HTTPConfig             `json:"http"         envPrefix:"HTTP_"`
}

// StoreConfig selects the chronicle event log holding run histories.
type StoreConfig struct {
	Backend     string `json:"backend"      env:"BACKEND"      envDefault:"memory"` // memory|sqlite|pebble|postgres|nats
	SqlitePath  string `json:"sqlite_path"  env:"SQLITE_PATH"  envDefault:"durablereplay.db"`
	PebbleDir   string `json:"pebble_dir"   env:"PEBBLE_DIR"   envDefault:"durablereplay-pebble"`
	PostgresDSN string `json:"postgres_dsn" env:"POSTGRES_DSN"`
	Table       string `json:"table"        env:"TABLE"`
	NATSStream  string `json:"nats_stream"  env:"NATS_STREAM"`
}

// QueueConfig selects the task queue between clients and workers.
type QueueConfig struct {
	Backend string `json:"backend" env:"BACKEND" envDefault:"memory"` // memory|nats
}

// HTTPConfig configures the admin HTTP server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `json:"addr" env:"ADDR"`
}

func LoadConfig() (*Config, error) {
	sdk := sdkconfig.Default()
	sdk.NATS.ClientName = "durablereplay"
	cfg := Config{
		NATS:   sdk.NATS,
		Worker: sdk.Worker,
		Client: sdk.Client,
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	cfg.NATS.Resolve()

	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Service == "" {
		return errors.New("service name is required")
	}
	if c.Version == "" {
		return errors.New("version is required")
	}
	switch c.Mode {
	case ModeDebug, ModeRelease:
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreNATS:
		if strings.ContainsAny(c.Store.NATSStream, ".*> ") {
			return fmt.Errorf("NATS history stream %q must not contain subject tokens", c.Store.NATSStream)
		}
	case StoreSqlite:
		if c.Store.SqlitePath == "" {
			return errors.New("sqlite path is required")
		}
	case StorePebble:
		if c.Store.PebbleDir == "" {
			return errors.New("pebble directory is required")
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("postgres DSN is required")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Queue.Backend {
	case QueueMemory, QueueNATS:
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}

	if c.UsesNATS() {
		if err := c.validateNATS(); err != nil {
			return err
		}
	}

	if c.Worker.TaskList == "" {
		return errors.New("worker task list is required")
	}
	if strings.ContainsAny(c.Worker.TaskList, ".*> ") {
		return fmt.Errorf("worker task list %q must not contain subject tokens", c.Worker.TaskList)
	}
	if c.Worker.MaxConcurrentWorkflowTasks <= 0 {
		return errors.New("worker max concurrent workflow tasks must be positive")
	}
	if c.Worker.MaxConcurrentActivities <= 0 {
		return errors.New("worker max concurrent activities must be positive")
	}
	if c.Worker.DeadlockDetectionTimeout <= 0 {
		return errors.New("worker deadlock detection timeout must be positive")
	}

	if c.HTTP.Addr != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
			return fmt.Errorf("invalid HTTP address %q: %w", c.HTTP.Addr, err)
		}
	}

	switch c.Client.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("unknown codec %q", c.Client.Codec)
	}

	return nil
}

// UsesNATS reports whether any backend needs a NATS connection.
func (c *Config) UsesNATS() bool {
	return c.Store.Backend == StoreNATS || c.Queue.Backend == QueueNATS
}

func (c *Config) validateNATS() error {
	n := c.NATS
	if n.URL == "" {
		return errors.New("NATS URL is required")
	}
	for _, raw := range strings.Split(n.URL, ",") {
		if _, err := url.Parse(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("invalid NATS URL %q: %w", raw, err)
		}
	}
	if n.Host == "" {
		return errors.New("NATS host is required")
	}
	if n.Port == "" {
		return errors.New("NATS port is required")
	}
	if p, err := strconv.Atoi(n.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("invalid NATS port %q", n.Port)
	}
	if n.MaxReconnects < -1 {
		return errors.New("NATS max reconnects must be >= -1")
	}
	if n.ReconnectWait <= 0 {
		return errors.New("NATS reconnect wait must be positive")
	}
	if n.DrainTimeout <= 0 {
		return errors.New("NATS drain timeout must be positive")
	}
	if n.AckWait <= 0 {
		return errors.New("NATS ack wait must be positive")
	}
	if n.Namespace != "" {
		if err := ValidateNamespace(n.Namespace); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) ServiceName() string {
	return c.Service
}

func (c *Config) GetVersion() string {
	return c.Version
}
