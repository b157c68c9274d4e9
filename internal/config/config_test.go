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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdkconfig "github.com/ngnhng/durablereplay/sdk/config"
)

func validConfig() *Config {
	sdk := sdkconfig.Default()
	sdk.NATS.Resolve()
	return &Config{
		Service: "test-service",
		Version: "v1.0.0",
		Mode:    ModeDebug,
		Store:   StoreConfig{Backend: StoreMemory},
		Queue:   QueueConfig{Backend: QueueMemory},
		NATS:    sdk.NATS,
		Worker:  sdk.Worker,
		Client:  sdk.Client,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			modify: func(*Config) {},
		},
		{
			name:    "missing service name",
			modify:  func(c *Config) { c.Service = "" },
			wantErr: true,
			errMsg:  "service name is required",
		},
		{
			name:    "missing version",
			modify:  func(c *Config) { c.Version = "" },
			wantErr: true,
			errMsg:  "version is required",
		},
		{
			name:    "invalid mode",
			modify:  func(c *Config) { c.Mode = "verbose" },
			wantErr: true,
			errMsg:  "invalid mode",
		},
		{
			name:    "unknown store backend",
			modify:  func(c *Config) { c.Store.Backend = "mysql" },
			wantErr: true,
			errMsg:  "unknown store backend",
		},
		{
			name: "postgres without DSN",
			modify: func(c *Config) {
				c.Store.Backend = StorePostgres
			},
			wantErr: true,
			errMsg:  "postgres DSN is required",
		},
		{
			name: "sqlite with path",
			modify: func(c *Config) {
				c.Store.Backend = StoreSqlite
				c.Store.SqlitePath = "/tmp/runs.db"
			},
		},
		{
			name:    "unknown queue backend",
			modify:  func(c *Config) { c.Queue.Backend = "kafka" },
			wantErr: true,
			errMsg:  "unknown queue backend",
		},
		{
			name: "NATS settings ignored without NATS backends",
			modify: func(c *Config) {
				c.NATS.Port = "invalid"
			},
		},
		{
			name: "invalid NATS port",
			modify: func(c *Config) {
				c.Queue.Backend = QueueNATS
				c.NATS.Port = "invalid"
			},
			wantErr: true,
			errMsg:  "invalid NATS port",
		},
		{
			name: "missing NATS URL",
			modify: func(c *Config) {
				c.Store.Backend = StoreNATS
				c.NATS.URL = ""
			},
			wantErr: true,
			errMsg:  "NATS URL is required",
		},
		{
			name: "NATS history stream with subject tokens",
			modify: func(c *Config) {
				c.Store.Backend = StoreNATS
				c.Store.NATSStream = "history.v2"
			},
			wantErr: true,
			errMsg:  "must not contain subject tokens",
		},
		{
			name: "invalid NATS max reconnects",
			modify: func(c *Config) {
				c.Queue.Backend = QueueNATS
				c.NATS.MaxReconnects = -2
			},
			wantErr: true,
			errMsg:  "NATS max reconnects must be >= -1",
		},
		{
			name: "invalid NATS ack wait",
			modify: func(c *Config) {
				c.Queue.Backend = QueueNATS
				c.NATS.AckWait = 0
			},
			wantErr: true,
			errMsg:  "NATS ack wait must be positive",
		},
		{
			name: "invalid NATS namespace",
			modify: func(c *Config) {
				c.Queue.Backend = QueueNATS
				c.NATS.Namespace = "Team_A"
			},
			wantErr: true,
			errMsg:  "DNS-safe",
		},
		{
			name:    "task list with subject tokens",
			modify:  func(c *Config) { c.Worker.TaskList = "orders.eu" },
			wantErr: true,
			errMsg:  "must not contain subject tokens",
		},
		{
			name:    "zero activity concurrency",
			modify:  func(c *Config) { c.Worker.MaxConcurrentActivities = 0 },
			wantErr: true,
			errMsg:  "max concurrent activities must be positive",
		},
		{
			name:    "zero deadlock timeout",
			modify:  func(c *Config) { c.Worker.DeadlockDetectionTimeout = 0 },
			wantErr: true,
			errMsg:  "deadlock detection timeout must be positive",
		},
		{
			name:   "HTTP address",
			modify: func(c *Config) { c.HTTP.Addr = ":8080" },
		},
		{
			name:    "HTTP address without port",
			modify:  func(c *Config) { c.HTTP.Addr = "localhost" },
			wantErr: true,
			errMsg:  "invalid HTTP address",
		},
		{
			name:    "unknown codec",
			modify:  func(c *Config) { c.Client.Codec = "xml" },
			wantErr: true,
			errMsg:  "unknown codec",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error, got nil")
					return
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("MODE", "release")
	t.Setenv("STORE_BACKEND", "pebble")
	t.Setenv("STORE_PEBBLE_DIR", "/var/lib/runs")
	t.Setenv("WORKER_TASK_LIST", "orders")
	t.Setenv("NATS_HOST", "nats")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FIELDS", "region=eu, zone = a ,broken")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Mode != ModeRelease {
		t.Errorf("Mode = %q, want release", cfg.Mode)
	}
	if cfg.Store.Backend != StorePebble || cfg.Store.PebbleDir != "/var/lib/runs" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Worker.TaskList != "orders" {
		t.Errorf("Worker.TaskList = %q", cfg.Worker.TaskList)
	}
	if cfg.Worker.MaxConcurrentActivities != sdkconfig.DefaultMaxConcurrentActivities {
		t.Errorf("Worker.MaxConcurrentActivities = %d", cfg.Worker.MaxConcurrentActivities)
	}
	if cfg.NATS.URL != "nats://nats:4222" {
		t.Errorf("NATS.URL = %q", cfg.NATS.URL)
	}
	if cfg.NATS.AckWait != 30*time.Second {
		t.Errorf("NATS.AckWait = %v", cfg.NATS.AckWait)
	}
	if cfg.LogLevel().String() != "DEBUG" {
		t.Errorf("LogLevel() = %v", cfg.LogLevel())
	}
	fields := cfg.ExtraFields()
	if len(fields) != 2 || fields["region"] != "eu" || fields["zone"] != "a" {
		t.Errorf("ExtraFields() = %v", fields)
	}
}

func TestConfig_Writers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	cfg := validConfig()
	cfg.Logger.Output = "stdout, file:" + path + ",bogus,stdout"
	t.Cleanup(func() { _ = cfg.CloseFiles() })

	writers := cfg.Writers()
	if len(writers) != 2 {
		t.Fatalf("Writers() returned %d writers, want 2", len(writers))
	}
	if writers[0] != os.Stdout {
		t.Errorf("first writer is not stdout")
	}
	if _, err := writers[1].Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cfg.CloseFiles(); err != nil {
		t.Fatalf("CloseFiles() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("file contents = %q", data)
	}
}

func TestLoggerConfig_Parse(t *testing.T) {
	lc := &LoggerConfig{Level: " WARN ", SampleRate: 3, FileMode: "0600"}
	if got := lc.ParseLevel(); got != "warn" {
		t.Errorf("ParseLevel() = %q", got)
	}
	if got := lc.ParseSampleRate(); got != 1 {
		t.Errorf("ParseSampleRate() = %v", got)
	}
	if got := lc.ParseFileMode(); got != 0o600 {
		t.Errorf("ParseFileMode() = %v", got)
	}
	lc = &LoggerConfig{Level: "loud", SampleRate: -1, FileMode: "rw"}
	if got := lc.ParseLevel(); got != "info" {
		t.Errorf("ParseLevel() = %q", got)
	}
	if got := lc.ParseSampleRate(); got != 0 {
		t.Errorf("ParseSampleRate() = %v", got)
	}
	if got := lc.ParseFileMode(); got != 0o644 {
		t.Errorf("ParseFileMode() = %v", got)
	}
}

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		wantErr   bool
	}{
		{name: "valid namespace", namespace: "my-namespace"},
		{name: "valid namespace with numbers", namespace: "namespace123"},
		{name: "empty namespace", namespace: "", wantErr: true},
		{name: "too long namespace", namespace: strings.Repeat("a", 64), wantErr: true},
		{name: "namespace with uppercase", namespace: "My-Namespace", wantErr: true},
		{name: "namespace starting with hyphen", namespace: "-invalid", wantErr: true},
		{name: "namespace ending with hyphen", namespace: "invalid-", wantErr: true},
		{name: "namespace with dot", namespace: "team.a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNamespace(tt.namespace)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNamespace(%q) error = %v, wantErr %v", tt.namespace, err, tt.wantErr)
			}
		})
	}
}
