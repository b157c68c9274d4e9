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
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Default configuration constants tuned for SDK clients and workers.
const (
	DefaultNATSHost = "localhost"
	DefaultNATSPort = "4222"

	DefaultDrainTimeout  = 30 * time.Second
	DefaultReconnectWait = 2 * time.Second
	DefaultPingInterval  = 2 * time.Minute
	DefaultAckWait       = 30 * time.Second

	DefaultMaxReconnects = -1 // reconnect forever
	DefaultMaxPingsOut   = 2

	DefaultTaskList                 = "default"
	DefaultMaxConcurrentWorkflows   = 16
	DefaultMaxConcurrentActivities  = 64
	DefaultDeadlockDetectionTimeout = time.Second
	DefaultResultPollInterval       = 50 * time.Millisecond
	DefaultCodec                    = "msgpack"
)

// NATSConfig holds NATS-specific configuration knobs for the SDK.
type NATSConfig struct {
	URL           string        `json:"url"             env:"URL"`
	Host          string        `json:"host"            env:"HOST"`
	Port          string        `json:"port"            env:"PORT"`
	Namespace     string        `json:"namespace"       env:"NAMESPACE"`
	MaxReconnects int           `json:"max_reconnects"  env:"MAX_RECONNECTS"`
	ReconnectWait time.Duration `json:"reconnect_wait"  env:"RECONNECT_WAIT"`
	DrainTimeout  time.Duration `json:"drain_timeout"   env:"DRAIN_TIMEOUT"`
	PingInterval  time.Duration `json:"ping_interval"   env:"PING_INTERVAL"`
	MaxPingsOut   int           `json:"max_pings_out"   env:"MAX_PINGS_OUT"`
	AckWait       time.Duration `json:"ack_wait"        env:"ACK_WAIT"`
	ClientName    string        `json:"client_name"     env:"CLIENT_NAME"`
}

// WorkerConfig sizes a worker and names the task list it polls.
type WorkerConfig struct {
	TaskList                   string        `json:"task_list"                    env:"TASK_LIST"`
	MaxConcurrentWorkflowTasks int           `json:"max_concurrent_workflow_tasks" env:"MAX_CONCURRENT_WORKFLOW_TASKS"`
	MaxConcurrentActivities    int           `json:"max_concurrent_activities"    env:"MAX_CONCURRENT_ACTIVITIES"`
	DeadlockDetectionTimeout   time.Duration `json:"deadlock_detection_timeout"   env:"DEADLOCK_DETECTION_TIMEOUT"`
}

// ClientConfig holds client-side knobs.
type ClientConfig struct {
	// Codec names the payload and history encoding: json or msgpack.
	Codec              string        `json:"codec"                env:"CODEC"`
	ResultPollInterval time.Duration `json:"result_poll_interval" env:"RESULT_POLL_INTERVAL"`
}

// Config is the public SDK configuration users can construct or load from env.
type Config struct {
	NATS   NATSConfig   `json:"nats"   envPrefix:"NATS_"`
	Worker WorkerConfig `json:"worker" envPrefix:"WORKER_"`
	Client ClientConfig `json:"client" envPrefix:"CLIENT_"`
}

// Default returns the configuration Load starts from.
func Default() Config {
	return Config{
		NATS: NATSConfig{
			Host:          DefaultNATSHost,
			Port:          DefaultNATSPort,
			MaxReconnects: DefaultMaxReconnects,
			ReconnectWait: DefaultReconnectWait,
			DrainTimeout:  DefaultDrainTimeout,
			PingInterval:  DefaultPingInterval,
			MaxPingsOut:   DefaultMaxPingsOut,
			AckWait:       DefaultAckWait,
			ClientName:    "durablereplay-sdk",
		},
		Worker: WorkerConfig{
			TaskList:                   DefaultTaskList,
			MaxConcurrentWorkflowTasks: DefaultMaxConcurrentWorkflows,
			MaxConcurrentActivities:    DefaultMaxConcurrentActivities,
			DeadlockDetectionTimeout:   DefaultDeadlockDetectionTimeout,
		},
		Client: ClientConfig{
			Codec:              DefaultCodec,
			ResultPollInterval: DefaultResultPollInterval,
		},
	}
}

// Load loads configuration from environment variables applying defaults.
func Load() (*Config, error) {
	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.NATS.Resolve()
	return &cfg, nil
}

// Resolve fills URL from Host and Port when it is not set explicitly.
func (n *NATSConfig) Resolve() {
	if n.URL == "" {
		n.URL = fmt.Sprintf("nats://%s:%s", n.Host, n.Port)
	}
}

// Interface implementation for the SDK's JetStream connection.
func (n *NATSConfig) Endpoint() string                 { return n.URL }
func (n *NATSConfig) NATSMaxReconnects() int           { return n.MaxReconnects }
func (n *NATSConfig) NATSReconnectWait() time.Duration { return n.ReconnectWait }
func (n *NATSConfig) NATSDrainTimeout() time.Duration  { return n.DrainTimeout }
func (n *NATSConfig) NATSPingInterval() time.Duration  { return n.PingInterval }
func (n *NATSConfig) NATSMaxPingsOut() int             { return n.MaxPingsOut }
func (n *NATSConfig) NATSClientName() string           { return n.ClientName }
func (n *NATSConfig) NATSAckWait() time.Duration       { return n.AckWait }
