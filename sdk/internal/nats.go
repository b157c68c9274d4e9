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

package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/ngnhng/durablereplay/api"
	"github.com/ngnhng/durablereplay/api/serde"
)

const defaultAckWait = 30 * time.Second

var taskRoutes = map[TaskKind]api.TaskRoute{
	TaskKindWorkflow: api.WorkflowTaskRoute,
	TaskKindActivity: api.ActivityTaskRoute,
	TaskKindTimer:    api.TimerTaskRoute,
}

// taskNames derives stream, subject and consumer names for one namespace, so
// deployments sharing a NATS cluster never see each other's tasks.
type taskNames struct {
	ns string
}

func (n taskNames) stream(kind TaskKind) string {
	name := taskRoutes[kind].Stream
	if n.ns == "" {
		return name
	}
	return n.ns + "_" + name
}

// subject returns the subject of taskList; "*" gives the stream filter.
func (n taskNames) subject(kind TaskKind, taskList string) string {
	subject := api.TaskSubjectRoot + "." + taskRoutes[kind].Token + "." + taskList
	if n.ns == "" {
		return subject
	}
	return n.ns + "." + subject
}

func (n taskNames) consumer(kind TaskKind, taskList string) string {
	return taskRoutes[kind].Consumer + "-" + taskList
}

// Conn is a NATS connection serving as a TaskQueue, with one work-queue stream
// per task kind.
type Conn struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	codec   serde.BinarySerde
	names   taskNames
	ackWait time.Duration
	logger  *slog.Logger
}

var _ TaskQueue = (*Conn)(nil)

// Config supplies the connection settings of Connect.
type Config interface {
	Endpoint() string
	NATSMaxReconnects() int
	NATSReconnectWait() time.Duration
	NATSDrainTimeout() time.Duration
	NATSPingInterval() time.Duration
	NATSMaxPingsOut() int
	// NATSClientName may be empty.
	NATSClientName() string
	// NATSAckWait is how long a received task stays invisible before redelivery.
	NATSAckWait() time.Duration
}

// Connect dials NATS and returns a Conn whose task streams live under namespace.
// A nil codec means msgpack.
func Connect(cfg Config, namespace string, codec serde.BinarySerde, logger *slog.Logger) (*Conn, error) {
	if cfg == nil {
		return nil, errors.New("nats: nil config")
	}
	logger = defaultLogger(logger)

	name := cfg.NATSClientName()
	if name == "" {
		name = "durablereplay-sdk"
	}
	nc, err := nats.Connect(cfg.Endpoint(),
		nats.Name(name),
		nats.MaxReconnects(cfg.NATSMaxReconnects()),
		nats.ReconnectWait(cfg.NATSReconnectWait()),
		nats.DrainTimeout(cfg.NATSDrainTimeout()),
		nats.PingInterval(cfg.NATSPingInterval()),
		nats.MaxPingsOutstanding(cfg.NATSMaxPingsOut()),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.Endpoint(), err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	if codec == nil {
		codec = &serde.MsgpackSerde{}
	}
	ackWait := cfg.NATSAckWait()
	if ackWait <= 0 {
		ackWait = defaultAckWait
	}
	return &Conn{
		nc:      nc,
		js:      js,
		codec:   codec,
		names:   taskNames{ns: strings.TrimSpace(namespace)},
		ackWait: ackWait,
		logger:  logger,
	}, nil
}

func (c *Conn) Close() {
	if c.nc != nil && !c.nc.IsClosed() {
		c.nc.Close()
	}
}

// NATS returns the underlying connection, shared with the NATS history store.
func (c *Conn) NATS() *nats.Conn {
	return c.nc
}

func (c *Conn) IsConnected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// ensureTaskStreams creates or updates the work-queue stream of every task kind.
func (c *Conn) ensureTaskStreams(ctx context.Context) error {
	for _, kind := range []TaskKind{TaskKindWorkflow, TaskKindActivity, TaskKindTimer} {
		cfg := jetstream.StreamConfig{
			Name:      c.names.stream(kind),
			Subjects:  []string{c.names.subject(kind, "*")},
			Retention: jetstream.WorkQueuePolicy,
			Storage:   jetstream.FileStorage,
		}
		stream, err := c.js.Stream(ctx, cfg.Name)
		switch {
		case errors.Is(err, jetstream.ErrStreamNotFound):
			if _, err := c.js.CreateStream(ctx, cfg); err != nil {
				return fmt.Errorf("create stream %s: %w", cfg.Name, err)
			}
			continue
		case err != nil:
			return fmt.Errorf("look up stream %s: %w", cfg.Name, err)
		}
		// retention is fixed at creation
		cfg.Retention = stream.CachedInfo().Config.Retention
		if _, err := c.js.UpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("update stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

func (c *Conn) ensureConsumer(ctx context.Context, kind TaskKind, taskList string) (jetstream.Consumer, error) {
	name := c.names.consumer(kind, taskList)
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.names.stream(kind), jetstream.ConsumerConfig{
		Name:          name,
		Durable:       name,
		FilterSubject: c.names.subject(kind, taskList),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.ackWait,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", name, err)
	}
	return consumer, nil
}
