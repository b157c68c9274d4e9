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

package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/DeluxeOwl/chronicle/event"
	"github.com/DeluxeOwl/chronicle/version"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/vmihailenco/msgpack/v5"
)

// natsLog is a chronicle event log on a JetStream stream. Every log id owns
// one subject. An append is a single message carrying the whole batch,
// published with the subject's last sequence as the expected one, so batches
// are atomic and concurrent writers conflict instead of interleaving.
type natsLog struct {
	js     jetstream.JetStream
	stream jetstream.Stream
	prefix string
}

var _ event.Log = (*natsLog)(nil)

type natsBatch struct {
	From   version.Version `msgpack:"from"`
	Events []natsEvent     `msgpack:"events"`
}

type natsEvent struct {
	Name string `msgpack:"name"`
	Data []byte `msgpack:"data"`
}

func newNATSLog(ctx context.Context, js jetstream.JetStream, stream string) (*natsLog, error) {
	s, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "workflow run histories",
		Subjects:    []string{stream + ".>"},
		Storage:     jetstream.FileStorage,
		AllowDirect: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", stream, err)
	}
	return &natsLog{js: js, stream: s, prefix: stream}, nil
}

// subject maps a log id to a single subject token. Ids may hold any
// character, subject tokens may not.
func (l *natsLog) subject(id event.LogID) string {
	return l.prefix + "." + base64.RawURLEncoding.EncodeToString([]byte(id))
}

func (l *natsLog) AppendEvents(
	ctx context.Context,
	id event.LogID,
	expected version.Check,
	events event.RawEvents,
) (version.Version, error) {
	exact, ok := expected.(version.CheckExact)
	if !ok {
		return version.Zero, fmt.Errorf("nats log append: unsupported version check %T", expected)
	}

	subj := l.subject(id)
	actual, seq, err := l.last(ctx, subj)
	if err != nil {
		return version.Zero, fmt.Errorf("nats log append: %w", err)
	}
	if err := exact.CheckExact(actual); err != nil {
		return version.Zero, err
	}
	if len(events) == 0 {
		return actual, nil
	}

	batch := natsBatch{From: actual + 1, Events: make([]natsEvent, len(events))}
	for i := range events {
		batch.Events[i] = natsEvent{Name: events[i].EventName(), Data: events[i].Data()}
	}
	data, err := msgpack.Marshal(&batch)
	if err != nil {
		return version.Zero, fmt.Errorf("nats log append: %w", err)
	}

	if _, err := l.js.Publish(ctx, subj, data, jetstream.WithExpectLastSequencePerSubject(seq)); err != nil {
		if !isWrongLastSequence(err) {
			return version.Zero, fmt.Errorf("nats log append: %w", err)
		}
		current, _, lerr := l.last(ctx, subj)
		if lerr != nil {
			return version.Zero, errors.Join(version.NewConflictError(version.Version(exact), actual), lerr)
		}
		return version.Zero, version.NewConflictError(version.Version(exact), current)
	}
	return batch.last(), nil
}

func (l *natsLog) ReadEvents(ctx context.Context, id event.LogID, selector version.Selector) event.Records {
	return func(yield func(*event.Record, error) bool) {
		subj := l.subject(id)
		seq := uint64(1)
		for {
			msg, err := l.stream.GetMsg(ctx, seq, jetstream.WithGetMsgSubject(subj))
			if errors.Is(err, jetstream.ErrMsgNotFound) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("nats log read %s: %w", id, err))
				return
			}
			batch, err := decodeBatch(msg.Data)
			if err != nil {
				yield(nil, fmt.Errorf("nats log read %s: %w", id, err))
				return
			}
			for i, e := range batch.Events {
				v := batch.From + version.Version(i)
				if v < selector.From {
					continue
				}
				if !yield(event.NewRecord(v, id, e.Name, e.Data), nil) {
					return
				}
			}
			seq = msg.Sequence + 1
		}
	}
}

// last returns the log version and the stream sequence of the subject's
// latest batch, zero for both when the subject is empty.
func (l *natsLog) last(ctx context.Context, subj string) (version.Version, uint64, error) {
	msg, err := l.stream.GetLastMsgForSubject(ctx, subj)
	if errors.Is(err, jetstream.ErrMsgNotFound) {
		return version.Zero, 0, nil
	}
	if err != nil {
		return version.Zero, 0, err
	}
	batch, err := decodeBatch(msg.Data)
	if err != nil {
		return version.Zero, 0, err
	}
	return batch.last(), msg.Sequence, nil
}

func (b *natsBatch) last() version.Version {
	return b.From + version.Version(len(b.Events)) - 1
}

func decodeBatch(data []byte) (*natsBatch, error) {
	var b natsBatch
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	if b.From == 0 || len(b.Events) == 0 {
		return nil, errors.New("decode batch: empty batch")
	}
	return &b, nil
}

func isWrongLastSequence(err error) bool {
	var jsErr jetstream.JetStreamError
	if !errors.As(err, &jsErr) {
		return false
	}
	apiErr := jsErr.APIError()
	return apiErr != nil && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
