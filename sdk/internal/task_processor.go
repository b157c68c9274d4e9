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
	"fmt"
	"iter"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/ngnhng/durablereplay/api"
)

func (c *Conn) Enqueue(ctx context.Context, taskList string, task api.Task) error {
	kind, err := kindOf(task)
	if err != nil {
		return err
	}
	data, err := c.codec.SerializeBinary(task)
	if err != nil {
		return fmt.Errorf("encode %T: %w", task, err)
	}
	msg := nats.NewMsg(c.names.subject(kind, taskList))
	msg.Data = data
	msg.Header.Set(api.TaskKindHeader, strconv.Itoa(int(kind)))
	if at, ok := task.(*api.ActivityTask); ok {
		msg.Header.Set(api.TaskAttemptHeader, strconv.Itoa(int(at.Attempt)))
	}
	if _, err := c.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

func (c *Conn) Receive(ctx context.Context, taskList string, kinds TaskKind) (iter.Seq[*TaskToken], error) {
	if kinds&TaskKindAll == 0 {
		return nil, fmt.Errorf("at least one task kind must be enabled")
	}
	if err := c.ensureTaskStreams(ctx); err != nil {
		return nil, err
	}

	consumerCtx, cancelConsumers := context.WithCancel(ctx)
	taskChannel := make(chan *TaskToken)

	type consumerHandle struct {
		consumer jetstream.Consumer
		kind     TaskKind
	}

	var consumers []consumerHandle
	for _, kind := range []TaskKind{TaskKindWorkflow, TaskKindActivity, TaskKindTimer} {
		if kinds&kind == 0 {
			continue
		}
		consumer, err := c.ensureConsumer(consumerCtx, kind, taskList)
		if err != nil {
			cancelConsumers()
			return nil, err
		}
		consumers = append(consumers, consumerHandle{consumer: consumer, kind: kind})
	}

	var wg sync.WaitGroup
	for _, handle := range consumers {
		wg.Add(1)
		go func(ch consumerHandle) {
			defer wg.Done()
			defer cancelConsumers()

			consumeCtx, err := ch.consumer.Consume(func(msg jetstream.Msg) {
				task, err := c.decodeTask(ch.kind, msg.Data())
				if err != nil {
					c.logger.Error("dropping undecodable task", "kind", ch.kind, "error", err)
					_ = msg.Term()
					return
				}
				c.enqueueTask(consumerCtx, task, msg, taskChannel)
			})
			if err != nil {
				c.logger.Error("task consumer failed", "kind", ch.kind, "error", err)
				return
			}
			defer consumeCtx.Stop()

			<-consumerCtx.Done()
		}(handle)
	}

	go func() {
		wg.Wait()
		close(taskChannel)
	}()

	return func(yield func(*TaskToken) bool) {
		defer cancelConsumers()
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-taskChannel:
				if !ok {
					return
				}
				if !yield(t) {
					return
				}
			}
		}
	}, nil
}

func (c *Conn) decodeTask(kind TaskKind, data []byte) (api.Task, error) {
	var task api.Task
	switch kind {
	case TaskKindWorkflow:
		task = &api.WorkflowTask{}
	case TaskKindActivity:
		task = &api.ActivityTask{}
	case TaskKindTimer:
		task = &api.TimerTask{}
	default:
		return nil, fmt.Errorf("unknown task kind %d", kind)
	}
	if err := c.codec.DeserializeBinary(data, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (c *Conn) enqueueTask(ctx context.Context, task api.Task, msg jetstream.Msg, taskChannel chan<- *TaskToken) {
	token := &TaskToken{
		Task: task,
		Ack:  msg.DoubleAck,
		Nak: func(_ context.Context, delay time.Duration) error {
			if delay <= 0 {
				return msg.Nak()
			}
			return msg.NakWithDelay(delay)
		},
		Term:  func(context.Context) error { return msg.Term() },
		Touch: func(context.Context) error { return msg.InProgress() },
	}

	select {
	case <-ctx.Done():
		_ = msg.Nak()
	case taskChannel <- token:
	}
}
