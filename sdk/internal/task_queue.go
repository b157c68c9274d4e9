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
	"iter"
	"sync"
	"time"

	"github.com/ngnhng/durablereplay/api"
)

// TaskKind selects which tasks a receiver takes.
type TaskKind uint8

const (
	TaskKindWorkflow TaskKind = 1 << iota
	TaskKindActivity
	TaskKindTimer

	TaskKindAll = TaskKindWorkflow | TaskKindActivity | TaskKindTimer
)

var ErrTaskQueueClosed = errors.New("task queue closed")

type (
	// TaskToken is a received task and the handles to settle it.
	TaskToken struct {
		Task api.Task
		// Ack removes the task.
		Ack func(context.Context) error
		// Nak returns the task for redelivery after delay.
		Nak func(ctx context.Context, delay time.Duration) error
		// Term drops a task that can never be processed.
		Term func(context.Context) error
		// Touch extends the processing deadline of a long running task.
		Touch func(context.Context) error
	}

	// TaskQueue routes tasks to workers by task list.
	TaskQueue interface {
		Enqueue(ctx context.Context, taskList string, task api.Task) error
		Receive(ctx context.Context, taskList string, kinds TaskKind) (iter.Seq[*TaskToken], error)
	}
)

func kindOf(task api.Task) (TaskKind, error) {
	switch task.(type) {
	case *api.WorkflowTask:
		return TaskKindWorkflow, nil
	case *api.ActivityTask:
		return TaskKindActivity, nil
	case *api.TimerTask:
		return TaskKindTimer, nil
	}
	return 0, fmt.Errorf("unsupported task %T", task)
}

// MemoryTaskQueue is an in-process TaskQueue. Tasks are lost when the process exits.
type MemoryTaskQueue struct {
	mu     sync.Mutex
	lists  map[string]*memoryTaskList
	closed bool
	timers map[*time.Timer]struct{}
}

type memoryTaskList struct {
	tasks map[TaskKind][]api.Task
	// signal is closed and replaced whenever a task is added.
	signal chan struct{}
}

var _ TaskQueue = (*MemoryTaskQueue)(nil)

func NewMemoryTaskQueue() *MemoryTaskQueue {
	return &MemoryTaskQueue{
		lists:  make(map[string]*memoryTaskList),
		timers: make(map[*time.Timer]struct{}),
	}
}

func (q *MemoryTaskQueue) list(taskList string) *memoryTaskList {
	l, ok := q.lists[taskList]
	if !ok {
		l = &memoryTaskList{tasks: make(map[TaskKind][]api.Task), signal: make(chan struct{})}
		q.lists[taskList] = l
	}
	return l
}

func (q *MemoryTaskQueue) Enqueue(_ context.Context, taskList string, task api.Task) error {
	kind, err := kindOf(task)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrTaskQueueClosed
	}
	l := q.list(taskList)
	l.tasks[kind] = append(l.tasks[kind], task)
	close(l.signal)
	l.signal = make(chan struct{})
	return nil
}

func (q *MemoryTaskQueue) enqueueAfter(taskList string, task api.Task, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()
		_ = q.Enqueue(context.Background(), taskList, task)
	})
	q.timers[t] = struct{}{}
}

// pop takes the oldest task of the requested kinds, checking kinds in a fixed order.
func (q *MemoryTaskQueue) pop(taskList string, kinds TaskKind) (api.Task, <-chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, nil, ErrTaskQueueClosed
	}
	l := q.list(taskList)
	for _, kind := range []TaskKind{TaskKindWorkflow, TaskKindTimer, TaskKindActivity} {
		if kinds&kind == 0 || len(l.tasks[kind]) == 0 {
			continue
		}
		task := l.tasks[kind][0]
		l.tasks[kind][0] = nil
		l.tasks[kind] = l.tasks[kind][1:]
		return task, nil, nil
	}
	return nil, l.signal, nil
}

func (q *MemoryTaskQueue) Receive(ctx context.Context, taskList string, kinds TaskKind) (iter.Seq[*TaskToken], error) {
	if kinds&TaskKindAll == 0 {
		return nil, fmt.Errorf("at least one task kind must be enabled")
	}
	return func(yield func(*TaskToken) bool) {
		for {
			task, signal, err := q.pop(taskList, kinds)
			if err != nil {
				return
			}
			if task == nil {
				select {
				case <-ctx.Done():
					return
				case <-signal:
					continue
				}
			}
			if !yield(q.token(taskList, task)) {
				return
			}
		}
	}, nil
}

func (q *MemoryTaskQueue) token(taskList string, task api.Task) *TaskToken {
	noop := func(context.Context) error { return nil }
	return &TaskToken{
		Task: task,
		Ack:  noop,
		Nak: func(_ context.Context, delay time.Duration) error {
			if delay <= 0 {
				return q.Enqueue(context.Background(), taskList, task)
			}
			q.enqueueAfter(taskList, task, delay)
			return nil
		},
		Term:  noop,
		Touch: noop,
	}
}

// Close stops delivery and drops delayed tasks.
func (q *MemoryTaskQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	clear(q.timers)
	for _, l := range q.lists {
		close(l.signal)
	}
	return nil
}
