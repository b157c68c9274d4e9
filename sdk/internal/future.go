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
	"fmt"

	"github.com/ngnhng/durablereplay/api/serde"
)

type (
	// Future is a single-assignment result of an asynchronous workflow operation.
	Future interface {
		// Get blocks the calling coroutine until the future is ready, then decodes
		// the value into valuePtr (which may be nil) and returns the error.
		Get(ctx Context, valuePtr any) error
		IsReady() bool
	}

	// Settable completes a Future created by NewFuture.
	Settable interface {
		Set(value any, err error)
		SetValue(value any)
		SetError(err error)
		// Chain completes the future with the result of another one once it is ready.
		Chain(future Future)
	}

	futureImpl struct {
		d         *dispatcher
		types     *serde.TypeConverter
		converter serde.DataConverter

		value     any
		err       error
		ready     bool
		settledAt int64
		waiters   waitQueue
		chained   []*futureImpl
	}
)

var (
	_ Future   = (*futureImpl)(nil)
	_ Settable = (*futureImpl)(nil)
)

// NewFuture returns a future and the Settable that completes it.
func NewFuture(ctx Context) (Future, Settable) {
	f := getExecutor(ctx).newFuture()
	return f, f
}

func (f *futureImpl) IsReady() bool { return f.ready }

func (f *futureImpl) Get(_ Context, valuePtr any) error {
	if !f.ready {
		cs := f.d.currentState()
		for !f.ready {
			cs.park(&f.waiters)
		}
	}
	if f.err != nil || valuePtr == nil {
		return f.err
	}
	if err := assignValue(f.value, valuePtr, f.types, f.converter); err != nil {
		return fmt.Errorf("decode future result: %w", err)
	}
	return nil
}

func (f *futureImpl) Set(value any, err error) {
	if f.ready {
		panic(&ProgrammingError{Message: "future already completed"})
	}
	f.value, f.err = value, err
	f.ready = true
	f.settledAt = f.d.epoch
	f.waiters.wakeAll()
	for _, c := range f.chained {
		c.Set(value, err)
	}
	f.chained = nil
}

func (f *futureImpl) SetValue(value any) { f.Set(value, nil) }

func (f *futureImpl) SetError(err error) { f.Set(nil, err) }

func (f *futureImpl) Chain(future Future) {
	if f.ready {
		panic(&ProgrammingError{Message: "future already completed"})
	}
	src, ok := future.(*futureImpl)
	if !ok {
		panic(&ProgrammingError{Message: fmt.Sprintf("cannot chain future of type %T", future)})
	}
	if src.ready {
		f.Set(src.value, src.err)
		return
	}
	src.chained = append(src.chained, f)
}
