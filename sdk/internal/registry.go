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
	"reflect"
	"strings"
	"sync"
)

var (
	contextType         = reflect.TypeFor[context.Context]()
	workflowContextType = reflect.TypeFor[Context]()
	errorType           = reflect.TypeFor[error]()
)

// registry holds the workflow and activity functions a worker can run. It is
// populated at startup and frozen once the worker starts polling.
type registry struct {
	workflows  *hashMapRegistry
	activities *hashMapRegistry

	mu     sync.RWMutex
	frozen bool
}

type hashMapRegistry struct {
	mu      sync.RWMutex
	entries map[string]any
}

func newRegistry() *registry {
	return &registry{
		workflows:  newInMemoryRegistry(),
		activities: newInMemoryRegistry(),
	}
}

func newInMemoryRegistry() *hashMapRegistry {
	return &hashMapRegistry{
		entries: make(map[string]any),
	}
}

func (m *hashMapRegistry) get(k string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[k]
	return entry, ok
}

func (m *hashMapRegistry) set(k string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[k]; ok {
		return fmt.Errorf("%q is already registered", k)
	}
	m.entries[k] = v
	return nil
}

func (m *hashMapRegistry) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (r *registry) freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *registry) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	return nil
}

func (r *registry) registerWorkflow(fn any, name string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if err := validateFunction(fn, workflowContextType); err != nil {
		return fmt.Errorf("register workflow: %w", err)
	}
	if name == "" {
		var err error
		if name, err = functionName(fn); err != nil {
			return fmt.Errorf("register workflow: %w", err)
		}
	}
	return r.workflows.set(name, fn)
}

func (r *registry) registerActivity(fn any, name string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if err := validateFunction(fn, contextType); err != nil {
		return fmt.Errorf("register activity: %w", err)
	}
	if name == "" {
		var err error
		if name, err = functionName(fn); err != nil {
			return fmt.Errorf("register activity: %w", err)
		}
	}
	return r.activities.set(name, fn)
}

func (r *registry) workflow(name string) (any, error) {
	fn, ok := r.workflows.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotRegistered, name)
	}
	return fn, nil
}

func (r *registry) activity(name string) (any, error) {
	fn, ok := r.activities.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActivityNotRegistered, name)
	}
	return fn, nil
}

// validateFunction checks fn has the shape func(ctx, args...) (result, error) or
// func(ctx, args...) error, where ctx is of type firstParam.
func validateFunction(fn any, firstParam reflect.Type) error {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		return fmt.Errorf("expected a function, got %T", fn)
	}
	if t.NumIn() == 0 || t.In(0) != firstParam {
		return fmt.Errorf("%s: first parameter must be %s", t, firstParam)
	}
	if t.IsVariadic() {
		return fmt.Errorf("%s: variadic functions are not supported", t)
	}
	switch t.NumOut() {
	case 1:
	case 2:
	default:
		return fmt.Errorf("%s: must return (result, error) or error", t)
	}
	if t.Out(t.NumOut()-1) != errorType {
		return fmt.Errorf("%s: last result must be error", t)
	}
	return nil
}

// functionName resolves the registered name of a function or returns a string as is.
// Method values lose their "-fm" suffix so a bound method registers under the method name.
func functionName(fn any) (string, error) {
	if s, ok := fn.(string); ok {
		if s == "" {
			return "", fmt.Errorf("empty function name")
		}
		return s, nil
	}
	name, err := extractFullFunctionName(fn)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(name, "-fm"), nil
}
