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
	"encoding/json"
	"fmt"
	"io"

	"github.com/ngnhng/durablereplay/api"
	"gopkg.in/yaml.v3"
)

// historyFile is the YAML export of a run history. Event bodies are the JSON
// form of the events, embedded as YAML.
type historyFile struct {
	Events []historyFileEvent `yaml:"events"`
}

type historyFileEvent struct {
	Event string    `yaml:"event"`
	Data  yaml.Node `yaml:"data"`
}

var historyEventConstructors = func() map[string]func() api.HistoryEvent {
	m := make(map[string]func() api.HistoryEvent)
	for _, fn := range api.HistoryEventFuncs() {
		m[fn().EventName()] = fn
	}
	return m
}()

// WriteHistoryFile writes history as YAML.
func WriteHistoryFile(w io.Writer, history []api.HistoryEvent) error {
	file := historyFile{Events: make([]historyFileEvent, 0, len(history))}
	for i, evt := range history {
		raw, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		data := doc.Content[0]
		blockStyle(data)
		file.Events = append(file.Events, historyFileEvent{Event: evt.EventName(), Data: *data})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&file); err != nil {
		return err
	}
	return enc.Close()
}

// ReadHistoryFile parses a history written by WriteHistoryFile.
func ReadHistoryFile(r io.Reader) ([]api.HistoryEvent, error) {
	var file historyFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, err
	}
	history := make([]api.HistoryEvent, 0, len(file.Events))
	for i, rec := range file.Events {
		newEvent, ok := historyEventConstructors[rec.Event]
		if !ok {
			return nil, fmt.Errorf("event %d: unknown event %q", i, rec.Event)
		}
		var body any
		if err := rec.Data.Decode(&body); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		evt := newEvent()
		if err := json.Unmarshal(raw, evt); err != nil {
			return nil, fmt.Errorf("event %d (%s): %w", i, rec.Event, err)
		}
		history = append(history, evt)
	}
	return history, nil
}

// blockStyle drops the JSON presentation of a parsed node: collections become
// block style and scalars plain. The encoder still quotes strings that would
// read back as another type, such as "true" or "42".
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
