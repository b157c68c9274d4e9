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
	"reflect"
	"strings"

	"github.com/ngnhng/durablereplay/api"
)

// decisionStep is one workflow task worth of history: the inputs delivered to
// the workflow, the boundary that closed the task and the commands it produced.
type decisionStep struct {
	inputs    []api.Input
	completed *api.WorkflowTaskCompleted
	commands  []api.Command
}

// splitSteps groups history into completed decision steps. Inputs recorded after
// the last boundary are returned as pending.
func splitSteps(history []api.HistoryEvent) (steps []decisionStep, pending []api.Input, err error) {
	var cur decisionStep
	for i, ev := range history {
		switch e := ev.(type) {
		case api.Input:
			if cur.completed != nil {
				steps = append(steps, cur)
				cur = decisionStep{}
			}
			cur.inputs = append(cur.inputs, e)
		case *api.WorkflowTaskCompleted:
			if cur.completed != nil {
				steps = append(steps, cur)
				cur = decisionStep{}
			}
			cur.completed = e
		case api.Command:
			if cur.completed == nil {
				return nil, nil, fmt.Errorf("malformed history: command %s at index %d precedes its task boundary", ev.EventName(), i)
			}
			cur.commands = append(cur.commands, e)
		default:
			return nil, nil, fmt.Errorf("malformed history: unknown event %T at index %d", ev, i)
		}
	}
	if cur.completed != nil {
		steps = append(steps, cur)
	} else {
		pending = cur.inputs
	}
	return steps, pending, nil
}

// indexMarkers builds the side table of recorded markers keyed by command sequence.
func indexMarkers(history []api.HistoryEvent) map[int64]*api.MarkerRecorded {
	markers := make(map[int64]*api.MarkerRecorded)
	for _, ev := range history {
		if m, ok := ev.(*api.MarkerRecorded); ok {
			markers[m.Seq] = m
		}
	}
	return markers
}

// maxSeq returns the highest command sequence recorded in history.
func maxSeq(history []api.HistoryEvent) int64 {
	var seq int64
	for _, ev := range history {
		if c, ok := ev.(api.Command); ok && c.CommandSeq() > seq {
			seq = c.CommandSeq()
		}
	}
	return seq
}

// sameCommand reports whether a produced command matches a recorded one by kind,
// sequence and identifying name.
func sameCommand(recorded, produced api.Command) bool {
	return reflect.TypeOf(recorded) == reflect.TypeOf(produced) &&
		recorded.CommandSeq() == produced.CommandSeq() &&
		recorded.CommandName() == produced.CommandName()
}

func describeCommand(c api.Command) string {
	if c == nil {
		return "nothing"
	}
	var b strings.Builder
	b.WriteString(c.EventName())
	fmt.Fprintf(&b, "#%d", c.CommandSeq())
	if name := c.CommandName(); name != "" {
		fmt.Fprintf(&b, "(%s)", name)
	}
	return b.String()
}

func mismatch(recorded, produced api.Command) *NonDeterminismError {
	seq := int64(0)
	switch {
	case recorded != nil:
		seq = recorded.CommandSeq()
	case produced != nil:
		seq = produced.CommandSeq()
	}
	return &NonDeterminismError{Seq: seq, Recorded: describeCommand(recorded), Produced: describeCommand(produced)}
}
