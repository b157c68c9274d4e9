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
	"math/rand/v2"
	"time"

	"github.com/ngnhng/durablereplay/api"
	"github.com/ngnhng/durablereplay/api/serde"
)

// Version is the branch a workflow took at a versioned code change.
type Version int

// DefaultVersion is returned by GetVersion for executions that reached the change
// before it was introduced.
const DefaultVersion Version = -1

// EncodedValue is a recorded value that is decoded on demand.
type EncodedValue interface {
	HasValue() bool
	Get(valuePtr any) error
}

type encodedValue struct {
	payload   *api.Payload
	converter serde.DataConverter
}

func (v *encodedValue) HasValue() bool {
	return v.payload != nil && v.payload.Encoding != serde.EncodingNil
}

func (v *encodedValue) Get(valuePtr any) error {
	return v.converter.FromPayload(v.payload, valuePtr)
}

// recordMarker returns the value of the next marker. Live, produce is called and
// its result recorded; on replay the recorded value is returned and produce is
// never called.
func (e *workflowExecutor) recordMarker(name, key string, produce func() any) *api.Payload {
	seq := e.nextSeq()
	if e.replaying {
		recorded, ok := e.markers[seq]
		if !ok || recorded.Name != name || recorded.Key != key {
			var rec api.Command
			if ok {
				rec = recorded
			}
			panic(mismatch(rec, &api.MarkerRecorded{Seq: seq, Name: name, Key: key}))
		}
		e.emit(recorded)
		return recorded.Data
	}
	payload, err := e.converter.ToPayload(produce())
	if err != nil {
		panic(fmt.Errorf("encode %s marker: %w", name, err))
	}
	e.emit(&api.MarkerRecorded{Seq: seq, Name: name, Key: key, Data: payload})
	return payload
}

// Now returns the current time as recorded the first time this call ran.
func Now(ctx Context) time.Time {
	e := getExecutor(ctx)
	var now time.Time
	payload := e.recordMarker(api.MarkerNow, "", func() any { return time.Now().UTC() })
	if err := e.converter.FromPayload(payload, &now); err != nil {
		panic(fmt.Errorf("decode now marker: %w", err))
	}
	return now
}

// randomSeedKey tells a NewRandom seed apart from a Random value.
const randomSeedKey = "seed"

// Random returns a random number recorded the first time this call ran.
func Random(ctx Context) uint64 {
	e := getExecutor(ctx)
	var v uint64
	payload := e.recordMarker(api.MarkerRandom, "", func() any { return rand.Uint64() })
	if err := e.converter.FromPayload(payload, &v); err != nil {
		panic(fmt.Errorf("decode random marker: %w", err))
	}
	return v
}

// NewRandom returns a generator seeded from a recorded seed, so it yields the
// same sequence on every replay.
func NewRandom(ctx Context) *rand.Rand {
	e := getExecutor(ctx)
	var seed [2]uint64
	payload := e.recordMarker(api.MarkerRandom, randomSeedKey, func() any {
		return [2]uint64{rand.Uint64(), rand.Uint64()}
	})
	if err := e.converter.FromPayload(payload, &seed); err != nil {
		panic(fmt.Errorf("decode random marker: %w", err))
	}
	return rand.New(rand.NewPCG(seed[0], seed[1]))
}

// SideEffect runs fn once and records its result. Replays return the recorded
// result without calling fn. fn must not block or fail; use an activity for that.
func SideEffect(ctx Context, fn func(ctx Context) any) EncodedValue {
	e := getExecutor(ctx)
	payload := e.recordMarker(api.MarkerSideEffect, "", func() any { return fn(ctx) })
	return &encodedValue{payload: payload, converter: e.converter}
}

// GetVersion returns the version of changeID this execution runs. A new execution
// records maxSupported. An execution replaying history recorded before the change
// existed gets DefaultVersion. A version outside [minSupported, maxSupported]
// fails the workflow task.
func GetVersion(ctx Context, changeID string, minSupported, maxSupported Version) Version {
	e := getExecutor(ctx)
	v, ok := e.versions[changeID]
	if !ok {
		v = e.lookupVersion(changeID, maxSupported)
		e.versions[changeID] = v
	}
	if v < minSupported || v > maxSupported {
		panic(&ProgrammingError{Message: fmt.Sprintf(
			"version %d of change %q is outside the supported range [%d, %d]", v, changeID, minSupported, maxSupported)})
	}
	return v
}

func (e *workflowExecutor) lookupVersion(changeID string, maxSupported Version) Version {
	if e.replaying {
		next, ok := e.markers[e.seq+1]
		if !ok || next.Name != api.MarkerVersion || next.Key != changeID {
			return DefaultVersion
		}
	}
	var v Version
	payload := e.recordMarker(api.MarkerVersion, changeID, func() any { return maxSupported })
	if err := e.converter.FromPayload(payload, &v); err != nil {
		panic(fmt.Errorf("decode version marker: %w", err))
	}
	return v
}
