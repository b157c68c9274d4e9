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

package serde

import (
	"fmt"
	"math"
	"reflect"
)

// TypeConverter coerces values that lost their Go type, such as numbers decoded
// into any or structs decoded into maps, back into a concrete type.
type TypeConverter struct {
	serde BinarySerde
}

func NewTypeConverter(s BinarySerde) *TypeConverter {
	return &TypeConverter{serde: s}
}

// ConvertToType returns value as a reflect.Value of type to. Numbers convert
// only when no precision is lost; anything else is re-encoded with the
// converter's serde and decoded into to.
func (tc *TypeConverter) ConvertToType(value any, to reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(to), nil
	}
	from := reflect.ValueOf(value)
	switch {
	case from.Type() == to:
		return from, nil
	case numeric(from.Kind()) && numeric(to.Kind()):
		return convertNumber(from, to)
	case from.Type().ConvertibleTo(to) && !numeric(from.Kind()):
		return from.Convert(to), nil
	}
	return tc.reencode(value, to)
}

func (tc *TypeConverter) reencode(value any, to reflect.Type) (reflect.Value, error) {
	data, err := tc.serde.SerializeBinary(value)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("re-encode %T: %w", value, err)
	}
	elem := to
	if to.Kind() == reflect.Pointer {
		elem = to.Elem()
	}
	out := reflect.New(elem)
	if err := tc.serde.DeserializeBinary(data, out.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("decode %T into %s: %w", value, to, err)
	}
	if to.Kind() == reflect.Pointer {
		return out, nil
	}
	return out.Elem(), nil
}

func convertNumber(from reflect.Value, to reflect.Type) (reflect.Value, error) {
	if isFloat(from.Kind()) && !isFloat(to.Kind()) {
		f := from.Float()
		if f != math.Trunc(f) {
			return reflect.Value{}, fmt.Errorf("%v is not an integer, cannot convert to %s", f, to)
		}
	}
	out := from.Convert(to)
	if !out.CanConvert(from.Type()) || out.Convert(from.Type()).Interface() != from.Interface() {
		return reflect.Value{}, fmt.Errorf("%v overflows %s", from.Interface(), to)
	}
	return out, nil
}

func numeric(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uint64) || isFloat(k)
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
