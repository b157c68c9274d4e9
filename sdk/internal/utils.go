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
	"runtime"
)

// extractFullFunctionName extracts the function's name with the preceding packages details.
func extractFullFunctionName(fn any) (string, error) {
	if reflect.TypeOf(fn).Kind() != reflect.Func {
		return "", fmt.Errorf("fn is not of function type")
	}
	fnObj := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if fnObj == nil {
		return "", fmt.Errorf("could not retrieve function metadata")
	}

	return fnObj.Name(), nil
}

// decodeArguments decodes payloads into the non-context parameters of fnType.
func decodeArguments(fnType reflect.Type, n int, decode func(i int, ptr any) error) ([]reflect.Value, error) {
	want := fnType.NumIn() - 1
	if n != want {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", fnType, want, n)
	}
	args := make([]reflect.Value, 0, want)
	for i := range n {
		ptr := reflect.New(fnType.In(i + 1))
		if err := decode(i, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decode argument %d: %w", i, err)
		}
		args = append(args, ptr.Elem())
	}
	return args, nil
}

// splitResults separates the outputs of a validated function call.
func splitResults(out []reflect.Value) (any, error) {
	var err error
	if e := out[len(out)-1]; !e.IsNil() {
		err = e.Interface().(error)
	}
	if len(out) == 2 {
		return out[0].Interface(), err
	}
	return nil, err
}
