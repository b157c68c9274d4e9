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
	"bytes"
	"encoding/json"
	"fmt"
)

var _ Codec = (*JsonSerde)(nil)

// JsonSerde stores payloads as plain JSON. Numbers decoded into any come back
// as float64; TypeConverter restores the declared type.
type JsonSerde struct{}

func (*JsonSerde) SerializeBinary(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return data, nil
}

func (*JsonSerde) DeserializeBinary(data []byte, valuePtr any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(valuePtr); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("decode json: trailing data after value")
	}
	return nil
}

func (*JsonSerde) Encoding() string { return EncodingJSON }
