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

// Encoding names stamped on payloads.
const (
	EncodingNil     = "binary/null"
	EncodingJSON    = "json/plain"
	EncodingMsgpack = "binary/msgpack"
	EncodingProto   = "binary/protobuf"
)

// BinarySerde is the event log serializer contract.
type BinarySerde interface {
	SerializeBinary(value any) ([]byte, error)
	DeserializeBinary(data []byte, valuePtr any) error
}

// Codec is a BinarySerde that names the payload encoding it produces.
type Codec interface {
	BinarySerde
	Encoding() string
}

// ByName returns the codec for a configured serde name (json or msgpack).
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return &JsonSerde{}, true
	case "msgpack", "":
		return &MsgpackSerde{}, true
	}
	return nil, false
}
