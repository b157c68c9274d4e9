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

	"google.golang.org/protobuf/proto"
)

var _ Codec = (*ProtoSerde)(nil)

// ProtoSerde handles proto.Message values only. CompositeConverter picks it for
// messages regardless of the preferred codec.
type ProtoSerde struct{}

func (*ProtoSerde) SerializeBinary(value any) ([]byte, error) {
	msg, ok := value.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("encode protobuf: %T is not a proto.Message", value)
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode protobuf %s: %w", msg.ProtoReflect().Descriptor().FullName(), err)
	}
	return data, nil
}

func (*ProtoSerde) DeserializeBinary(data []byte, valuePtr any) error {
	msg, ok := valuePtr.(proto.Message)
	if !ok {
		return fmt.Errorf("decode protobuf: %T is not a proto.Message", valuePtr)
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("decode protobuf %s: %w", msg.ProtoReflect().Descriptor().FullName(), err)
	}
	return nil
}

func (*ProtoSerde) Encoding() string { return EncodingProto }
