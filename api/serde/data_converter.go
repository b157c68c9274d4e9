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
	"reflect"

	"github.com/ngnhng/durablereplay/api"
	"google.golang.org/protobuf/proto"
)

// DataConverter turns workflow and activity values into encoding-tagged payloads.
type DataConverter interface {
	ToPayload(value any) (*api.Payload, error)
	ToPayloads(values ...any) ([]api.Payload, error)
	FromPayload(p *api.Payload, valuePtr any) error
}

var _ DataConverter = (*CompositeConverter)(nil)

// CompositeConverter encodes proto.Message values with protobuf and everything
// else with the preferred codec. Decoding dispatches on the payload encoding, so
// histories written with one preferred codec stay readable after switching.
type CompositeConverter struct {
	preferred Codec
	codecs    map[string]Codec
}

// NewDataConverter returns a CompositeConverter preferring c; nil means msgpack.
func NewDataConverter(c Codec) *CompositeConverter {
	if c == nil {
		c = &MsgpackSerde{}
	}
	codecs := map[string]Codec{}
	for _, known := range []Codec{&JsonSerde{}, &MsgpackSerde{}, &ProtoSerde{}, c} {
		codecs[known.Encoding()] = known
	}
	return &CompositeConverter{preferred: c, codecs: codecs}
}

func (c *CompositeConverter) ToPayload(value any) (*api.Payload, error) {
	if isNil(value) {
		return &api.Payload{Encoding: EncodingNil}, nil
	}
	codec := c.preferred
	if _, ok := value.(proto.Message); ok {
		codec = c.codecs[EncodingProto]
	}
	data, err := codec.SerializeBinary(value)
	if err != nil {
		return nil, err
	}
	return &api.Payload{Encoding: codec.Encoding(), Data: data}, nil
}

func (c *CompositeConverter) ToPayloads(values ...any) ([]api.Payload, error) {
	out := make([]api.Payload, 0, len(values))
	for i, v := range values {
		p, err := c.ToPayload(v)
		if err != nil {
			return nil, fmt.Errorf("encode argument %d: %w", i, err)
		}
		out = append(out, *p)
	}
	return out, nil
}

// FromPayload decodes p into valuePtr. A nil payload or nil valuePtr is a no-op;
// a null payload zeroes the target.
func (c *CompositeConverter) FromPayload(p *api.Payload, valuePtr any) error {
	if p == nil || valuePtr == nil {
		return nil
	}
	rv := reflect.ValueOf(valuePtr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", valuePtr)
	}
	if p.Encoding == EncodingNil || p.Encoding == "" {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return nil
	}
	codec, ok := c.codecs[p.Encoding]
	if !ok {
		return fmt.Errorf("unknown payload encoding %q", p.Encoding)
	}
	if codec.Encoding() == EncodingProto {
		if _, ok := valuePtr.(proto.Message); !ok {
			// **T where *T is the message
			if elem := rv.Elem(); elem.Kind() == reflect.Pointer {
				msg := reflect.New(elem.Type().Elem())
				if err := codec.DeserializeBinary(p.Data, msg.Interface()); err != nil {
					return err
				}
				elem.Set(msg)
				return nil
			}
		}
	}
	return codec.DeserializeBinary(p.Data, valuePtr)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
