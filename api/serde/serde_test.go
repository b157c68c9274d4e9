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

package serde_test

import (
	"reflect"
	"testing"

	"github.com/ngnhng/durablereplay/api"
	"github.com/ngnhng/durablereplay/api/serde"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type NestedData struct {
	Value string `json:"value" msgpack:"value"`
	Count int    `json:"count" msgpack:"count"`
}

func TestDataConverter_Encodings(t *testing.T) {
	testCases := []struct {
		name     string
		codec    serde.Codec
		encoding string
	}{
		{"JSON", &serde.JsonSerde{}, serde.EncodingJSON},
		{"MessagePack", &serde.MsgpackSerde{}, serde.EncodingMsgpack},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conv := serde.NewDataConverter(tc.codec)

			p, err := conv.ToPayload(NestedData{Value: "v", Count: 3})
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if p.Encoding != tc.encoding {
				t.Errorf("encoding = %q, want %q", p.Encoding, tc.encoding)
			}

			var got NestedData
			if err := conv.FromPayload(p, &got); err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if got.Value != "v" || got.Count != 3 {
				t.Errorf("decoded %+v", got)
			}
		})
	}
}

func TestDataConverter_DecodesForeignEncoding(t *testing.T) {
	jsonConv := serde.NewDataConverter(&serde.JsonSerde{})
	msgpackConv := serde.NewDataConverter(&serde.MsgpackSerde{})

	p, err := jsonConv.ToPayload("hello")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var got string
	if err := msgpackConv.FromPayload(p, &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestDataConverter_Proto(t *testing.T) {
	conv := serde.NewDataConverter(nil)

	p, err := conv.ToPayload(wrapperspb.String("order-1"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if p.Encoding != serde.EncodingProto {
		t.Fatalf("encoding = %q, want %q", p.Encoding, serde.EncodingProto)
	}

	var direct wrapperspb.StringValue
	if err := conv.FromPayload(p, &direct); err != nil {
		t.Fatalf("decode into message failed: %v", err)
	}
	if direct.GetValue() != "order-1" {
		t.Errorf("got %q", direct.GetValue())
	}

	var ptr *wrapperspb.StringValue
	if err := conv.FromPayload(p, &ptr); err != nil {
		t.Fatalf("decode into message pointer failed: %v", err)
	}
	if ptr.GetValue() != "order-1" {
		t.Errorf("got %q", ptr.GetValue())
	}
}

func TestDataConverter_Nil(t *testing.T) {
	conv := serde.NewDataConverter(nil)

	p, err := conv.ToPayload(nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if p.Encoding != serde.EncodingNil {
		t.Fatalf("encoding = %q", p.Encoding)
	}

	got := "stale"
	if err := conv.FromPayload(p, &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got != "" {
		t.Errorf("null payload should zero the target, got %q", got)
	}
}

func TestDataConverter_Errors(t *testing.T) {
	conv := serde.NewDataConverter(nil)

	var s string
	if err := conv.FromPayload(&api.Payload{Encoding: "text/unknown"}, &s); err == nil {
		t.Error("expected error for unknown encoding")
	}
	p, _ := conv.ToPayload("x")
	if err := conv.FromPayload(p, s); err == nil {
		t.Error("expected error for non-pointer target")
	}
}

// TestTypeConverter verifies that TypeConverter restores Go types after a decode into any.
func TestTypeConverter(t *testing.T) {
	testCases := []struct {
		name  string
		serde serde.BinarySerde
	}{
		{"JSON", &serde.JsonSerde{}},
		{"MessagePack", &serde.MsgpackSerde{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			converter := serde.NewTypeConverter(tc.serde)

			t.Run("IntConversion", func(t *testing.T) {
				serialized, _ := tc.serde.SerializeBinary(42)
				var anyValue any
				if err := tc.serde.DeserializeBinary(serialized, &anyValue); err != nil {
					t.Fatal(err)
				}

				result, err := converter.ConvertToType(anyValue, reflect.TypeOf(0))
				if err != nil {
					t.Fatalf("Type conversion failed: %v", err)
				}
				if result.Interface() != 42 {
					t.Errorf("got %v (%T)", result.Interface(), result.Interface())
				}
			})

			t.Run("StructConversion", func(t *testing.T) {
				original := NestedData{Value: "test", Count: 99}
				serialized, _ := tc.serde.SerializeBinary(original)
				var mapValue map[string]any
				if err := tc.serde.DeserializeBinary(serialized, &mapValue); err != nil {
					t.Fatal(err)
				}

				result, err := converter.ConvertToType(mapValue, reflect.TypeOf(NestedData{}))
				if err != nil {
					t.Fatalf("Struct conversion failed: %v", err)
				}
				if got := result.Interface().(NestedData); got != original {
					t.Errorf("got %+v, want %+v", got, original)
				}
			})
		})
	}

	t.Run("PrecisionLoss", func(t *testing.T) {
		converter := serde.NewTypeConverter(&serde.JsonSerde{})
		if _, err := converter.ConvertToType(1.5, reflect.TypeOf(0)); err == nil {
			t.Error("expected precision error converting 1.5 to int")
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		converter := serde.NewTypeConverter(&serde.JsonSerde{})
		if _, err := converter.ConvertToType(300, reflect.TypeOf(int8(0))); err == nil {
			t.Error("expected overflow error converting 300 to int8")
		}
		got, err := converter.ConvertToType(int8(7), reflect.TypeOf(int64(0)))
		if err != nil || got.Interface() != int64(7) {
			t.Errorf("got %v, %v", got, err)
		}
	})
}
