package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is sent as the content-subtype, i.e. "application/grpc+json".
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec lets the payment service exchange plain Go structs without
// generated protobuf types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }
