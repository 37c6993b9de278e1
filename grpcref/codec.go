package grpcref

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype the broker protocol runs on. Both
// halves resolve it from the global codec registry.
const codecName = "json"

// jsonCodec is a JSON-based gRPC codec. The broker protocol has no proto
// definitions; requests and responses are plain JSON structs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
