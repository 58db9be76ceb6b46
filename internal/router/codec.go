package router

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered as the wire codec name; clients select it
// via grpc.CallContentSubtype("json") or a matching content-type.
const jsonCodecName = "json"

// jsonCodec implements encoding.Codec using encoding/json instead of
// protobuf wire format. There is no protoc-generated Go package for this
// service's messages, so ExecuteRequest/ExecuteResponse are plain Go
// structs exchanged as JSON over the same grpc.Server/grpc.ClientConn
// machinery any protobuf service uses; grpc-go's encoding.Codec
// interface is the documented extension point for exactly this.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("router: json marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("router: json unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
