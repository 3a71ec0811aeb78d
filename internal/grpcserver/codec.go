package grpcserver

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// CodecName is the content subtype both ends of the Economy service negotiate.
// Messages travel as protobuf google.protobuf.Struct values.
const CodecName = "protostruct"

type structCodec struct{}

func (structCodec) Marshal(value any) ([]byte, error) {
	fields, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("struct codec marshal: %w", err)
	}
	message := &structpb.Struct{}
	if err := protojson.Unmarshal(fields, message); err != nil {
		return nil, fmt.Errorf("struct codec marshal: %w", err)
	}
	data, err := proto.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("struct codec marshal: %w", err)
	}
	return data, nil
}

func (structCodec) Unmarshal(data []byte, value any) error {
	if len(data) == 0 {
		return nil
	}
	message := &structpb.Struct{}
	if err := proto.Unmarshal(data, message); err != nil {
		return fmt.Errorf("struct codec unmarshal: %w", err)
	}
	fields, err := protojson.Marshal(message)
	if err != nil {
		return fmt.Errorf("struct codec unmarshal: %w", err)
	}
	if err := json.Unmarshal(fields, value); err != nil {
		return fmt.Errorf("struct codec unmarshal: %w", err)
	}
	return nil
}

func (structCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(structCodec{})
}
