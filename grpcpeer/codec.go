package grpcpeer

import (
	"go.dedis.ch/protobuf"
	"google.golang.org/grpc/encoding"
)

const codecName = "procomm"

func init() {
	encoding.RegisterCodec(codec{})
}

// codec encodes the messages of the Mailbox service with the reflection
// based protobuf encoder, so that no generated code is needed.
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	return protobuf.Encode(v)
}

func (codec) Unmarshal(data []byte, v any) error {
	return protobuf.Decode(data, v)
}

func (codec) Name() string {
	return codecName
}

// envelope is one message on the wire.
type envelope struct {
	Source int64
	Tag    int64
	Type   int64
	Data   []byte
}

type ack struct {
	Accepted bool
}
