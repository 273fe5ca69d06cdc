package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

type protoCodec[T proto.Message] struct {
	newMsg     func() T
	validators []func(T) error
}

// Proto stores protobuf messages. newMsg must return an empty, non-nil
// message to decode into. Test checks required fields and then runs the
// optional validators in order.
func Proto[T proto.Message](newMsg func() T, validators ...func(T) error) Codec[T] {
	return protoCodec[T]{newMsg: newMsg, validators: validators}
}

func (protoCodec[T]) Name() string { return "proto" }

func (c protoCodec[T]) Test(v T) error {
	if any(v) == nil || !v.ProtoReflect().IsValid() {
		return fmt.Errorf("nil %T", v)
	}
	if err := proto.CheckInitialized(v); err != nil {
		return err
	}
	for _, validate := range c.validators {
		if err := validate(v); err != nil {
			return err
		}
	}
	return nil
}

func (protoCodec[T]) ToBuffer(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c protoCodec[T]) FromBuffer(b []byte) (T, error) {
	msg := c.newMsg()
	if err := proto.Unmarshal(b, msg); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: proto: %v", ErrDecode, err)
	}
	return msg, nil
}
