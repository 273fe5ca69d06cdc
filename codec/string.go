package codec

import (
	"errors"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("value is not valid UTF-8")

type stringCodec struct{}

// String stores values as raw UTF-8 bytes.
func String() Codec[string] {
	return stringCodec{}
}

func (stringCodec) Name() string { return "string" }

func (stringCodec) Test(v string) error {
	if !utf8.ValidString(v) {
		return errInvalidUTF8
	}
	return nil
}

func (stringCodec) ToBuffer(v string) ([]byte, error) {
	return []byte(v), nil
}

func (stringCodec) FromBuffer(b []byte) (string, error) {
	return string(b), nil
}
