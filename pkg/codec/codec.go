// Package codec implements the payload encoding shared by instruction
// arguments, return data and typed account state: Borsh layout (little-endian
// integers, u32 length prefix for strings and sequences, no padding) behind
// an 8-byte discriminator.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	bin "github.com/gagliardetto/binary"
)

var (
	// ErrTrailingBytes indicates bytes left over after the value was decoded.
	ErrTrailingBytes = errors.New("codec: trailing bytes after value")
	// ErrShortBuffer indicates the input ends before a discriminator.
	ErrShortBuffer = errors.New("codec: buffer shorter than discriminator")
)

// DecodeError reports where in the input decoding stopped.
type DecodeError struct {
	// Offset is the absolute byte offset of the first byte that could not
	// be consumed.
	Offset int
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed at offset %d: %v", e.Offset, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode serializes v in Borsh layout. A pointer is encoded as its target,
// never as an optional.
func Encode(v interface{}) ([]byte, error) {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && !rv.IsNil() {
		v = rv.Elem().Interface()
	}
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, fmt.Errorf("codec: encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into v, which must be a pointer. The whole input
// must be consumed.
func Decode(data []byte, v interface{}) error {
	return DecodeAt(data, 0, v)
}

// DecodeAt is Decode for a slice that starts base bytes into a larger
// buffer, so DecodeError offsets point into the original buffer.
func DecodeAt(data []byte, base int, v interface{}) error {
	dec := bin.NewBorshDecoder(data)
	if err := dec.Decode(v); err != nil {
		return &DecodeError{Offset: base + int(dec.Position()), Err: err}
	}
	if dec.HasRemaining() {
		return &DecodeError{
			Offset: base + int(dec.Position()),
			Err:    fmt.Errorf("%w: %d left", ErrTrailingBytes, dec.Remaining()),
		}
	}
	return nil
}

// DecodePrefix decodes v from the front of data and returns how many bytes
// it used. Trailing bytes are allowed, which suits account buffers that are
// allocated larger than their state.
func DecodePrefix(data []byte, base int, v interface{}) (int, error) {
	dec := bin.NewBorshDecoder(data)
	if err := dec.Decode(v); err != nil {
		return 0, &DecodeError{Offset: base + int(dec.Position()), Err: err}
	}
	return int(dec.Position()), nil
}
