package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Amount uint64
	Label  string
	Flags  []uint16
	Key    [32]byte
}

func TestEncodeLayout(t *testing.T) {
	raw, err := Encode(&struct {
		A uint16
		B string
	}{A: 0x0102, B: "hi"})
	require.NoError(t, err)
	// little-endian u16, then u32 length prefix, then bytes, no padding
	require.Equal(t, []byte{0x02, 0x01, 2, 0, 0, 0, 'h', 'i'}, raw)
}

func TestDecodeRoundTrip(t *testing.T) {
	in := sample{Amount: 42, Label: "vault", Flags: []uint16{1, 2, 3}}
	in.Key[0] = 7

	raw, err := Encode(&in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Decode(raw, &out))
	require.Equal(t, in, out)
}

func TestDecodeShortInputReportsOffset(t *testing.T) {
	var v struct {
		A uint32
		B uint64
	}
	// A decodes (4 bytes), B needs 8 but only 3 remain.
	err := DecodeAt([]byte{1, 0, 0, 0, 9, 9, 9}, 8, &v)

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	require.Equal(t, 12, decErr.Offset)
}

func TestDecodeTrailingBytes(t *testing.T) {
	var v uint16
	err := Decode([]byte{1, 0, 5}, &v)

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	require.Equal(t, 2, decErr.Offset)
	require.ErrorIs(t, err, ErrTrailingBytes)
}

func TestInstructionDiscriminator(t *testing.T) {
	// Tag of the "initialize" instruction as published in the program IDL.
	want := Discriminator{175, 175, 109, 31, 13, 152, 155, 237}
	require.Equal(t, want, InstructionDiscriminator("initialize"))
	require.Equal(t, []int{175, 175, 109, 31, 13, 152, 155, 237}, want.Ints())
	require.NotEqual(t, InstructionDiscriminator("initialize"), AccountDiscriminator("initialize"))
}

func TestDiscriminatorFromBytes(t *testing.T) {
	_, err := DiscriminatorFromBytes([]byte{1, 2, 3})
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	require.Equal(t, 3, decErr.Offset)
	require.ErrorIs(t, err, ErrShortBuffer)

	d, err := DiscriminatorFromBytes([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	require.NoError(t, err)
	require.Equal(t, "0102030405060708", d.String())
}

func TestEncodeWithDiscriminator(t *testing.T) {
	d := InstructionDiscriminator("deposit")
	raw, err := EncodeWithDiscriminator(d, uint64(5))
	require.NoError(t, err)
	require.Len(t, raw, 16)
	require.Equal(t, d[:], raw[:8])

	var amount uint64
	require.NoError(t, DecodeAt(raw[8:], 8, &amount))
	require.EqualValues(t, 5, amount)
}

func TestDecodePrefixAllowsPadding(t *testing.T) {
	var v uint32
	n, err := DecodePrefix([]byte{7, 0, 0, 0, 0, 0, 0}, 0, &v)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.EqualValues(t, 7, v)

	_, err = DecodePrefix([]byte{7, 0}, 8, &v)
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	require.Equal(t, 8, decErr.Offset)
}
