package codec

import (
	"crypto/sha256"
	"encoding/hex"
)

// DiscriminatorSize is the width of instruction and account tags.
const DiscriminatorSize = 8

// Discriminator is the fixed-width tag in front of an instruction payload or
// typed account state.
type Discriminator [DiscriminatorSize]byte

// InstructionDiscriminator is sha256("global:" + name)[:8].
func InstructionDiscriminator(name string) Discriminator {
	return sighash("global", name)
}

// AccountDiscriminator is sha256("account:" + name)[:8].
func AccountDiscriminator(name string) Discriminator {
	return sighash("account", name)
}

func sighash(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// DiscriminatorFromBytes reads the leading tag of b.
func DiscriminatorFromBytes(b []byte) (Discriminator, error) {
	if len(b) < DiscriminatorSize {
		return Discriminator{}, &DecodeError{Offset: len(b), Err: ErrShortBuffer}
	}
	var d Discriminator
	copy(d[:], b[:DiscriminatorSize])
	return d, nil
}

// String returns the hex form.
func (d Discriminator) String() string {
	return hex.EncodeToString(d[:])
}

// Ints returns the tag as a list of byte values, the form IDL files use.
func (d Discriminator) Ints() []int {
	out := make([]int, DiscriminatorSize)
	for i, b := range d {
		out[i] = int(b)
	}
	return out
}

// EncodeWithDiscriminator writes d followed by the Borsh encoding of v.
func EncodeWithDiscriminator(d Discriminator, v interface{}) ([]byte, error) {
	body, err := Encode(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, DiscriminatorSize+len(body))
	out = append(out, d[:]...)
	return append(out, body...), nil
}
