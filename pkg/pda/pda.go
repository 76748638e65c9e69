// Package pda implements the derived-address scheme.
//
// A derived address is SHA256(seed_0 || ... || seed_n || program_id ||
// "ProgramDerivedAddress"), accepted only when the digest does not decode to a
// point on the ed25519 curve, so no private key can ever sign for it.
package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/fortiblox/x1-anchor/pkg/types"
)

const (
	// MaxSeeds is the maximum number of seeds, bump included.
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed.
	MaxSeedLen = 32
	// Marker is appended after the program id.
	Marker = "ProgramDerivedAddress"
)

var (
	// ErrTooManySeeds indicates more than MaxSeeds seeds were supplied.
	ErrTooManySeeds = errors.New("pda: too many seeds")
	// ErrSeedTooLong indicates a seed longer than MaxSeedLen.
	ErrSeedTooLong = errors.New("pda: seed too long")
	// ErrOnCurve indicates the derived digest is a valid curve point.
	ErrOnCurve = errors.New("pda: derived address is on the ed25519 curve")
	// ErrBumpNotFound indicates no bump in 255..0 produced an off-curve address.
	ErrBumpNotFound = errors.New("pda: unable to find a viable bump seed")
)

// CreateProgramAddress derives the address for exactly the given seeds.
func CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return types.ZeroPubkey, fmt.Errorf("%w: %d > %d", ErrTooManySeeds, len(seeds), MaxSeeds)
	}

	hasher := sha256.New()
	for i, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return types.ZeroPubkey, fmt.Errorf("%w: seed %d is %d bytes", ErrSeedTooLong, i, len(seed))
		}
		hasher.Write(seed)
	}
	hasher.Write(programID[:])
	hasher.Write([]byte(Marker))

	var addr types.Pubkey
	copy(addr[:], hasher.Sum(nil))

	if IsOnCurve(addr[:]) {
		return types.ZeroPubkey, ErrOnCurve
	}
	return addr, nil
}

// FindProgramAddress appends a one-byte bump to seeds, trying 255 down to 0,
// and returns the first off-curve address with its bump (the canonical bump).
func FindProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return types.ZeroPubkey, 0, fmt.Errorf("%w: %d seeds leave no room for a bump", ErrTooManySeeds, len(seeds))
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	bump := []byte{0}
	withBump[len(seeds)] = bump

	for b := 255; b >= 0; b-- {
		bump[0] = uint8(b)
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(b), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return types.ZeroPubkey, 0, err
		}
	}
	return types.ZeroPubkey, 0, ErrBumpNotFound
}

// IsOnCurve reports whether b is the compressed encoding of an ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// StringSeeds converts string seeds to byte seeds.
func StringSeeds(seeds ...string) [][]byte {
	out := make([][]byte, len(seeds))
	for i, s := range seeds {
		out[i] = []byte(s)
	}
	return out
}
