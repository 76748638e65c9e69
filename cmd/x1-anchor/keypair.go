package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fortiblox/x1-anchor/pkg/types"
)

// Keypairs are stored as a JSON array of the 64 secret key bytes, the
// format the Solana CLI writes.

func loadKeypair(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair: %w", err)
	}
	var raw []byte
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("failed to parse keypair %s: %w", path, err)
	}
	for _, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair %s: byte value %d out of range", path, v)
		}
		raw = append(raw, byte(v))
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair %s: expected %d bytes, got %d", path, ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

func writeKeypair(path string, key ed25519.PrivateKey) error {
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create keypair directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func generateKeypair() (ed25519.PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	return key, err
}

func publicKey(key ed25519.PrivateKey) types.Pubkey {
	var pk types.Pubkey
	copy(pk[:], key.Public().(ed25519.PublicKey))
	return pk
}

// parseAccountMeta parses PUBKEY[:FLAGS] where FLAGS is any of "s" (signer)
// and "w" (writable).
func parseAccountMeta(s string) (types.AccountMeta, error) {
	key, flags, _ := strings.Cut(s, ":")
	pk, err := types.PubkeyFromBase58(key)
	if err != nil {
		return types.AccountMeta{}, fmt.Errorf("account %q: %w", s, err)
	}
	meta := types.AccountMeta{Pubkey: pk}
	for _, f := range flags {
		switch f {
		case 's':
			meta.IsSigner = true
		case 'w':
			meta.IsWritable = true
		default:
			return types.AccountMeta{}, fmt.Errorf("account %q: unknown flag %q", s, f)
		}
	}
	return meta, nil
}

// parseSeed parses one derivation seed: str:TEXT, key:BASE58, hex:BYTES or
// u8:N.
func parseSeed(s string) ([]byte, error) {
	kind, val, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("seed %q: expected KIND:VALUE", s)
	}
	switch kind {
	case "str":
		return []byte(val), nil
	case "key":
		pk, err := types.PubkeyFromBase58(val)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", s, err)
		}
		return pk[:], nil
	case "hex":
		b, err := hex.DecodeString(val)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", s, err)
		}
		return b, nil
	case "u8":
		n, err := strconv.ParseUint(val, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", s, err)
		}
		return []byte{byte(n)}, nil
	default:
		return nil, fmt.Errorf("seed %q: unknown kind %q", s, kind)
	}
}
