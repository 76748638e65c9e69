// Package crypto provides the signature check the host runtime performs
// before it hands signer flags to the engine.
//
// The engine never verifies signatures itself. It trusts the signer flag on
// each account, and the runtime only sets that flag for pubkeys whose Ed25519
// signature over the transaction message verifies here.
package crypto

import (
	"errors"
	"fmt"
)

// Signature and key sizes for Ed25519.
const (
	// PublicKeySize is the size of an Ed25519 public key in bytes.
	PublicKeySize = 32

	// SignatureSize is the size of an Ed25519 signature in bytes.
	SignatureSize = 64
)

// Common errors returned by the crypto package.
var (
	// ErrInvalidPublicKey is returned when a public key has an invalid format.
	ErrInvalidPublicKey = errors.New("crypto: invalid public key")

	// ErrInvalidSignature is returned when a signature has an invalid format.
	ErrInvalidSignature = errors.New("crypto: invalid signature")

	// ErrVerificationFailed is returned when signature verification fails.
	ErrVerificationFailed = errors.New("crypto: signature verification failed")

	// ErrMissingSignature is returned when a signer has no signature attached.
	ErrMissingSignature = errors.New("crypto: missing signature")
)

// VerificationError contains details about a signature verification failure.
type VerificationError struct {
	// Pubkey is the base58 representation of the public key.
	Pubkey string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	return fmt.Sprintf("crypto: verification failed for pubkey %s: %v", e.Pubkey, e.Err)
}

// Unwrap returns the underlying error.
func (e *VerificationError) Unwrap() error {
	return e.Err
}
