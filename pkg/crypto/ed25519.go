package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/fortiblox/x1-anchor/pkg/types"
)

// VerifySignature verifies a single Ed25519 signature.
// Returns false if the public key or signature have invalid lengths.
func VerifySignature(pubkey, message, signature []byte) bool {
	if len(pubkey) != PublicKeySize {
		return false
	}
	if len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(pubkey, message, signature)
}

// VerifySignatureStrict is like VerifySignature but returns an error
// with details about why verification failed.
func VerifySignatureStrict(pubkey, message, signature []byte) error {
	if len(pubkey) != PublicKeySize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, PublicKeySize, len(pubkey))
	}
	if len(signature) != SignatureSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(signature))
	}
	if !ed25519.Verify(pubkey, message, signature) {
		return ErrVerificationFailed
	}
	return nil
}

// SignatureVerifier answers "did this key sign this message".
type SignatureVerifier interface {
	Verify(pubkey types.Pubkey, message []byte, signature types.Signature) bool
}

// Ed25519Verifier checks signatures with Ed25519.
type Ed25519Verifier struct{}

// Verify implements SignatureVerifier.
func (Ed25519Verifier) Verify(pubkey types.Pubkey, message []byte, signature types.Signature) bool {
	return VerifySignature(pubkey[:], message, signature[:])
}

// TrustingVerifier accepts every signature. Only for replaying already
// verified input or for local testing.
type TrustingVerifier struct{}

// Verify implements SignatureVerifier.
func (TrustingVerifier) Verify(types.Pubkey, []byte, types.Signature) bool {
	return true
}

// VerifySigners checks a signature for every pubkey in signers and returns
// the set that verified. Keys with a missing or bad signature are reported in
// the returned errors and left out of the set.
func VerifySigners(v SignatureVerifier, message []byte, signers []types.Pubkey, sigs map[types.Pubkey]types.Signature) (map[types.Pubkey]bool, []error) {
	verified := make(map[types.Pubkey]bool, len(signers))
	var errs []error
	for _, pk := range signers {
		if verified[pk] {
			continue
		}
		sig, ok := sigs[pk]
		if !ok {
			errs = append(errs, &VerificationError{Pubkey: pk.String(), Err: ErrMissingSignature})
			continue
		}
		if !v.Verify(pk, message, sig) {
			errs = append(errs, &VerificationError{Pubkey: pk.String(), Err: ErrVerificationFailed})
			continue
		}
		verified[pk] = true
	}
	return verified, errs
}
