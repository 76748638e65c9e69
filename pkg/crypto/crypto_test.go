package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-anchor/pkg/types"
)

func generateKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func TestVerifySignature(t *testing.T) {
	pub, priv := generateKeypair(t)
	message := []byte("test message")
	signature := ed25519.Sign(priv, message)

	require.True(t, VerifySignature(pub, message, signature))
	require.False(t, VerifySignature(pub, []byte("other message"), signature))
	require.False(t, VerifySignature(pub[:31], message, signature))
	require.False(t, VerifySignature(pub, message, signature[:63]))

	signature[0] ^= 0xff
	require.False(t, VerifySignature(pub, message, signature))
}

func TestVerifySignatureStrict(t *testing.T) {
	pub, priv := generateKeypair(t)
	message := []byte("strict")
	signature := ed25519.Sign(priv, message)

	require.NoError(t, VerifySignatureStrict(pub, message, signature))
	require.ErrorIs(t, VerifySignatureStrict(pub[:5], message, signature), ErrInvalidPublicKey)
	require.ErrorIs(t, VerifySignatureStrict(pub, message, signature[:5]), ErrInvalidSignature)
	require.ErrorIs(t, VerifySignatureStrict(pub, []byte("x"), signature), ErrVerificationFailed)
}

func TestVerifySigners(t *testing.T) {
	message := []byte("message")

	pubA, privA := generateKeypair(t)
	pubB, _ := generateKeypair(t)
	pubC, privC := generateKeypair(t)

	a, err := types.PubkeyFromBytes(pubA)
	require.NoError(t, err)
	b, err := types.PubkeyFromBytes(pubB)
	require.NoError(t, err)
	c, err := types.PubkeyFromBytes(pubC)
	require.NoError(t, err)

	sigA, err := types.SignatureFromBytes(ed25519.Sign(privA, message))
	require.NoError(t, err)
	// C signed a different message
	sigC, err := types.SignatureFromBytes(ed25519.Sign(privC, []byte("other")))
	require.NoError(t, err)

	verified, errs := VerifySigners(Ed25519Verifier{}, message, []types.Pubkey{a, b, c, a},
		map[types.Pubkey]types.Signature{a: sigA, c: sigC})

	require.True(t, verified[a])
	require.False(t, verified[b])
	require.False(t, verified[c])
	require.Len(t, errs, 2)

	var verr *VerificationError
	require.True(t, errors.As(errs[0], &verr))
	require.Equal(t, b.String(), verr.Pubkey)
	require.ErrorIs(t, errs[0], ErrMissingSignature)
	require.ErrorIs(t, errs[1], ErrVerificationFailed)
}

func TestTrustingVerifier(t *testing.T) {
	verified, errs := VerifySigners(TrustingVerifier{}, nil, []types.Pubkey{types.SystemProgramID},
		map[types.Pubkey]types.Signature{types.SystemProgramID: {}})
	require.Empty(t, errs)
	require.True(t, verified[types.SystemProgramID])
}
