package runtime

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/fortiblox/x1-anchor/pkg/codec"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

// Transaction is an ordered batch of instructions that commits or aborts as
// a unit. Every signature covers the same message, see Message.
type Transaction struct {
	Instructions []types.Instruction            `json:"instructions"`
	Signatures   map[types.Pubkey]types.Signature `json:"signatures,omitempty"`
}

// NewTransaction creates an unsigned transaction.
func NewTransaction(instructions ...types.Instruction) *Transaction {
	return &Transaction{Instructions: instructions}
}

// Message returns the bytes signers sign: the Borsh encoding of the
// instruction list.
func (tx *Transaction) Message() ([]byte, error) {
	return codec.Encode(tx.Instructions)
}

// Signers returns every pubkey some instruction marks as a signer, in first
// appearance order.
func (tx *Transaction) Signers() []types.Pubkey {
	seen := make(map[types.Pubkey]bool)
	var out []types.Pubkey
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if meta.IsSigner && !seen[meta.Pubkey] {
				seen[meta.Pubkey] = true
				out = append(out, meta.Pubkey)
			}
		}
	}
	return out
}

// Sign adds a signature from each key over the current message. Keys whose
// public half is not a signer of the transaction are rejected.
func (tx *Transaction) Sign(keys ...ed25519.PrivateKey) error {
	msg, err := tx.Message()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	signers := make(map[types.Pubkey]bool)
	for _, pk := range tx.Signers() {
		signers[pk] = true
	}
	if tx.Signatures == nil {
		tx.Signatures = make(map[types.Pubkey]types.Signature, len(keys))
	}
	for _, key := range keys {
		pub, err := types.PubkeyFromBytes(key.Public().(ed25519.PublicKey))
		if err != nil {
			return err
		}
		if !signers[pub] {
			return fmt.Errorf("%w: %s", ErrUnexpectedSigner, pub)
		}
		var sig types.Signature
		copy(sig[:], ed25519.Sign(key, msg))
		tx.Signatures[pub] = sig
	}
	return nil
}

// accountKeys returns every account an instruction references, in first
// appearance order.
func (tx *Transaction) accountKeys() []types.Pubkey {
	seen := make(map[types.Pubkey]bool)
	var out []types.Pubkey
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if !seen[meta.Pubkey] {
				seen[meta.Pubkey] = true
				out = append(out, meta.Pubkey)
			}
		}
	}
	return out
}

func (tx *Transaction) validate() error {
	if tx == nil {
		return ErrNilTransaction
	}
	if len(tx.Instructions) == 0 {
		return ErrEmptyTransaction
	}
	return nil
}

// Transaction validation errors.
var (
	ErrNilTransaction   = errors.New("nil transaction")
	ErrEmptyTransaction = errors.New("transaction has no instructions")
	ErrUnexpectedSigner = errors.New("key is not a signer of the transaction")
)
