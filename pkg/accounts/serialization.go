package accounts

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-anchor/pkg/codec"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

// Stored record layout, Borsh encoded:
// - version:    u8
// - lamports:   u64
// - owner:      [32]u8
// - executable: bool
// - rent_epoch: u64
// - data:       u32 length + bytes
const recordVersion uint8 = 1

var (
	// ErrInvalidAccountData is returned when a stored record is malformed.
	ErrInvalidAccountData = errors.New("invalid account data")

	// ErrNilAccount is returned when storing a nil account.
	ErrNilAccount = errors.New("cannot store nil account")
)

type record struct {
	Version    uint8
	Lamports   uint64
	Owner      types.Pubkey
	Executable bool
	RentEpoch  uint64
	Data       []byte
}

// SerializeAccount encodes an account for storage.
func SerializeAccount(account *types.Account) ([]byte, error) {
	if account == nil {
		return nil, ErrNilAccount
	}
	data := account.Data
	if data == nil {
		data = []byte{}
	}
	return codec.Encode(&record{
		Version:    recordVersion,
		Lamports:   uint64(account.Lamports),
		Owner:      account.Owner,
		Executable: account.Executable,
		RentEpoch:  uint64(account.RentEpoch),
		Data:       data,
	})
}

// DeserializeAccount decodes a stored account.
func DeserializeAccount(raw []byte) (*types.Account, error) {
	var rec record
	if err := codec.Decode(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("%w: record version %d", ErrInvalidAccountData, rec.Version)
	}

	account := &types.Account{
		Lamports:   types.Lamports(rec.Lamports),
		Owner:      rec.Owner,
		Executable: rec.Executable,
		RentEpoch:  types.Epoch(rec.RentEpoch),
	}
	// The decoder may alias raw, which badger reuses after the callback.
	if len(rec.Data) > 0 {
		account.Data = make([]byte, len(rec.Data))
		copy(account.Data, rec.Data)
	}
	return account, nil
}
