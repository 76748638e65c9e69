package anchor

import (
	"bytes"
	"fmt"

	"github.com/fortiblox/x1-anchor/pkg/codec"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

// MaxAccountDataSize bounds Resize and SetData.
const MaxAccountDataSize = 10 * 1024 * 1024

// AccountInfo is an account as the hosting runtime hands it to the engine.
// The engine borrows it for one call and never keeps it afterwards.
type AccountInfo struct {
	Key        types.Pubkey
	Owner      types.Pubkey
	Lamports   uint64
	Data       []byte
	Executable bool
	IsSigner   bool
	IsWritable bool
}

// Clone creates a deep copy of the account info.
func (a *AccountInfo) Clone() *AccountInfo {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return &clone
}

// stateEqual compares everything a handler could change.
func (a *AccountInfo) stateEqual(b *AccountInfo) bool {
	return a.Lamports == b.Lamports &&
		a.Owner == b.Owner &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}

// Account is the handle a handler receives for one bound field. Reads are
// always allowed; every mutation fails with NotWritable unless the caller
// marked the account writable.
type Account struct {
	field string
	info  *AccountInfo
	// typ is set for typed state fields.
	typ *AccountType
}

// Name returns the schema field this handle was bound to.
func (a *Account) Name() string { return a.field }

// Key returns the account identity.
func (a *Account) Key() types.Pubkey { return a.info.Key }

// Owner returns the owning program.
func (a *Account) Owner() types.Pubkey { return a.info.Owner }

// Lamports returns the balance.
func (a *Account) Lamports() uint64 { return a.info.Lamports }

// IsSigner reports whether the runtime proved a signature for this account.
func (a *Account) IsSigner() bool { return a.info.IsSigner }

// IsWritable reports whether the caller allowed mutation.
func (a *Account) IsWritable() bool { return a.info.IsWritable }

// Executable reports whether the account is a program.
func (a *Account) Executable() bool { return a.info.Executable }

// Data returns the account bytes. The slice must be treated as read-only;
// use SetData, WriteAt or Store to change state.
func (a *Account) Data() []byte { return a.info.Data }

func (a *Account) checkWritable(op string) error {
	if !a.info.IsWritable {
		return &Error{Kind: KindNotWritable, Field: a.field, Message: op + " on read-only account"}
	}
	return nil
}

// SetData replaces the account bytes.
func (a *Account) SetData(data []byte) error {
	if err := a.checkWritable("set data"); err != nil {
		return err
	}
	if len(data) > MaxAccountDataSize {
		return fmt.Errorf("account %s: data size %d exceeds maximum %d", a.field, len(data), MaxAccountDataSize)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	a.info.Data = buf
	return nil
}

// WriteAt copies p into the account bytes at off. The write must fit.
func (a *Account) WriteAt(off int, p []byte) error {
	if err := a.checkWritable("write"); err != nil {
		return err
	}
	if off < 0 || off+len(p) > len(a.info.Data) {
		return fmt.Errorf("account %s: write [%d:%d] out of range (len %d)", a.field, off, off+len(p), len(a.info.Data))
	}
	copy(a.info.Data[off:], p)
	return nil
}

// Resize grows or shrinks the account bytes, zero-filling new space.
func (a *Account) Resize(n int) error {
	if err := a.checkWritable("resize"); err != nil {
		return err
	}
	if n < 0 || n > MaxAccountDataSize {
		return fmt.Errorf("account %s: size %d out of range", a.field, n)
	}
	buf := make([]byte, n)
	copy(buf, a.info.Data)
	a.info.Data = buf
	return nil
}

// SetLamports sets the balance.
func (a *Account) SetLamports(v uint64) error {
	if err := a.checkWritable("set lamports"); err != nil {
		return err
	}
	a.info.Lamports = v
	return nil
}

// Load decodes typed account state into v. For typed fields the leading
// account discriminator is skipped; for other fields the whole buffer is
// decoded.
func (a *Account) Load(v interface{}) error {
	data, base := a.info.Data, 0
	if a.typ != nil {
		if len(data) < codec.DiscriminatorSize {
			return fmt.Errorf("account %s: %w", a.field, codec.ErrShortBuffer)
		}
		data, base = data[codec.DiscriminatorSize:], codec.DiscriminatorSize
	}
	if _, err := codec.DecodePrefix(data, base, v); err != nil {
		return fmt.Errorf("account %s: %w", a.field, err)
	}
	return nil
}

// Store encodes v as the account state, prefixed by the account
// discriminator for typed fields. The encoding must fit the current size;
// call Resize first to grow.
func (a *Account) Store(v interface{}) error {
	if err := a.checkWritable("store"); err != nil {
		return err
	}
	var (
		raw []byte
		err error
	)
	if a.typ != nil {
		raw, err = codec.EncodeWithDiscriminator(a.typ.Discriminator, v)
	} else {
		raw, err = codec.Encode(v)
	}
	if err != nil {
		return err
	}
	if len(raw) > len(a.info.Data) {
		return fmt.Errorf("account %s: state needs %d bytes, account has %d", a.field, len(raw), len(a.info.Data))
	}
	copy(a.info.Data, raw)
	return nil
}
