// Package accounts provides the account store the host runtime loads from and
// commits to.
package accounts

import (
	"errors"

	"github.com/fortiblox/x1-anchor/pkg/types"
)

// ErrStopIteration ends a ForEach walk early without reporting an error.
var ErrStopIteration = errors.New("stop iteration")

// AccountsDB defines the interface for account storage.
type AccountsDB interface {
	// GetAccount retrieves an account by pubkey.
	// Returns nil, nil if account does not exist.
	GetAccount(pubkey types.Pubkey) (*types.Account, error)

	// SetAccount stores an account.
	SetAccount(pubkey types.Pubkey, account *types.Account) error

	// DeleteAccount removes an account.
	DeleteAccount(pubkey types.Pubkey) error

	// HasAccount returns true if the account exists.
	HasAccount(pubkey types.Pubkey) bool

	// Commit applies every delta or none of them. A delta with a nil
	// NewAccount deletes the account.
	Commit(deltas []types.AccountDelta) error

	// ForEach calls fn for every stored account in key order. Returning
	// ErrStopIteration ends the walk.
	ForEach(fn func(pubkey types.Pubkey, account *types.Account) error) error

	// GetAccountsCount returns the total number of accounts.
	GetAccountsCount() uint64

	// Close closes the database.
	Close() error
}
