// Package account defines identities and the accounts that hold balances.
package account

import (
	"github.com/xraph/tokenledger/id"
	"github.com/xraph/tokenledger/types"
)

// Identity is the opaque principal identifier of a caller or account holder.
// The ledger interprets nothing beyond equality.
type Identity string

// None is the absent identity. It marks the source of a mint and the
// destination of a burn in transfer records.
const None Identity = ""

// String returns the identity as a plain string.
func (i Identity) String() string { return string(i) }

// IsNone returns true for the absent identity.
func (i Identity) IsNone() bool { return i == None }

// Account is a materialized balance entry for an identity.
// Accounts are created lazily and never deleted; a zero balance is a valid
// terminal state.
type Account struct {
	types.Entity
	ID       id.AccountID `json:"id"`
	Identity Identity     `json:"identity"`
	Balance  types.Amount `json:"balance"`
}

// ListOpts controls account listing.
type ListOpts struct {
	Limit  int
	Offset int
}
