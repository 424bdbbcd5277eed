package tokenledger

import (
	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/types"
)

// Re-export common types for convenience so users don't have to import the
// sub-packages for everyday calls.

// Amount is re-exported from the types package.
type Amount = types.Amount

// Identity is re-exported from the account package.
type Identity = account.Identity

// Re-export Amount constructors.
var (
	NewAmount       = types.NewAmount
	ParseAmount     = types.ParseAmount
	MustParseAmount = types.MustParseAmount
	ZeroAmount      = types.ZeroAmount
	MaxAmount       = types.MaxAmount
)
