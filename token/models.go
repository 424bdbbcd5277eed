// Package token defines the metadata of the single asset the ledger tracks.
package token

import "github.com/xraph/tokenledger/types"

// Info holds the token metadata and the circulating supply.
// Name, symbol and decimals are set once at initialization; TotalSupply
// moves with mints and burns and always equals the sum of all balances.
type Info struct {
	Name        string       `json:"name"`
	Symbol      string       `json:"symbol"`
	Decimals    uint8        `json:"decimals"`
	TotalSupply types.Amount `json:"total_supply"`
}

// ToUnits converts a whole-token amount into base units by multiplying with
// 10^decimals. The second result is false on overflow.
func (i *Info) ToUnits(whole types.Amount) (types.Amount, bool) {
	return whole.MulPow10(i.Decimals)
}

// Clone returns a copy of the Info so callers can hand out snapshots
// without exposing internal state.
func (i *Info) Clone() *Info {
	c := *i
	return &c
}
