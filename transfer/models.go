// Package transfer defines the append-only transfer log entry.
package transfer

import (
	"time"

	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/id"
	"github.com/xraph/tokenledger/types"
)

// Kind classifies a transfer record.
type Kind string

const (
	// KindMint is a supply-increasing transfer from no identity.
	KindMint Kind = "mint"
	// KindBurn is a supply-decreasing transfer to no identity.
	KindBurn Kind = "burn"
	// KindTransfer is a peer-to-peer transfer between two identities.
	KindTransfer Kind = "transfer"
)

// Record is an immutable entry in the transfer log. Sequence numbers are
// assigned by the store on commit, start at 1, and are strictly increasing
// and gap-free.
type Record struct {
	ID        id.TransferID    `json:"id"`
	Seq       uint64           `json:"seq"`
	Kind      Kind             `json:"kind"`
	From      account.Identity `json:"from,omitempty"` // None for mints
	To        account.Identity `json:"to,omitempty"`   // None for burns
	Amount    types.Amount     `json:"amount"`
	Timestamp time.Time        `json:"timestamp"`
}

// ListOpts controls transfer history reads. The zero value returns the full
// log in sequence order.
type ListOpts struct {
	// AfterSeq skips records with sequence numbers <= AfterSeq,
	// allowing restartable iteration.
	AfterSeq uint64
	// Limit caps the number of records returned; 0 means no cap.
	Limit int
	// Kind filters by record kind when non-empty.
	Kind Kind
}
