// Package store defines the storage interface for the token ledger.
package store

import (
	"context"

	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/token"
	"github.com/xraph/tokenledger/transfer"
	"github.com/xraph/tokenledger/types"
)

// Store is the unified storage interface for all ledger state: token
// metadata, the owner registry, the account table and the transfer log.
//
// Backends must guarantee two properties the engine relies on:
//
//   - ApplyTransfer is atomic: the balance deltas, the supply delta and the
//     log append commit together or not at all, and the record's sequence
//     number is assigned gap-free in commit order.
//   - Reads observe committed state only — a concurrent reader sees either
//     the pre- or post-state of an ApplyTransfer, never an intermediate one.
type Store interface {
	// Token metadata. InitToken is set-once: a second call returns
	// tokenledger.ErrAlreadyInitialized. GetToken returns
	// tokenledger.ErrNotInitialized before InitToken has committed.
	InitToken(ctx context.Context, info *token.Info) error
	GetToken(ctx context.Context) (*token.Info, error)

	// Owner registry. Exactly one owner exists after initialization.
	SetOwner(ctx context.Context, owner account.Identity) error
	GetOwner(ctx context.Context) (account.Identity, error)

	// Account table. EnsureAccount materializes a zero-balance account if
	// absent and reports whether it created one. GetBalance returns the
	// zero Amount for unmaterialized identities — balance queries are
	// never an error. GetAccount returns tokenledger.ErrAccountNotFound
	// for unmaterialized identities.
	EnsureAccount(ctx context.Context, identity account.Identity) (bool, error)
	GetAccount(ctx context.Context, identity account.Identity) (*account.Account, error)
	GetBalance(ctx context.Context, identity account.Identity) (types.Amount, error)
	ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error)
	SumBalances(ctx context.Context) (types.Amount, error)

	// ApplyTransfer settles a validated record against the account table,
	// the total supply and the transfer log in one transaction, assigning
	// rec.Seq. Backends re-check balance and overflow bounds and return
	// the matching tokenledger sentinel without mutating anything.
	ApplyTransfer(ctx context.Context, rec *transfer.Record) error

	// Transfer log reads.
	ListTransfers(ctx context.Context, opts transfer.ListOpts) ([]*transfer.Record, error)
	CountTransfers(ctx context.Context) (uint64, error)

	// Core methods.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
