// Package tokenledger provides an embeddable single-asset token ledger for
// Go applications.
//
// Tokenledger is designed as a library, not a service. Import it directly
// into your Go application and bring your own storage backend. It provides:
//
//   - A flat, single-writer state machine over accounts, supply and ownership
//   - Checked 128-bit arithmetic — overflow is a typed failure, never a wrap
//   - An append-only transfer log with gap-free sequence numbers
//   - All-or-nothing mutations: a rejected operation changes nothing
//   - Pluggable storage (memory, SQLite, PostgreSQL, MongoDB, BoltDB)
//   - Lifecycle plugins for auditing and metrics
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/xraph/tokenledger"
//	    "github.com/xraph/tokenledger/store/memory"
//	)
//
//	cfg := tokenledger.DefaultConfig()
//	cfg.Deployer = "treasury"
//
//	l := tokenledger.New(memory.New(), tokenledger.WithConfig(cfg))
//
//	// Start the engine: migrates the store and, on first run, mints the
//	// initial supply to the deployer.
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Identities are opaque principal strings; the ledger interprets nothing
// beyond equality. Accounts are materialized lazily with a zero balance:
//
//	l.CreateWallet(ctx, "alice")          // idempotent
//	bal, _ := l.Balance(ctx, "alice")     // zero if never materialized
//
// The owner — initially the deployer — is the only identity allowed to mint
// and to hand off ownership:
//
//	rec, err := l.Mint(ctx, "treasury", "alice", tokenledger.NewAmount(500))
//	err = l.ChangeOwner(ctx, "treasury", "ops")
//
// Anyone can move or destroy their own tokens:
//
//	rec, err = l.Transfer(ctx, "alice", "bob", tokenledger.NewAmount(200))
//	rec, err = l.Burn(ctx, "bob", tokenledger.NewAmount(50))
//
// Every committed mint, transfer and burn appends an immutable record to the
// transfer log:
//
//	history, _ := l.TransferHistory(ctx, transfer.ListOpts{})
//
// Failures are sentinel errors checked with errors.Is: ErrUnauthorized,
// ErrInvalidAmount, ErrInsufficientBalance, ErrOverflow, ErrSameAccount.
package tokenledger
