// Package plugin provides an extensible plugin system for the token ledger.
// Plugins can hook into lifecycle events to extend functionality. Hooks
// observe committed mutations only; they can never veto or mutate state.
package plugin

import (
	"context"

	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/transfer"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts. The ledger argument is the
// *tokenledger.Ledger, typed as interface{} to avoid an import cycle.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the ledger is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnWalletCreated is called when an account is materialized for an identity.
// It fires only for the call that actually created the account, not for
// idempotent repeats.
type OnWalletCreated interface {
	Plugin
	OnWalletCreated(ctx context.Context, identity account.Identity) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnMint is called after a mint has committed.
type OnMint interface {
	Plugin
	OnMint(ctx context.Context, rec *transfer.Record) error
}

// OnTransfer is called after a peer-to-peer transfer has committed.
type OnTransfer interface {
	Plugin
	OnTransfer(ctx context.Context, rec *transfer.Record) error
}

// OnBurn is called after a burn has committed.
type OnBurn interface {
	Plugin
	OnBurn(ctx context.Context, rec *transfer.Record) error
}

// ──────────────────────────────────────────────────
// Ownership hooks
// ──────────────────────────────────────────────────

// OnOwnerChanged is called after ownership has been transferred.
type OnOwnerChanged interface {
	Plugin
	OnOwnerChanged(ctx context.Context, previous, current account.Identity) error
}
