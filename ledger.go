package tokenledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/id"
	"github.com/xraph/tokenledger/plugin"
	"github.com/xraph/tokenledger/store"
	"github.com/xraph/tokenledger/token"
	"github.com/xraph/tokenledger/transfer"
	"github.com/xraph/tokenledger/types"
)

// Ledger is the single-asset token ledger engine. It owns all state through
// its store — the account table, the token metadata, the transfer log and
// the owner registry — and exposes every mutating and query operation.
//
// Mutations are serialized: each one runs to completion against committed
// state before the next begins. Queries read committed state directly and
// are never blocked by a mutation.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time

	// writeMu is the single serialized access point for mutations.
	writeMu sync.Mutex
}

// New creates a new Ledger instance backed by the given store.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   s,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		cfg:     DefaultConfig(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithConfig sets the initialization parameters.
func WithConfig(cfg Config) Option {
	return func(l *Ledger) {
		l.cfg = cfg
	}
}

// WithDeployer sets the deployer identity on the current config.
func WithDeployer(deployer account.Identity) Option {
	return func(l *Ledger) {
		l.cfg.Deployer = deployer
	}
}

// WithClock sets the time source used for transfer record timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Start migrates the store and initializes the ledger state.
//
// Initialization is idempotent across restarts: if the store already holds
// token metadata, the existing state is left untouched. Otherwise the token
// is created from the config, the deployer becomes the owner, and the
// initial supply (if any) is minted to the deployer as the genesis record.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.cfg.Validate(); err != nil {
		return err
	}

	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	if err := l.initialize(ctx); err != nil {
		return err
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("ledger started",
		"token", l.cfg.Symbol,
		"deployer", l.cfg.Deployer,
	)

	return nil
}

// Stop shuts down the Ledger.
func (l *Ledger) Stop() error {
	l.plugins.EmitShutdown(context.Background())
	return l.store.Close()
}

func (l *Ledger) initialize(ctx context.Context) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if _, err := l.store.GetToken(ctx); err == nil {
		// Durable store restarted with existing state.
		return nil
	} else if !errors.Is(err, ErrNotInitialized) {
		return err
	}

	info := &token.Info{
		Name:     l.cfg.Name,
		Symbol:   l.cfg.Symbol,
		Decimals: l.cfg.Decimals,
	}
	if err := l.store.InitToken(ctx, info); err != nil {
		return err
	}
	if err := l.store.SetOwner(ctx, l.cfg.Deployer); err != nil {
		return err
	}
	if _, err := l.store.EnsureAccount(ctx, l.cfg.Deployer); err != nil {
		return err
	}

	if l.cfg.InitialSupply.IsZero() {
		return nil
	}

	// Genesis mint: the initial supply is credited to the deployer so that
	// total_supply equals the sum of balances from the first committed state.
	genesis := &transfer.Record{
		ID:        id.NewTransferID(),
		Kind:      transfer.KindMint,
		To:        l.cfg.Deployer,
		Amount:    l.cfg.InitialSupply,
		Timestamp: l.now().UTC(),
	}
	if err := l.store.ApplyTransfer(ctx, genesis); err != nil {
		return err
	}

	l.logger.Info("genesis supply minted",
		"to", l.cfg.Deployer,
		"amount", l.cfg.InitialSupply,
	)

	return nil
}

// ──────────────────────────────────────────────────
// Account operations
// ──────────────────────────────────────────────────

// CreateWallet ensures an account exists for the caller, materializing a
// zero-balance entry if absent. It is idempotent: the returned bool reports
// whether this call created the account.
func (l *Ledger) CreateWallet(ctx context.Context, caller account.Identity) (bool, error) {
	if caller.IsNone() {
		return false, ValidationError{Field: "caller", Message: "must not be empty"}
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	created, err := l.store.EnsureAccount(ctx, caller)
	if err != nil {
		return false, err
	}

	if created {
		l.logger.Debug("wallet created", "identity", caller)
		l.plugins.EmitWalletCreated(ctx, caller)
	}

	return created, nil
}

// Balance returns the balance for an identity, or zero if no account has
// been materialized. Balance queries are never an error.
func (l *Ledger) Balance(ctx context.Context, identity account.Identity) (types.Amount, error) {
	return l.store.GetBalance(ctx, identity)
}

// Accounts lists materialized accounts.
func (l *Ledger) Accounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	return l.store.ListAccounts(ctx, opts)
}

// TokenInfo returns a snapshot of the token metadata and current supply.
func (l *Ledger) TokenInfo(ctx context.Context) (*token.Info, error) {
	return l.store.GetToken(ctx)
}

// TransferHistory returns transfer records in sequence order.
// The zero ListOpts returns the full log.
func (l *Ledger) TransferHistory(ctx context.Context, opts transfer.ListOpts) ([]*transfer.Record, error) {
	return l.store.ListTransfers(ctx, opts)
}

// Owner returns the identity currently authorized for privileged operations.
func (l *Ledger) Owner(ctx context.Context) (account.Identity, error) {
	return l.store.GetOwner(ctx)
}

// ──────────────────────────────────────────────────
// Settlement operations
// ──────────────────────────────────────────────────

// Mint creates amount new tokens and credits them to recipient, increasing
// total supply. Only the owner may mint. The recipient's account is
// materialized if absent.
func (l *Ledger) Mint(ctx context.Context, caller, recipient account.Identity, amount types.Amount) (*transfer.Record, error) {
	if caller.IsNone() {
		return nil, ValidationError{Field: "caller", Message: "must not be empty"}
	}
	if recipient.IsNone() {
		return nil, ValidationError{Field: "recipient", Message: "must not be empty"}
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	owner, err := l.store.GetOwner(ctx)
	if err != nil {
		return nil, err
	}
	if caller != owner {
		return nil, ErrUnauthorized
	}
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}

	info, err := l.store.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := info.TotalSupply.Add(amount); !ok {
		return nil, ErrOverflow
	}
	balance, err := l.store.GetBalance(ctx, recipient)
	if err != nil {
		return nil, err
	}
	if _, ok := balance.Add(amount); !ok {
		return nil, ErrOverflow
	}

	rec := &transfer.Record{
		ID:        id.NewTransferID(),
		Kind:      transfer.KindMint,
		To:        recipient,
		Amount:    amount,
		Timestamp: l.now().UTC(),
	}
	if err := l.store.ApplyTransfer(ctx, rec); err != nil {
		return nil, err
	}

	l.logger.Info("minted",
		"to", recipient,
		"amount", amount,
		"seq", rec.Seq,
	)
	l.plugins.EmitMint(ctx, rec)

	return rec, nil
}

// Transfer moves amount from the caller to the recipient. The debit and
// credit commit as one indivisible step; total supply is unchanged.
// Self-transfers are rejected with ErrSameAccount.
func (l *Ledger) Transfer(ctx context.Context, caller, recipient account.Identity, amount types.Amount) (*transfer.Record, error) {
	if caller.IsNone() {
		return nil, ValidationError{Field: "caller", Message: "must not be empty"}
	}
	if recipient.IsNone() {
		return nil, ValidationError{Field: "recipient", Message: "must not be empty"}
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if caller == recipient {
		return nil, ErrSameAccount
	}

	fromBalance, err := l.store.GetBalance(ctx, caller)
	if err != nil {
		return nil, err
	}
	if fromBalance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}
	toBalance, err := l.store.GetBalance(ctx, recipient)
	if err != nil {
		return nil, err
	}
	if _, ok := toBalance.Add(amount); !ok {
		return nil, ErrOverflow
	}

	rec := &transfer.Record{
		ID:        id.NewTransferID(),
		Kind:      transfer.KindTransfer,
		From:      caller,
		To:        recipient,
		Amount:    amount,
		Timestamp: l.now().UTC(),
	}
	if err := l.store.ApplyTransfer(ctx, rec); err != nil {
		return nil, err
	}

	l.logger.Info("transferred",
		"from", caller,
		"to", recipient,
		"amount", amount,
		"seq", rec.Seq,
	)
	l.plugins.EmitTransfer(ctx, rec)

	return rec, nil
}

// Burn destroys amount tokens from the caller's balance, decreasing total
// supply. Any identity may burn its own tokens; no further authorization
// applies.
func (l *Ledger) Burn(ctx context.Context, caller account.Identity, amount types.Amount) (*transfer.Record, error) {
	if caller.IsNone() {
		return nil, ValidationError{Field: "caller", Message: "must not be empty"}
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}

	balance, err := l.store.GetBalance(ctx, caller)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}

	rec := &transfer.Record{
		ID:        id.NewTransferID(),
		Kind:      transfer.KindBurn,
		From:      caller,
		Amount:    amount,
		Timestamp: l.now().UTC(),
	}
	if err := l.store.ApplyTransfer(ctx, rec); err != nil {
		return nil, err
	}

	l.logger.Info("burned",
		"from", caller,
		"amount", amount,
		"seq", rec.Seq,
	)
	l.plugins.EmitBurn(ctx, rec)

	return rec, nil
}

// ChangeOwner atomically replaces the owner. Only the current owner may
// call it. Handing ownership to the current owner is a no-op, not an error.
func (l *Ledger) ChangeOwner(ctx context.Context, caller, newOwner account.Identity) error {
	if newOwner.IsNone() {
		return ValidationError{Field: "new_owner", Message: "must not be empty"}
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	owner, err := l.store.GetOwner(ctx)
	if err != nil {
		return err
	}
	if caller != owner {
		return ErrUnauthorized
	}
	if newOwner == owner {
		return nil
	}

	if err := l.store.SetOwner(ctx, newOwner); err != nil {
		return err
	}

	l.logger.Info("owner changed",
		"previous", owner,
		"current", newOwner,
	)
	l.plugins.EmitOwnerChanged(ctx, owner, newOwner)

	return nil
}

// ──────────────────────────────────────────────────
// Integrity
// ──────────────────────────────────────────────────

// Verify recomputes the sum of all balances and compares it against the
// recorded total supply, returning ErrSupplyMismatch on divergence.
func (l *Ledger) Verify(ctx context.Context) error {
	info, err := l.store.GetToken(ctx)
	if err != nil {
		return err
	}

	sum, err := l.store.SumBalances(ctx)
	if err != nil {
		return err
	}

	if !sum.Equal(info.TotalSupply) {
		l.logger.Error("supply mismatch",
			"total_supply", info.TotalSupply,
			"sum_of_balances", sum,
		)
		return ErrSupplyMismatch
	}

	return nil
}
