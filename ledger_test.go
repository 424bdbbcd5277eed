package tokenledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/xraph/tokenledger"
	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/store/memory"
	"github.com/xraph/tokenledger/transfer"
)

const deployer = tokenledger.Identity("treasury")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newLedger starts a ledger on a fresh memory store with no initial supply,
// so tests control every unit that enters circulation.
func newLedger(t *testing.T, opts ...tokenledger.Option) *tokenledger.Ledger {
	t.Helper()

	cfg := tokenledger.DefaultConfig()
	cfg.Deployer = deployer
	cfg.InitialSupply = tokenledger.ZeroAmount()

	opts = append([]tokenledger.Option{
		tokenledger.WithConfig(cfg),
		tokenledger.WithLogger(quietLogger()),
	}, opts...)

	l := tokenledger.New(memory.New(), opts...)
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Stop() })
	return l
}

// verify asserts the conservation invariant after a sequence of operations.
func verify(t *testing.T, l *tokenledger.Ledger) {
	t.Helper()
	if err := l.Verify(context.Background()); err != nil {
		t.Fatalf("supply invariant violated: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Initialization
// ──────────────────────────────────────────────────

func TestStartRequiresDeployer(t *testing.T) {
	cfg := tokenledger.DefaultConfig()
	l := tokenledger.New(memory.New(), tokenledger.WithConfig(cfg))

	err := l.Start(context.Background())
	var verr tokenledger.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if verr.Field != "deployer" {
		t.Errorf("field: got %s", verr.Field)
	}
}

func TestGenesisMintsInitialSupplyToDeployer(t *testing.T) {
	ctx := context.Background()
	cfg := tokenledger.DefaultConfig()
	cfg.Deployer = deployer

	l := tokenledger.New(memory.New(),
		tokenledger.WithConfig(cfg),
		tokenledger.WithLogger(quietLogger()))
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	want := tokenledger.MustParseAmount("1000000000000000000")

	bal, err := l.Balance(ctx, deployer)
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Equal(want) {
		t.Errorf("deployer balance: got %s", bal)
	}

	info, err := l.TokenInfo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "ICP Token" || info.Symbol != "ICPT" || info.Decimals != 8 {
		t.Errorf("token info: got %+v", info)
	}
	if !info.TotalSupply.Equal(want) {
		t.Errorf("total supply: got %s", info.TotalSupply)
	}

	history, err := l.TransferHistory(ctx, transfer.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d records, want genesis only", len(history))
	}
	genesis := history[0]
	if genesis.Seq != 1 || genesis.Kind != transfer.KindMint || genesis.To != deployer {
		t.Errorf("genesis record: %+v", genesis)
	}
	if !genesis.From.IsNone() {
		t.Errorf("genesis source: got %s, want none", genesis.From)
	}

	owner, err := l.Owner(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if owner != deployer {
		t.Errorf("owner: got %s", owner)
	}

	verify(t, l)
}

func TestRestartKeepsExistingState(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	cfg := tokenledger.DefaultConfig()
	cfg.Deployer = deployer

	l := tokenledger.New(s, tokenledger.WithConfig(cfg), tokenledger.WithLogger(quietLogger()))
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Mint(ctx, deployer, "alice", tokenledger.NewAmount(500)); err != nil {
		t.Fatal(err)
	}

	// Second engine over the same store: no second genesis.
	l2 := tokenledger.New(s, tokenledger.WithConfig(cfg), tokenledger.WithLogger(quietLogger()))
	if err := l2.Start(ctx); err != nil {
		t.Fatal(err)
	}

	history, err := l2.TransferHistory(ctx, transfer.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Errorf("got %d records, want 2 (genesis + mint)", len(history))
	}
	verify(t, l2)
}

// ──────────────────────────────────────────────────
// Wallets
// ──────────────────────────────────────────────────

func TestCreateWalletIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	created, err := l.CreateWallet(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first call should create")
	}

	created, err = l.CreateWallet(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second call should be a no-op")
	}

	bal, err := l.Balance(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !bal.IsZero() {
		t.Errorf("fresh wallet balance: got %s", bal)
	}
}

func TestBalanceOfUnknownIdentityIsZero(t *testing.T) {
	l := newLedger(t)

	bal, err := l.Balance(context.Background(), "never-seen")
	if err != nil {
		t.Fatal(err)
	}
	if !bal.IsZero() {
		t.Errorf("got %s, want 0", bal)
	}
}

// ──────────────────────────────────────────────────
// Mint
// ──────────────────────────────────────────────────

func TestMintRequiresOwner(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Mint(ctx, "mallory", "mallory", tokenledger.NewAmount(100))
	if !errors.Is(err, tokenledger.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}

	// Failed mint leaves no trace.
	bal, _ := l.Balance(ctx, "mallory")
	if !bal.IsZero() {
		t.Errorf("balance after rejected mint: %s", bal)
	}
	history, _ := l.TransferHistory(ctx, transfer.ListOpts{})
	if len(history) != 0 {
		t.Errorf("rejected mint appended %d records", len(history))
	}
	verify(t, l)
}

func TestMintZeroRejected(t *testing.T) {
	l := newLedger(t)

	_, err := l.Mint(context.Background(), deployer, "alice", tokenledger.ZeroAmount())
	if !errors.Is(err, tokenledger.ErrInvalidAmount) {
		t.Fatalf("got %v, want ErrInvalidAmount", err)
	}
}

func TestMintAtSupplyCeiling(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	if _, err := l.Mint(ctx, deployer, "alice", tokenledger.MaxAmount()); err != nil {
		t.Fatal(err)
	}

	_, err := l.Mint(ctx, deployer, "bob", tokenledger.NewAmount(1))
	if !errors.Is(err, tokenledger.ErrOverflow) {
		t.Fatalf("got %v, want ErrOverflow", err)
	}

	info, _ := l.TokenInfo(ctx)
	if !info.TotalSupply.Equal(tokenledger.MaxAmount()) {
		t.Errorf("supply moved on rejected mint: %s", info.TotalSupply)
	}
	verify(t, l)
}

func TestMintMaterializesRecipient(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	rec, err := l.Mint(ctx, deployer, "alice", tokenledger.NewAmount(500))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Seq != 1 || rec.Kind != transfer.KindMint {
		t.Errorf("record: %+v", rec)
	}

	accts, err := l.Accounts(ctx, account.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, a := range accts {
		if a.Identity == "alice" {
			found = true
		}
	}
	if !found {
		t.Error("mint did not materialize recipient account")
	}
	verify(t, l)
}

// ──────────────────────────────────────────────────
// Transfer
// ──────────────────────────────────────────────────

func TestTransferMovesBalance(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	if _, err := l.Mint(ctx, deployer, "alice", tokenledger.NewAmount(500)); err != nil {
		t.Fatal(err)
	}
	rec, err := l.Transfer(ctx, "alice", "bob", tokenledger.NewAmount(200))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Seq != 2 {
		t.Errorf("seq: got %d, want 2", rec.Seq)
	}

	aliceBal, _ := l.Balance(ctx, "alice")
	bobBal, _ := l.Balance(ctx, "bob")
	if aliceBal.String() != "300" || bobBal.String() != "200" {
		t.Errorf("balances: alice=%s bob=%s", aliceBal, bobBal)
	}

	info, _ := l.TokenInfo(ctx)
	if info.TotalSupply.String() != "500" {
		t.Errorf("transfer changed supply: %s", info.TotalSupply)
	}
	verify(t, l)
}

func TestTransferInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	if _, err := l.Mint(ctx, deployer, "alice", tokenledger.NewAmount(100)); err != nil {
		t.Fatal(err)
	}

	_, err := l.Transfer(ctx, "alice", "bob", tokenledger.NewAmount(101))
	if !errors.Is(err, tokenledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}

	// All-or-nothing: neither side moved, bob not materialized.
	aliceBal, _ := l.Balance(ctx, "alice")
	if aliceBal.String() != "100" {
		t.Errorf("alice balance moved: %s", aliceBal)
	}
	history, _ := l.TransferHistory(ctx, transfer.ListOpts{})
	if len(history) != 1 {
		t.Errorf("rejected transfer appended a record")
	}
	verify(t, l)
}

func TestTransferFromUnmaterializedSender(t *testing.T) {
	l := newLedger(t)

	_, err := l.Transfer(context.Background(), "ghost", "alice", tokenledger.NewAmount(1))
	if !errors.Is(err, tokenledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
}

func TestTransferToSelfRejected(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	if _, err := l.Mint(ctx, deployer, "alice", tokenledger.NewAmount(100)); err != nil {
		t.Fatal(err)
	}

	_, err := l.Transfer(ctx, "alice", "alice", tokenledger.NewAmount(10))
	if !errors.Is(err, tokenledger.ErrSameAccount) {
		t.Fatalf("got %v, want ErrSameAccount", err)
	}
}

func TestTransferZeroRejected(t *testing.T) {
	l := newLedger(t)

	_, err := l.Transfer(context.Background(), "alice", "bob", tokenledger.ZeroAmount())
	if !errors.Is(err, tokenledger.ErrInvalidAmount) {
		t.Fatalf("got %v, want ErrInvalidAmount", err)
	}
}

// ──────────────────────────────────────────────────
// Burn
// ──────────────────────────────────────────────────

func TestBurnReducesSupply(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	if _, err := l.Mint(ctx, deployer, "alice", tokenledger.NewAmount(500)); err != nil {
		t.Fatal(err)
	}
	rec, err := l.Burn(ctx, "alice", tokenledger.NewAmount(50))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Kind != transfer.KindBurn || !rec.To.IsNone() {
		t.Errorf("record: %+v", rec)
	}

	bal, _ := l.Balance(ctx, "alice")
	if bal.String() != "450" {
		t.Errorf("balance: got %s, want 450", bal)
	}
	info, _ := l.TokenInfo(ctx)
	if info.TotalSupply.String() != "450" {
		t.Errorf("supply: got %s, want 450", info.TotalSupply)
	}
	verify(t, l)
}

func TestBurnMoreThanBalance(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	if _, err := l.Mint(ctx, deployer, "alice", tokenledger.NewAmount(10)); err != nil {
		t.Fatal(err)
	}

	_, err := l.Burn(ctx, "alice", tokenledger.NewAmount(11))
	if !errors.Is(err, tokenledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	verify(t, l)
}

// ──────────────────────────────────────────────────
// Empty identities
// ──────────────────────────────────────────────────

// The empty identity is reserved for the mint source and burn destination in
// transfer records. Accepting it as a real party would let a transfer debit
// without crediting, so every operation rejects it before touching the store.
func TestEmptyIdentityRejected(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	if _, err := l.Mint(ctx, deployer, "alice", tokenledger.NewAmount(100)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		field string
		op    func() error
	}{
		{"mint to empty", "recipient", func() error {
			_, err := l.Mint(ctx, deployer, "", tokenledger.NewAmount(100))
			return err
		}},
		{"mint from empty", "caller", func() error {
			_, err := l.Mint(ctx, "", "alice", tokenledger.NewAmount(100))
			return err
		}},
		{"transfer to empty", "recipient", func() error {
			_, err := l.Transfer(ctx, "alice", "", tokenledger.NewAmount(40))
			return err
		}},
		{"transfer from empty", "caller", func() error {
			_, err := l.Transfer(ctx, "", "alice", tokenledger.NewAmount(40))
			return err
		}},
		{"burn from empty", "caller", func() error {
			_, err := l.Burn(ctx, "", tokenledger.NewAmount(1))
			return err
		}},
		{"wallet for empty", "caller", func() error {
			_, err := l.CreateWallet(ctx, "")
			return err
		}},
		{"owner handoff to empty", "new_owner", func() error {
			return l.ChangeOwner(ctx, deployer, "")
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.op()
			var verr tokenledger.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Errorf("field: got %s, want %s", verr.Field, tc.field)
			}
		})
	}

	// Nothing settled: alice keeps the full mint, the log holds only the
	// mint, and supply still equals the sum of balances.
	bal, _ := l.Balance(ctx, "alice")
	if bal.String() != "100" {
		t.Errorf("alice balance: got %s, want 100", bal)
	}
	history, _ := l.TransferHistory(ctx, transfer.ListOpts{})
	if len(history) != 1 {
		t.Errorf("rejected operations appended records: %d", len(history))
	}
	verify(t, l)
}

// ──────────────────────────────────────────────────
// Ownership
// ──────────────────────────────────────────────────

func TestChangeOwner(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	if err := l.ChangeOwner(ctx, deployer, "ops"); err != nil {
		t.Fatal(err)
	}

	// Former owner loses mint rights the moment the handoff commits.
	if _, err := l.Mint(ctx, deployer, "alice", tokenledger.NewAmount(1)); !errors.Is(err, tokenledger.ErrUnauthorized) {
		t.Errorf("former owner minted: %v", err)
	}
	if _, err := l.Mint(ctx, "ops", "alice", tokenledger.NewAmount(1)); err != nil {
		t.Errorf("new owner cannot mint: %v", err)
	}
}

func TestChangeOwnerRequiresOwner(t *testing.T) {
	l := newLedger(t)

	err := l.ChangeOwner(context.Background(), "mallory", "mallory")
	if !errors.Is(err, tokenledger.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestChangeOwnerToSelfIsNoOp(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	if err := l.ChangeOwner(ctx, deployer, deployer); err != nil {
		t.Fatal(err)
	}
	owner, _ := l.Owner(ctx)
	if owner != deployer {
		t.Errorf("owner: got %s", owner)
	}
}

// ──────────────────────────────────────────────────
// Log ordering and the worked scenario
// ──────────────────────────────────────────────────

func TestScenarioMintTransferBurn(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	if _, err := l.Mint(ctx, deployer, "bob", tokenledger.NewAmount(500)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Transfer(ctx, "bob", "carol", tokenledger.NewAmount(200)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Burn(ctx, "carol", tokenledger.NewAmount(50)); err != nil {
		t.Fatal(err)
	}

	bobBal, _ := l.Balance(ctx, "bob")
	carolBal, _ := l.Balance(ctx, "carol")
	if bobBal.String() != "300" || carolBal.String() != "150" {
		t.Errorf("balances: bob=%s carol=%s", bobBal, carolBal)
	}

	info, _ := l.TokenInfo(ctx)
	if info.TotalSupply.String() != "450" {
		t.Errorf("supply: got %s, want 450", info.TotalSupply)
	}

	history, err := l.TransferHistory(ctx, transfer.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	wantKinds := []transfer.Kind{transfer.KindMint, transfer.KindTransfer, transfer.KindBurn}
	if len(history) != len(wantKinds) {
		t.Fatalf("got %d records", len(history))
	}
	for i, rec := range history {
		if rec.Seq != uint64(i+1) {
			t.Errorf("record %d: seq %d", i, rec.Seq)
		}
		if rec.Kind != wantKinds[i] {
			t.Errorf("record %d: kind %s", i, rec.Kind)
		}
	}
	verify(t, l)
}

func TestConcurrentMintsKeepSequencesGapFree(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Mint(ctx, deployer, "alice", tokenledger.NewAmount(1)); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	history, err := l.TransferHistory(ctx, transfer.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != workers {
		t.Fatalf("got %d records, want %d", len(history), workers)
	}
	for i, rec := range history {
		if rec.Seq != uint64(i+1) {
			t.Errorf("record %d has seq %d", i, rec.Seq)
		}
	}
	verify(t, l)
}

// ──────────────────────────────────────────────────
// Plugins
// ──────────────────────────────────────────────────

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, s)
}

func (e *eventLog) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

type recordingPlugin struct {
	log *eventLog
}

func (p *recordingPlugin) Name() string { return "recording" }

func (p *recordingPlugin) OnWalletCreated(_ context.Context, identity account.Identity) error {
	p.log.add("wallet:" + identity.String())
	return nil
}

func (p *recordingPlugin) OnMint(_ context.Context, rec *transfer.Record) error {
	p.log.add("mint:" + rec.Amount.String())
	return nil
}

func (p *recordingPlugin) OnTransfer(_ context.Context, rec *transfer.Record) error {
	p.log.add("transfer:" + rec.Amount.String())
	return nil
}

func (p *recordingPlugin) OnBurn(_ context.Context, rec *transfer.Record) error {
	p.log.add("burn:" + rec.Amount.String())
	return nil
}

func (p *recordingPlugin) OnOwnerChanged(_ context.Context, _, current account.Identity) error {
	p.log.add("owner:" + current.String())
	return nil
}

func TestPluginsObserveCommittedMutations(t *testing.T) {
	ctx := context.Background()
	log := &eventLog{}
	l := newLedger(t, tokenledger.WithPlugin(&recordingPlugin{log: log}))

	if _, err := l.CreateWallet(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Mint(ctx, deployer, "alice", tokenledger.NewAmount(100)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Transfer(ctx, "alice", "bob", tokenledger.NewAmount(40)); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Burn(ctx, "bob", tokenledger.NewAmount(10)); err != nil {
		t.Fatal(err)
	}
	if err := l.ChangeOwner(ctx, deployer, "ops"); err != nil {
		t.Fatal(err)
	}

	// Rejected operations emit nothing.
	if _, err := l.Mint(ctx, deployer, "alice", tokenledger.NewAmount(1)); !errors.Is(err, tokenledger.ErrUnauthorized) {
		t.Fatal(err)
	}

	want := []string{"wallet:alice", "mint:100", "transfer:40", "burn:10", "owner:ops"}
	got := log.all()
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
