package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/tokenledger"
	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/id"
	"github.com/xraph/tokenledger/token"
	"github.com/xraph/tokenledger/transfer"
	"github.com/xraph/tokenledger/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s := New()
	err := s.InitToken(context.Background(), &token.Info{
		Name:     "Test Token",
		Symbol:   "TST",
		Decimals: 8,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func mintRecord(to string, amount uint64) *transfer.Record {
	return &transfer.Record{
		ID:        id.NewTransferID(),
		Kind:      transfer.KindMint,
		To:        tokenledger.Identity(to),
		Amount:    types.NewAmount(amount),
		Timestamp: time.Now().UTC(),
	}
}

func TestInitTokenOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.InitToken(ctx, &token.Info{Name: "Again", Symbol: "AGN"})
	if !errors.Is(err, tokenledger.ErrAlreadyInitialized) {
		t.Fatalf("got %v, want ErrAlreadyInitialized", err)
	}
}

func TestGetTokenBeforeInit(t *testing.T) {
	s := New()
	if _, err := s.GetToken(context.Background()); !errors.Is(err, tokenledger.ErrNotInitialized) {
		t.Fatalf("got %v, want ErrNotInitialized", err)
	}
}

func TestEnsureAccountIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.EnsureAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first call should create")
	}

	created, err = s.EnsureAccount(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second call should be a no-op")
	}
}

func TestGetBalanceUnmaterialized(t *testing.T) {
	s := newTestStore(t)

	bal, err := s.GetBalance(context.Background(), "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if !bal.IsZero() {
		t.Errorf("got %s, want 0", bal)
	}

	if _, err := s.GetAccount(context.Background(), "ghost"); !errors.Is(err, tokenledger.ErrAccountNotFound) {
		t.Errorf("GetAccount: got %v, want ErrAccountNotFound", err)
	}
}

func TestApplyTransferAssignsSequence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 1; i <= 3; i++ {
		rec := mintRecord("alice", 100)
		if err := s.ApplyTransfer(ctx, rec); err != nil {
			t.Fatal(err)
		}
		if rec.Seq != uint64(i) {
			t.Errorf("record %d: got seq %d", i, rec.Seq)
		}
	}

	count, err := s.CountTransfers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("got %d transfers, want 3", count)
	}
}

func TestApplyTransferFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// A transfer from an unmaterialized identity must fail without
	// creating any account or log entry.
	rec := &transfer.Record{
		ID:     id.NewTransferID(),
		Kind:   transfer.KindTransfer,
		From:   "nobody",
		To:     "alice",
		Amount: types.NewAmount(1),
	}
	if err := s.ApplyTransfer(ctx, rec); !errors.Is(err, tokenledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}

	if _, err := s.GetAccount(ctx, "nobody"); !errors.Is(err, tokenledger.ErrAccountNotFound) {
		t.Error("failed transfer materialized the sender account")
	}
	count, _ := s.CountTransfers(ctx)
	if count != 0 {
		t.Errorf("failed transfer appended a record: count=%d", count)
	}
	info, _ := s.GetToken(ctx)
	if !info.TotalSupply.IsZero() {
		t.Errorf("failed transfer moved supply: %s", info.TotalSupply)
	}
}

func TestApplyTransferMintOverflow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	max := types.MaxAmount()
	rec := mintRecord("alice", 0)
	rec.Amount = max
	if err := s.ApplyTransfer(ctx, rec); err != nil {
		t.Fatal(err)
	}

	over := mintRecord("alice", 1)
	if err := s.ApplyTransfer(ctx, over); !errors.Is(err, tokenledger.ErrOverflow) {
		t.Fatalf("got %v, want ErrOverflow", err)
	}

	info, _ := s.GetToken(ctx)
	if !info.TotalSupply.Equal(max) {
		t.Errorf("supply changed on failed mint: %s", info.TotalSupply)
	}
}

func TestSumBalances(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.ApplyTransfer(ctx, mintRecord("alice", 300)); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyTransfer(ctx, mintRecord("bob", 700)); err != nil {
		t.Fatal(err)
	}

	sum, err := s.SumBalances(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.String() != "1000" {
		t.Errorf("got %s, want 1000", sum)
	}

	info, _ := s.GetToken(ctx)
	if !info.TotalSupply.Equal(sum) {
		t.Errorf("supply %s != sum %s", info.TotalSupply, sum)
	}
}

func TestListTransfersWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for range 5 {
		if err := s.ApplyTransfer(ctx, mintRecord("alice", 10)); err != nil {
			t.Fatal(err)
		}
	}
	burn := &transfer.Record{
		ID:     id.NewTransferID(),
		Kind:   transfer.KindBurn,
		From:   "alice",
		Amount: types.NewAmount(5),
	}
	if err := s.ApplyTransfer(ctx, burn); err != nil {
		t.Fatal(err)
	}

	recs, err := s.ListTransfers(ctx, transfer.ListOpts{AfterSeq: 3, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Seq != 4 || recs[1].Seq != 5 {
		t.Errorf("window: got %d records, seqs %v", len(recs), recs)
	}

	burns, err := s.ListTransfers(ctx, transfer.ListOpts{Kind: transfer.KindBurn})
	if err != nil {
		t.Fatal(err)
	}
	if len(burns) != 1 || burns[0].Seq != 6 {
		t.Errorf("kind filter: got %d records", len(burns))
	}
}

func TestListAccountsOrdered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, identity := range []string{"carol", "alice", "bob"} {
		if _, err := s.EnsureAccount(ctx, tokenledger.Identity(identity)); err != nil {
			t.Fatal(err)
		}
	}

	accts, err := s.ListAccounts(ctx, account.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(accts) != 3 {
		t.Fatalf("got %d accounts, want 3", len(accts))
	}
	for i, want := range []string{"alice", "bob", "carol"} {
		if accts[i].Identity.String() != want {
			t.Errorf("position %d: got %s, want %s", i, accts[i].Identity, want)
		}
	}
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx); !errors.Is(err, tokenledger.ErrStoreClosed) {
		t.Errorf("Ping: got %v, want ErrStoreClosed", err)
	}
	if err := s.ApplyTransfer(ctx, mintRecord("alice", 1)); !errors.Is(err, tokenledger.ErrStoreClosed) {
		t.Errorf("ApplyTransfer: got %v, want ErrStoreClosed", err)
	}
}
