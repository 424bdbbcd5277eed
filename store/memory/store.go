// Package memory provides an in-memory store for tests and single-process
// deployments. State does not survive restarts.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/tokenledger"
	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/id"
	"github.com/xraph/tokenledger/store"
	"github.com/xraph/tokenledger/token"
	"github.com/xraph/tokenledger/transfer"
	"github.com/xraph/tokenledger/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps all ledger state in process memory behind a single RWMutex,
// so readers observe committed state only.
type Store struct {
	mu sync.RWMutex

	info  *token.Info
	owner account.Identity

	accounts map[account.Identity]*account.Account

	// Append-only transfer log; index i holds sequence i+1.
	transfers []*transfer.Record

	closed bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts: make(map[account.Identity]*account.Account),
	}
}

// ==================== Token ====================

func (s *Store) InitToken(_ context.Context, info *token.Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tokenledger.ErrStoreClosed
	}
	if s.info != nil {
		return tokenledger.ErrAlreadyInitialized
	}
	s.info = info.Clone()
	return nil
}

func (s *Store) GetToken(_ context.Context) (*token.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.info == nil {
		return nil, tokenledger.ErrNotInitialized
	}
	return s.info.Clone(), nil
}

// ==================== Owner ====================

func (s *Store) SetOwner(_ context.Context, owner account.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tokenledger.ErrStoreClosed
	}
	s.owner = owner
	return nil
}

func (s *Store) GetOwner(_ context.Context) (account.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.owner.IsNone() {
		return account.None, tokenledger.ErrNotInitialized
	}
	return s.owner, nil
}

// ==================== Accounts ====================

func (s *Store) EnsureAccount(_ context.Context, identity account.Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, tokenledger.ErrStoreClosed
	}
	return s.ensureLocked(identity), nil
}

// ensureLocked materializes an account if absent. Callers hold s.mu.
func (s *Store) ensureLocked(identity account.Identity) bool {
	if _, ok := s.accounts[identity]; ok {
		return false
	}
	s.accounts[identity] = &account.Account{
		Entity:   types.NewEntity(),
		ID:       id.NewAccountID(),
		Identity: identity,
	}
	return true
}

// balanceLocked reads a balance without materializing an account.
// Callers hold s.mu.
func (s *Store) balanceLocked(identity account.Identity) types.Amount {
	if acct, ok := s.accounts[identity]; ok {
		return acct.Balance
	}
	return types.ZeroAmount()
}

func (s *Store) GetAccount(_ context.Context, identity account.Identity) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[identity]
	if !ok {
		return nil, tokenledger.ErrAccountNotFound
	}
	c := *acct
	return &c, nil
}

func (s *Store) GetBalance(_ context.Context, identity account.Identity) (types.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if acct, ok := s.accounts[identity]; ok {
		return acct.Balance, nil
	}
	return types.ZeroAmount(), nil
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		c := *acct
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Identity < result[j].Identity
	})

	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) SumBalances(_ context.Context) (types.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total types.Amount
	for _, acct := range s.accounts {
		next, ok := total.Add(acct.Balance)
		if !ok {
			return types.ZeroAmount(), tokenledger.ErrOverflow
		}
		total = next
	}
	return total, nil
}

// ==================== Settlement ====================

func (s *Store) ApplyTransfer(_ context.Context, rec *transfer.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tokenledger.ErrStoreClosed
	}
	if s.info == nil {
		return tokenledger.ErrNotInitialized
	}

	// Compute every post-state value before mutating anything, so a failed
	// apply leaves the store untouched.
	var (
		fromBalance, toBalance types.Amount
		supply                 = s.info.TotalSupply
		ok                     bool
	)

	switch rec.Kind {
	case transfer.KindMint:
		if supply, ok = supply.Add(rec.Amount); !ok {
			return tokenledger.ErrOverflow
		}
		if toBalance, ok = s.balanceLocked(rec.To).Add(rec.Amount); !ok {
			return tokenledger.ErrOverflow
		}

	case transfer.KindBurn:
		if supply, ok = supply.Sub(rec.Amount); !ok {
			return tokenledger.ErrInsufficientBalance
		}
		if fromBalance, ok = s.balanceLocked(rec.From).Sub(rec.Amount); !ok {
			return tokenledger.ErrInsufficientBalance
		}

	case transfer.KindTransfer:
		if fromBalance, ok = s.balanceLocked(rec.From).Sub(rec.Amount); !ok {
			return tokenledger.ErrInsufficientBalance
		}
		if toBalance, ok = s.balanceLocked(rec.To).Add(rec.Amount); !ok {
			return tokenledger.ErrOverflow
		}

	default:
		return tokenledger.ValidationError{Field: "kind", Message: "unknown transfer kind"}
	}

	// Commit.
	rec.Seq = uint64(len(s.transfers)) + 1
	s.info.TotalSupply = supply
	if !rec.From.IsNone() {
		s.ensureLocked(rec.From)
		s.accounts[rec.From].Balance = fromBalance
		s.accounts[rec.From].Touch()
	}
	if !rec.To.IsNone() {
		s.ensureLocked(rec.To)
		s.accounts[rec.To].Balance = toBalance
		s.accounts[rec.To].Touch()
	}

	stored := *rec
	s.transfers = append(s.transfers, &stored)

	return nil
}

// ==================== Transfer log ====================

func (s *Store) ListTransfers(_ context.Context, opts transfer.ListOpts) ([]*transfer.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*transfer.Record, 0)
	for _, rec := range s.transfers {
		if rec.Seq <= opts.AfterSeq {
			continue
		}
		if opts.Kind != "" && rec.Kind != opts.Kind {
			continue
		}
		c := *rec
		result = append(result, &c)
		if opts.Limit > 0 && len(result) >= opts.Limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CountTransfers(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.transfers)), nil
}

// ==================== Store management ====================

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return tokenledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
