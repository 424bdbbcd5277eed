// Package bolt provides an embedded file-backed store using BoltDB.
// A single Update transaction wraps every settlement, so mutations are
// all-or-nothing without an external database.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/xraph/tokenledger"
	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/id"
	"github.com/xraph/tokenledger/store"
	"github.com/xraph/tokenledger/token"
	"github.com/xraph/tokenledger/transfer"
	"github.com/xraph/tokenledger/types"
)

// Bucket and key constants.
var (
	bucketMeta      = []byte("meta")
	bucketAccounts  = []byte("accounts")
	bucketTransfers = []byte("transfers")

	keyToken = []byte("token")
	keyOwner = []byte("owner")
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on a BoltDB file. Keys in the transfers
// bucket are big-endian sequence numbers, so iteration order is log order.
type Store struct {
	db *bolt.DB
}

// New opens (or creates) the BoltDB file at path.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("tokenledger/bolt: open %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying BoltDB handle for direct access.
func (s *Store) DB() *bolt.DB { return s.db }

// Migrate creates the required buckets.
func (s *Store) Migrate(_ context.Context) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketAccounts, bucketTransfers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", tokenledger.ErrMigrationFailed, err)
	}
	return nil
}

// Ping verifies the database file is readable.
func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketMeta) == nil {
			return tokenledger.ErrStoreNotReady
		}
		return nil
	})
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stored record shapes. Amounts persist as decimal strings.

type tokenDoc struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"total_supply"`
}

type accountDoc struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type transferDoc struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Kind      string    `json:"kind"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    string    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// ==================== Token ====================

func (s *Store) InitToken(_ context.Context, info *token.Info) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return tokenledger.ErrStoreNotReady
		}
		if meta.Get(keyToken) != nil {
			return tokenledger.ErrAlreadyInitialized
		}
		return putJSON(meta, keyToken, tokenDoc{
			Name:        info.Name,
			Symbol:      info.Symbol,
			Decimals:    info.Decimals,
			TotalSupply: info.TotalSupply.String(),
		})
	})
}

func (s *Store) GetToken(_ context.Context) (*token.Info, error) {
	var info *token.Info
	err := s.db.View(func(tx *bolt.Tx) error {
		doc, err := readToken(tx)
		if err != nil {
			return err
		}
		info, err = doc.toInfo()
		return err
	})
	return info, err
}

func readToken(tx *bolt.Tx) (*tokenDoc, error) {
	meta := tx.Bucket(bucketMeta)
	if meta == nil {
		return nil, tokenledger.ErrStoreNotReady
	}
	raw := meta.Get(keyToken)
	if raw == nil {
		return nil, tokenledger.ErrNotInitialized
	}
	var doc tokenDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *tokenDoc) toInfo() (*token.Info, error) {
	supply, err := types.ParseAmount(d.TotalSupply)
	if err != nil {
		return nil, err
	}
	return &token.Info{
		Name:        d.Name,
		Symbol:      d.Symbol,
		Decimals:    d.Decimals,
		TotalSupply: supply,
	}, nil
}

// ==================== Owner ====================

func (s *Store) SetOwner(_ context.Context, owner account.Identity) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return tokenledger.ErrStoreNotReady
		}
		return meta.Put(keyOwner, []byte(owner.String()))
	})
}

func (s *Store) GetOwner(_ context.Context) (account.Identity, error) {
	var owner account.Identity
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return tokenledger.ErrStoreNotReady
		}
		raw := meta.Get(keyOwner)
		if raw == nil {
			return tokenledger.ErrNotInitialized
		}
		owner = account.Identity(raw)
		return nil
	})
	return owner, err
}

// ==================== Accounts ====================

func (s *Store) EnsureAccount(_ context.Context, identity account.Identity) (bool, error) {
	var created bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		if accounts == nil {
			return tokenledger.ErrStoreNotReady
		}
		var err error
		created, err = ensureAccountTx(accounts, identity)
		return err
	})
	return created, err
}

func ensureAccountTx(accounts *bolt.Bucket, identity account.Identity) (bool, error) {
	key := []byte(identity.String())
	if accounts.Get(key) != nil {
		return false, nil
	}
	now := time.Now().UTC()
	err := putJSON(accounts, key, accountDoc{
		ID:        id.NewAccountID().String(),
		Identity:  identity.String(),
		Balance:   "0",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) GetAccount(_ context.Context, identity account.Identity) (*account.Account, error) {
	var acct *account.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		if accounts == nil {
			return tokenledger.ErrStoreNotReady
		}
		raw := accounts.Get([]byte(identity.String()))
		if raw == nil {
			return tokenledger.ErrAccountNotFound
		}
		var doc accountDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		var err error
		acct, err = doc.toAccount()
		return err
	})
	return acct, err
}

func (d *accountDoc) toAccount() (*account.Account, error) {
	acctID, err := id.ParseAccountID(d.ID)
	if err != nil {
		return nil, err
	}
	balance, err := types.ParseAmount(d.Balance)
	if err != nil {
		return nil, err
	}
	return &account.Account{
		Entity: types.Entity{
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		},
		ID:       acctID,
		Identity: account.Identity(d.Identity),
		Balance:  balance,
	}, nil
}

func (s *Store) GetBalance(_ context.Context, identity account.Identity) (types.Amount, error) {
	var balance types.Amount
	err := s.db.View(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		if accounts == nil {
			return tokenledger.ErrStoreNotReady
		}
		raw := accounts.Get([]byte(identity.String()))
		if raw == nil {
			return nil
		}
		var doc accountDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		var err error
		balance, err = types.ParseAmount(doc.Balance)
		return err
	})
	return balance, err
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	result := make([]*account.Account, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		if accounts == nil {
			return tokenledger.ErrStoreNotReady
		}

		// Account keys are identities, so a cursor walk is already sorted.
		skipped := 0
		c := accounts.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if skipped < opts.Offset {
				skipped++
				continue
			}
			var doc accountDoc
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			acct, err := doc.toAccount()
			if err != nil {
				return err
			}
			result = append(result, acct)
			if opts.Limit > 0 && len(result) >= opts.Limit {
				break
			}
		}
		return nil
	})
	return result, err
}

func (s *Store) SumBalances(_ context.Context) (types.Amount, error) {
	var total types.Amount
	err := s.db.View(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		if accounts == nil {
			return tokenledger.ErrStoreNotReady
		}
		return accounts.ForEach(func(_, v []byte) error {
			var doc accountDoc
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			balance, err := types.ParseAmount(doc.Balance)
			if err != nil {
				return err
			}
			next, ok := total.Add(balance)
			if !ok {
				return tokenledger.ErrOverflow
			}
			total = next
			return nil
		})
	})
	return total, err
}

// ==================== Settlement ====================

func (s *Store) ApplyTransfer(_ context.Context, rec *transfer.Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		accounts := tx.Bucket(bucketAccounts)
		transfers := tx.Bucket(bucketTransfers)
		if meta == nil || accounts == nil || transfers == nil {
			return tokenledger.ErrStoreNotReady
		}

		doc, err := readToken(tx)
		if err != nil {
			return err
		}
		supply, err := types.ParseAmount(doc.TotalSupply)
		if err != nil {
			return err
		}

		switch rec.Kind {
		case transfer.KindMint:
			next, ok := supply.Add(rec.Amount)
			if !ok {
				return tokenledger.ErrOverflow
			}
			supply = next
			if err := creditTx(accounts, rec.To, rec.Amount); err != nil {
				return err
			}

		case transfer.KindBurn:
			next, ok := supply.Sub(rec.Amount)
			if !ok {
				return tokenledger.ErrInsufficientBalance
			}
			supply = next
			if err := debitTx(accounts, rec.From, rec.Amount); err != nil {
				return err
			}

		case transfer.KindTransfer:
			if err := debitTx(accounts, rec.From, rec.Amount); err != nil {
				return err
			}
			if err := creditTx(accounts, rec.To, rec.Amount); err != nil {
				return err
			}

		default:
			return tokenledger.ValidationError{Field: "kind", Message: "unknown transfer kind"}
		}

		doc.TotalSupply = supply.String()
		if err := putJSON(meta, keyToken, doc); err != nil {
			return err
		}

		// NextSequence rolls back with the transaction, so sequence numbers
		// stay gap-free.
		seq, err := transfers.NextSequence()
		if err != nil {
			return err
		}
		rec.Seq = seq

		return putJSON(transfers, seqKey(seq), transferDoc{
			ID:        rec.ID.String(),
			Seq:       seq,
			Kind:      string(rec.Kind),
			From:      rec.From.String(),
			To:        rec.To.String(),
			Amount:    rec.Amount.String(),
			Timestamp: rec.Timestamp.UTC(),
		})
	})
}

func creditTx(accounts *bolt.Bucket, identity account.Identity, amount types.Amount) error {
	if _, err := ensureAccountTx(accounts, identity); err != nil {
		return err
	}
	key := []byte(identity.String())
	var doc accountDoc
	if err := json.Unmarshal(accounts.Get(key), &doc); err != nil {
		return err
	}
	balance, err := types.ParseAmount(doc.Balance)
	if err != nil {
		return err
	}
	next, ok := balance.Add(amount)
	if !ok {
		return tokenledger.ErrOverflow
	}
	doc.Balance = next.String()
	doc.UpdatedAt = time.Now().UTC()
	return putJSON(accounts, key, doc)
}

func debitTx(accounts *bolt.Bucket, identity account.Identity, amount types.Amount) error {
	key := []byte(identity.String())
	raw := accounts.Get(key)
	if raw == nil {
		return tokenledger.ErrInsufficientBalance
	}
	var doc accountDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	balance, err := types.ParseAmount(doc.Balance)
	if err != nil {
		return err
	}
	next, ok := balance.Sub(amount)
	if !ok {
		return tokenledger.ErrInsufficientBalance
	}
	doc.Balance = next.String()
	doc.UpdatedAt = time.Now().UTC()
	return putJSON(accounts, key, doc)
}

// ==================== Transfer log ====================

func (s *Store) ListTransfers(_ context.Context, opts transfer.ListOpts) ([]*transfer.Record, error) {
	result := make([]*transfer.Record, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		transfers := tx.Bucket(bucketTransfers)
		if transfers == nil {
			return tokenledger.ErrStoreNotReady
		}

		c := transfers.Cursor()
		for k, v := c.Seek(seqKey(opts.AfterSeq + 1)); k != nil; k, v = c.Next() {
			var doc transferDoc
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			if opts.Kind != "" && transfer.Kind(doc.Kind) != opts.Kind {
				continue
			}
			rec, err := doc.toRecord()
			if err != nil {
				return err
			}
			result = append(result, rec)
			if opts.Limit > 0 && len(result) >= opts.Limit {
				break
			}
		}
		return nil
	})
	return result, err
}

func (d *transferDoc) toRecord() (*transfer.Record, error) {
	recID, err := id.ParseTransferID(d.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(d.Amount)
	if err != nil {
		return nil, err
	}
	return &transfer.Record{
		ID:        recID,
		Seq:       d.Seq,
		Kind:      transfer.Kind(d.Kind),
		From:      account.Identity(d.From),
		To:        account.Identity(d.To),
		Amount:    amount,
		Timestamp: d.Timestamp,
	}, nil
}

func (s *Store) CountTransfers(_ context.Context) (uint64, error) {
	var count uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		transfers := tx.Bucket(bucketTransfers)
		if transfers == nil {
			return tokenledger.ErrStoreNotReady
		}
		count = uint64(transfers.Stats().KeyN)
		return nil
	})
	return count, err
}

// ==================== Helpers ====================

// seqKey encodes a sequence number as a big-endian key so cursor order
// matches log order.
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, raw)
}
