// Package mongo provides a MongoDB-backed store. Settlement uses
// multi-document transactions, so the deployment must be a replica set
// (a single-node replica set is enough).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/tokenledger"
	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/id"
	"github.com/xraph/tokenledger/store"
	"github.com/xraph/tokenledger/token"
	"github.com/xraph/tokenledger/transfer"
	"github.com/xraph/tokenledger/types"
)

// Collection name constants.
const (
	colToken     = "ledger_token"
	colOwner     = "ledger_owner"
	colAccounts  = "ledger_accounts"
	colTransfers = "ledger_transfers"
	colCounters  = "ledger_counters"
)

// Singleton document ids.
const (
	docToken = "token"
	docOwner = "owner"
	docSeq   = "transfer_seq"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a new MongoDB store on the given database.
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
	}
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

// Migrate creates indexes for all ledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		_, err := s.db.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: migrate %s indexes: %v", tokenledger.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ==================== Token ====================

func (s *Store) InitToken(ctx context.Context, info *token.Info) error {
	_, err := s.db.Collection(colToken).InsertOne(ctx, toTokenModel(info))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tokenledger.ErrAlreadyInitialized
		}
		return fmt.Errorf("tokenledger/mongo: init token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context) (*token.Info, error) {
	var m tokenModel
	err := s.db.Collection(colToken).
		FindOne(ctx, bson.M{"_id": docToken}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tokenledger.ErrNotInitialized
		}
		return nil, fmt.Errorf("tokenledger/mongo: get token: %w", err)
	}
	return fromTokenModel(&m)
}

// ==================== Owner ====================

func (s *Store) SetOwner(ctx context.Context, owner account.Identity) error {
	_, err := s.db.Collection(colOwner).UpdateOne(ctx,
		bson.M{"_id": docOwner},
		bson.M{"$set": bson.M{"identity": owner.String()}},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("tokenledger/mongo: set owner: %w", err)
	}
	return nil
}

func (s *Store) GetOwner(ctx context.Context) (account.Identity, error) {
	var doc struct {
		Identity string `bson:"identity"`
	}
	err := s.db.Collection(colOwner).
		FindOne(ctx, bson.M{"_id": docOwner}).
		Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return account.None, tokenledger.ErrNotInitialized
		}
		return account.None, fmt.Errorf("tokenledger/mongo: get owner: %w", err)
	}
	return account.Identity(doc.Identity), nil
}

// ==================== Accounts ====================

func (s *Store) EnsureAccount(ctx context.Context, identity account.Identity) (bool, error) {
	return s.ensureAccount(ctx, s.db.Collection(colAccounts), identity)
}

func (s *Store) ensureAccount(ctx context.Context, col *mongo.Collection, identity account.Identity) (bool, error) {
	now := time.Now().UTC()
	res, err := col.UpdateOne(ctx,
		bson.M{"identity": identity.String()},
		bson.M{"$setOnInsert": bson.M{
			"_id":        id.NewAccountID().String(),
			"identity":   identity.String(),
			"balance":    "0",
			"created_at": now,
			"updated_at": now,
		}},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("tokenledger/mongo: ensure account: %w", err)
	}
	return res.UpsertedCount > 0, nil
}

func (s *Store) GetAccount(ctx context.Context, identity account.Identity) (*account.Account, error) {
	var m accountModel
	err := s.db.Collection(colAccounts).
		FindOne(ctx, bson.M{"identity": identity.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tokenledger.ErrAccountNotFound
		}
		return nil, fmt.Errorf("tokenledger/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) GetBalance(ctx context.Context, identity account.Identity) (types.Amount, error) {
	acct, err := s.GetAccount(ctx, identity)
	if err != nil {
		if errors.Is(err, tokenledger.ErrAccountNotFound) {
			return types.ZeroAmount(), nil
		}
		return types.ZeroAmount(), err
	}
	return acct.Balance, nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "identity", Value: 1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colAccounts).Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("tokenledger/mongo: list accounts: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]*account.Account, 0)
	for cursor.Next(ctx) {
		var m accountModel
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		acct, err := fromAccountModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, cursor.Err()
}

func (s *Store) SumBalances(ctx context.Context) (types.Amount, error) {
	// Balances are decimal strings, so the sum happens client-side.
	cursor, err := s.db.Collection(colAccounts).Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"balance": 1}))
	if err != nil {
		return types.ZeroAmount(), fmt.Errorf("tokenledger/mongo: sum balances: %w", err)
	}
	defer cursor.Close(ctx)

	var total types.Amount
	for cursor.Next(ctx) {
		var doc struct {
			Balance string `bson:"balance"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return types.ZeroAmount(), err
		}
		balance, err := types.ParseAmount(doc.Balance)
		if err != nil {
			return types.ZeroAmount(), err
		}
		next, ok := total.Add(balance)
		if !ok {
			return types.ZeroAmount(), tokenledger.ErrOverflow
		}
		total = next
	}
	return total, cursor.Err()
}

// ==================== Settlement ====================

func (s *Store) ApplyTransfer(ctx context.Context, rec *transfer.Record) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: %v", tokenledger.ErrTransactionFailed, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, s.applyTransferTxn(ctx, rec)
	})
	if err != nil {
		// Domain rejections pass through; driver failures get wrapped.
		if errors.Is(err, tokenledger.ErrOverflow) ||
			errors.Is(err, tokenledger.ErrInsufficientBalance) ||
			errors.Is(err, tokenledger.ErrNotInitialized) {
			return err
		}
		var verr tokenledger.ValidationError
		if errors.As(err, &verr) {
			return err
		}
		return fmt.Errorf("%w: %v", tokenledger.ErrTransactionFailed, err)
	}
	return nil
}

func (s *Store) applyTransferTxn(ctx context.Context, rec *transfer.Record) error {
	info, err := s.GetToken(ctx)
	if err != nil {
		return err
	}
	supply := info.TotalSupply

	switch rec.Kind {
	case transfer.KindMint:
		next, ok := supply.Add(rec.Amount)
		if !ok {
			return tokenledger.ErrOverflow
		}
		supply = next
		if err := s.credit(ctx, rec.To, rec.Amount); err != nil {
			return err
		}

	case transfer.KindBurn:
		next, ok := supply.Sub(rec.Amount)
		if !ok {
			return tokenledger.ErrInsufficientBalance
		}
		supply = next
		if err := s.debit(ctx, rec.From, rec.Amount); err != nil {
			return err
		}

	case transfer.KindTransfer:
		if err := s.debit(ctx, rec.From, rec.Amount); err != nil {
			return err
		}
		if err := s.credit(ctx, rec.To, rec.Amount); err != nil {
			return err
		}

	default:
		return tokenledger.ValidationError{Field: "kind", Message: "unknown transfer kind"}
	}

	if _, err := s.db.Collection(colToken).UpdateOne(ctx,
		bson.M{"_id": docToken},
		bson.M{"$set": bson.M{"total_supply": supply.String()}}); err != nil {
		return err
	}

	seq, err := s.nextSeq(ctx)
	if err != nil {
		return err
	}
	rec.Seq = seq

	if _, err := s.db.Collection(colTransfers).InsertOne(ctx, toTransferModel(rec)); err != nil {
		return err
	}
	return nil
}

// nextSeq increments the transfer counter. Inside a transaction the
// increment aborts with the rest of the writes, keeping sequences gap-free.
func (s *Store) nextSeq(ctx context.Context) (uint64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": docSeq},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After)).
		Decode(&doc)
	if err != nil {
		return 0, err
	}
	return uint64(doc.Value), nil
}

func (s *Store) credit(ctx context.Context, identity account.Identity, amount types.Amount) error {
	col := s.db.Collection(colAccounts)
	if _, err := s.ensureAccount(ctx, col, identity); err != nil {
		return err
	}

	var m accountModel
	if err := col.FindOne(ctx, bson.M{"identity": identity.String()}).Decode(&m); err != nil {
		return err
	}
	balance, err := types.ParseAmount(m.Balance)
	if err != nil {
		return err
	}
	next, ok := balance.Add(amount)
	if !ok {
		return tokenledger.ErrOverflow
	}

	_, err = col.UpdateOne(ctx,
		bson.M{"identity": identity.String()},
		bson.M{"$set": bson.M{"balance": next.String(), "updated_at": time.Now().UTC()}})
	return err
}

func (s *Store) debit(ctx context.Context, identity account.Identity, amount types.Amount) error {
	col := s.db.Collection(colAccounts)

	var m accountModel
	err := col.FindOne(ctx, bson.M{"identity": identity.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return tokenledger.ErrInsufficientBalance
		}
		return err
	}
	balance, err := types.ParseAmount(m.Balance)
	if err != nil {
		return err
	}
	next, ok := balance.Sub(amount)
	if !ok {
		return tokenledger.ErrInsufficientBalance
	}

	_, err = col.UpdateOne(ctx,
		bson.M{"identity": identity.String()},
		bson.M{"$set": bson.M{"balance": next.String(), "updated_at": time.Now().UTC()}})
	return err
}

// ==================== Transfer log ====================

func (s *Store) ListTransfers(ctx context.Context, opts transfer.ListOpts) ([]*transfer.Record, error) {
	filter := bson.M{"seq": bson.M{"$gt": int64(opts.AfterSeq)}}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.db.Collection(colTransfers).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("tokenledger/mongo: list transfers: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]*transfer.Record, 0)
	for cursor.Next(ctx) {
		var m transferModel
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		rec, err := fromTransferModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, cursor.Err()
}

func (s *Store) CountTransfers(ctx context.Context) (uint64, error) {
	count, err := s.db.Collection(colTransfers).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("tokenledger/mongo: count transfers: %w", err)
	}
	return uint64(count), nil
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all ledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys:    bson.D{{Key: "identity", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colTransfers: {
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "seq", Value: 1}}},
		},
	}
}
