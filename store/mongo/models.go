package mongo

import (
	"time"

	"github.com/xraph/tokenledger/account"
	"github.com/xraph/tokenledger/id"
	"github.com/xraph/tokenledger/token"
	"github.com/xraph/tokenledger/transfer"
	"github.com/xraph/tokenledger/types"
)

// Amounts are persisted as decimal strings so the full 128-bit range
// survives BSON, which has no unsigned 128-bit numeric type.

// ==================== Token model ====================

type tokenModel struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Symbol      string    `bson:"symbol"`
	Decimals    uint8     `bson:"decimals"`
	TotalSupply string    `bson:"total_supply"`
	CreatedAt   time.Time `bson:"created_at"`
}

func toTokenModel(info *token.Info) *tokenModel {
	return &tokenModel{
		ID:          docToken,
		Name:        info.Name,
		Symbol:      info.Symbol,
		Decimals:    info.Decimals,
		TotalSupply: info.TotalSupply.String(),
		CreatedAt:   time.Now().UTC(),
	}
}

func fromTokenModel(m *tokenModel) (*token.Info, error) {
	supply, err := types.ParseAmount(m.TotalSupply)
	if err != nil {
		return nil, err
	}
	return &token.Info{
		Name:        m.Name,
		Symbol:      m.Symbol,
		Decimals:    m.Decimals,
		TotalSupply: supply,
	}, nil
}

// ==================== Account model ====================

type accountModel struct {
	ID        string    `bson:"_id"`
	Identity  string    `bson:"identity"`
	Balance   string    `bson:"balance"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	acctID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}
	balance, err := types.ParseAmount(m.Balance)
	if err != nil {
		return nil, err
	}
	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       acctID,
		Identity: account.Identity(m.Identity),
		Balance:  balance,
	}, nil
}

// ==================== Transfer model ====================

type transferModel struct {
	ID        string    `bson:"_id"`
	Seq       int64     `bson:"seq"`
	Kind      string    `bson:"kind"`
	From      string    `bson:"from_identity"`
	To        string    `bson:"to_identity"`
	Amount    string    `bson:"amount"`
	Timestamp time.Time `bson:"timestamp"`
}

func toTransferModel(rec *transfer.Record) *transferModel {
	return &transferModel{
		ID:        rec.ID.String(),
		Seq:       int64(rec.Seq),
		Kind:      string(rec.Kind),
		From:      rec.From.String(),
		To:        rec.To.String(),
		Amount:    rec.Amount.String(),
		Timestamp: rec.Timestamp.UTC(),
	}
}

func fromTransferModel(m *transferModel) (*transfer.Record, error) {
	recID, err := id.ParseTransferID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	return &transfer.Record{
		ID:        recID,
		Seq:       uint64(m.Seq),
		Kind:      transfer.Kind(m.Kind),
		From:      account.Identity(m.From),
		To:        account.Identity(m.To),
		Amount:    amount,
		Timestamp: m.Timestamp,
	}, nil
}
