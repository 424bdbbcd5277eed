// Package sqlite provides a SQLite-backed store using the modernc.org
// pure-Go driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

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

// Store implements store.Store on SQLite. Settlement runs inside a single
// write transaction; SQLite's writer serialization plus a single connection
// gives committed-state reads.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path.
// Use ":memory:" for an ephemeral database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("tokenledger/sqlite: open %q: %w", path, err)
	}

	// modernc.org/sqlite allows one writer; a single pooled connection
	// avoids SQLITE_BUSY churn under concurrent use.
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if err := runMigrations(ctx, s.db); err != nil {
		return fmt.Errorf("%w: %v", tokenledger.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Token ====================

func (s *Store) InitToken(ctx context.Context, info *token.Info) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO tokenledger_token (id, name, symbol, decimals, total_supply)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`,
		info.Name, info.Symbol, info.Decimals, info.TotalSupply)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tokenledger.ErrAlreadyInitialized
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context) (*token.Info, error) {
	info := new(token.Info)
	err := s.db.QueryRowContext(ctx, `
SELECT name, symbol, decimals, total_supply FROM tokenledger_token WHERE id = 1`).
		Scan(&info.Name, &info.Symbol, &info.Decimals, &info.TotalSupply)
	if err != nil {
		if isNoRows(err) {
			return nil, tokenledger.ErrNotInitialized
		}
		return nil, err
	}
	return info, nil
}

// ==================== Owner ====================

func (s *Store) SetOwner(ctx context.Context, owner account.Identity) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tokenledger_owner (id, identity) VALUES (1, ?)
ON CONFLICT (id) DO UPDATE SET identity = excluded.identity`,
		owner.String())
	return err
}

func (s *Store) GetOwner(ctx context.Context) (account.Identity, error) {
	var identity string
	err := s.db.QueryRowContext(ctx, `
SELECT identity FROM tokenledger_owner WHERE id = 1`).Scan(&identity)
	if err != nil {
		if isNoRows(err) {
			return account.None, tokenledger.ErrNotInitialized
		}
		return account.None, err
	}
	return account.Identity(identity), nil
}

// ==================== Accounts ====================

func (s *Store) EnsureAccount(ctx context.Context, identity account.Identity) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
INSERT INTO tokenledger_accounts (id, identity, balance, created_at, updated_at)
VALUES (?, ?, '0', ?, ?)
ON CONFLICT (identity) DO NOTHING`,
		id.NewAccountID(), identity.String(), now, now)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *Store) GetAccount(ctx context.Context, identity account.Identity) (*account.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `
SELECT id, identity, balance, created_at, updated_at
FROM tokenledger_accounts WHERE identity = ?`, identity.String()))
}

func (s *Store) GetBalance(ctx context.Context, identity account.Identity) (types.Amount, error) {
	var balance types.Amount
	err := s.db.QueryRowContext(ctx, `
SELECT balance FROM tokenledger_accounts WHERE identity = ?`, identity.String()).
		Scan(&balance)
	if err != nil {
		if isNoRows(err) {
			return types.ZeroAmount(), nil
		}
		return types.ZeroAmount(), err
	}
	return balance, nil
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	query := `
SELECT id, identity, balance, created_at, updated_at
FROM tokenledger_accounts ORDER BY identity ASC`
	args := make([]any, 0, 2)
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit == 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*account.Account, 0)
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}

func (s *Store) SumBalances(ctx context.Context) (types.Amount, error) {
	// Balances are stored as decimal text to preserve the 128-bit domain,
	// so the sum is computed here rather than in SQL.
	rows, err := s.db.QueryContext(ctx, `SELECT balance FROM tokenledger_accounts`)
	if err != nil {
		return types.ZeroAmount(), err
	}
	defer rows.Close()

	var total types.Amount
	for rows.Next() {
		var balance types.Amount
		if err := rows.Scan(&balance); err != nil {
			return types.ZeroAmount(), err
		}
		next, ok := total.Add(balance)
		if !ok {
			return types.ZeroAmount(), tokenledger.ErrOverflow
		}
		total = next
	}
	return total, rows.Err()
}

// ==================== Settlement ====================

func (s *Store) ApplyTransfer(ctx context.Context, rec *transfer.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", tokenledger.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := applyTransferTx(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", tokenledger.ErrTransactionFailed, err)
	}
	return nil
}

func applyTransferTx(ctx context.Context, tx *sql.Tx, rec *transfer.Record) error {
	var supply types.Amount
	err := tx.QueryRowContext(ctx, `
SELECT total_supply FROM tokenledger_token WHERE id = 1`).Scan(&supply)
	if err != nil {
		if isNoRows(err) {
			return tokenledger.ErrNotInitialized
		}
		return err
	}

	switch rec.Kind {
	case transfer.KindMint:
		next, ok := supply.Add(rec.Amount)
		if !ok {
			return tokenledger.ErrOverflow
		}
		supply = next
		if err := creditTx(ctx, tx, rec.To, rec.Amount); err != nil {
			return err
		}

	case transfer.KindBurn:
		next, ok := supply.Sub(rec.Amount)
		if !ok {
			return tokenledger.ErrInsufficientBalance
		}
		supply = next
		if err := debitTx(ctx, tx, rec.From, rec.Amount); err != nil {
			return err
		}

	case transfer.KindTransfer:
		if err := debitTx(ctx, tx, rec.From, rec.Amount); err != nil {
			return err
		}
		if err := creditTx(ctx, tx, rec.To, rec.Amount); err != nil {
			return err
		}

	default:
		return tokenledger.ValidationError{Field: "kind", Message: "unknown transfer kind"}
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE tokenledger_token SET total_supply = ? WHERE id = 1`, supply); err != nil {
		return err
	}

	var seq uint64
	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(seq), 0) + 1 FROM tokenledger_transfers`).Scan(&seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO tokenledger_transfers (seq, id, kind, from_identity, to_identity, amount, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		seq, rec.ID, string(rec.Kind),
		rec.From.String(), rec.To.String(),
		rec.Amount, rec.Timestamp.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return err
	}

	rec.Seq = seq
	return nil
}

// creditTx adds amount to an identity's balance, materializing the account
// if absent.
func creditTx(ctx context.Context, tx *sql.Tx, identity account.Identity, amount types.Amount) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO tokenledger_accounts (id, identity, balance, created_at, updated_at)
VALUES (?, ?, '0', ?, ?)
ON CONFLICT (identity) DO NOTHING`,
		id.NewAccountID(), identity.String(), now, now); err != nil {
		return err
	}

	var balance types.Amount
	if err := tx.QueryRowContext(ctx, `
SELECT balance FROM tokenledger_accounts WHERE identity = ?`, identity.String()).
		Scan(&balance); err != nil {
		return err
	}

	next, ok := balance.Add(amount)
	if !ok {
		return tokenledger.ErrOverflow
	}

	_, err := tx.ExecContext(ctx, `
UPDATE tokenledger_accounts SET balance = ?, updated_at = ? WHERE identity = ?`,
		next, now, identity.String())
	return err
}

// debitTx subtracts amount from an identity's balance.
func debitTx(ctx context.Context, tx *sql.Tx, identity account.Identity, amount types.Amount) error {
	var balance types.Amount
	err := tx.QueryRowContext(ctx, `
SELECT balance FROM tokenledger_accounts WHERE identity = ?`, identity.String()).
		Scan(&balance)
	if err != nil {
		if isNoRows(err) {
			return tokenledger.ErrInsufficientBalance
		}
		return err
	}

	next, ok := balance.Sub(amount)
	if !ok {
		return tokenledger.ErrInsufficientBalance
	}

	_, err = tx.ExecContext(ctx, `
UPDATE tokenledger_accounts SET balance = ?, updated_at = ? WHERE identity = ?`,
		next, time.Now().UTC().Format(time.RFC3339Nano), identity.String())
	return err
}

// ==================== Transfer log ====================

func (s *Store) ListTransfers(ctx context.Context, opts transfer.ListOpts) ([]*transfer.Record, error) {
	query := `
SELECT seq, id, kind, from_identity, to_identity, amount, timestamp
FROM tokenledger_transfers WHERE seq > ?`
	args := []any{opts.AfterSeq}

	if opts.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(opts.Kind))
	}
	query += " ORDER BY seq ASC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*transfer.Record, 0)
	for rows.Next() {
		rec, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) CountTransfers(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokenledger_transfers`).Scan(&count)
	return count, err
}

// ==================== Row scanning ====================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var (
		acct               account.Account
		identity           string
		createdAt, updated string
	)
	if err := row.Scan(&acct.ID, &identity, &acct.Balance, &createdAt, &updated); err != nil {
		if isNoRows(err) {
			return nil, tokenledger.ErrAccountNotFound
		}
		return nil, err
	}
	acct.Identity = account.Identity(identity)

	var err error
	if acct.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if acct.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, err
	}
	return &acct, nil
}

func scanTransfer(row rowScanner) (*transfer.Record, error) {
	var (
		rec       transfer.Record
		kind      string
		from, to  string
		timestamp string
	)
	if err := row.Scan(&rec.Seq, &rec.ID, &kind, &from, &to, &rec.Amount, &timestamp); err != nil {
		return nil, err
	}
	rec.Kind = transfer.Kind(kind)
	rec.From = account.Identity(from)
	rec.To = account.Identity(to)

	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, err
	}
	rec.Timestamp = ts
	return &rec, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
