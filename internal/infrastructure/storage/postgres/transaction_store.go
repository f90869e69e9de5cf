package postgres

import (
	"context"
	"fmt"
	"math/big"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"
	"chain_sync/internal/pkg/utils"

	"github.com/jackc/pgx/v5"
)

// TransactionStore implements port.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

var _ port.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `id, token_id, transaction_id, date, is_swap, from_address, to_address,
	amount::text, swap_amount::text, swap_token_id`

func scanTransaction(row pgx.Row) (entity.Transaction, error) {
	var (
		tx         entity.Transaction
		amount     string
		swapAmount *string
	)
	err := row.Scan(&tx.ID, &tx.TokenID, &tx.TransactionID, &tx.Date, &tx.IsSwap, &tx.FromAddress, &tx.ToAddress,
		&amount, &swapAmount, &tx.SwapTokenID)
	if err != nil {
		return entity.Transaction{}, err
	}
	if tx.Amount, err = utils.ParseBigInt(amount); err != nil {
		return entity.Transaction{}, err
	}
	if swapAmount != nil {
		if tx.SwapAmount, err = utils.ParseBigInt(*swapAmount); err != nil {
			return entity.Transaction{}, err
		}
	}
	return tx, nil
}

func nullableAmount(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func (s *TransactionStore) Find(ctx context.Context, tokenID int64, transactionID string) (entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE token_id = $1 AND transaction_id = $2`

	tx, err := scanTransaction(s.pool.QueryRow(ctx, query, tokenID, transactionID))
	if err != nil {
		if isNotFoundError(err) {
			return entity.Transaction{}, entity.ErrNotFound
		}
		return entity.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// Insert adds a transaction. Returns ErrDuplicateKey if (token_id, transaction_id) exists.
func (s *TransactionStore) Insert(ctx context.Context, tx entity.Transaction) (entity.Transaction, error) {
	query := `
		INSERT INTO transactions (
			token_id, transaction_id, date, is_swap, from_address, to_address, amount, swap_amount, swap_token_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9)
		RETURNING ` + transactionColumns

	stored, err := scanTransaction(s.pool.QueryRow(ctx, query,
		tx.TokenID, tx.TransactionID, tx.Date, tx.IsSwap, tx.FromAddress, tx.ToAddress,
		utils.BigIntString(tx.Amount), nullableAmount(tx.SwapAmount), tx.SwapTokenID,
	))
	if err != nil {
		if isDuplicateKeyError(err) {
			return entity.Transaction{}, entity.ErrDuplicateKey
		}
		return entity.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return stored, nil
}
