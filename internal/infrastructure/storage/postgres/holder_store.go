package postgres

import (
	"context"
	"fmt"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"
	"chain_sync/internal/pkg/utils"

	"github.com/jackc/pgx/v5"
)

// HolderStore implements port.HolderStore using PostgreSQL.
type HolderStore struct {
	pool *Pool
}

func NewHolderStore(pool *Pool) *HolderStore {
	return &HolderStore{pool: pool}
}

var _ port.HolderStore = (*HolderStore)(nil)

const holderColumns = `id, token_id, address, balance::text, opted_in_at_round, opted_out_at_round, deleted`

func scanHolder(row pgx.Row) (entity.Holder, error) {
	var (
		h          entity.Holder
		balance    string
		in, outRnd *int64
	)
	if err := row.Scan(&h.ID, &h.TokenID, &h.Address, &balance, &in, &outRnd, &h.Deleted); err != nil {
		return entity.Holder{}, err
	}
	var err error
	if h.Balance, err = utils.ParseBigInt(balance); err != nil {
		return entity.Holder{}, err
	}
	h.OptedInAtRound = roundFromDB(in)
	h.OptedOutAtRound = roundFromDB(outRnd)
	return h, nil
}

func (s *HolderStore) Find(ctx context.Context, tokenID int64, address string) (entity.Holder, error) {
	query := `SELECT ` + holderColumns + ` FROM holders WHERE token_id = $1 AND lower(address) = lower($2)`

	h, err := scanHolder(s.pool.QueryRow(ctx, query, tokenID, address))
	if err != nil {
		if isNotFoundError(err) {
			return entity.Holder{}, entity.ErrNotFound
		}
		return entity.Holder{}, fmt.Errorf("get holder: %w", err)
	}
	return h, nil
}

func (s *HolderStore) ListByToken(ctx context.Context, tokenID int64) ([]entity.Holder, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+holderColumns+` FROM holders WHERE token_id = $1 ORDER BY id`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	defer rows.Close()

	var out []entity.Holder
	for rows.Next() {
		h, err := scanHolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holder: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Insert adds a holder. Returns ErrDuplicateKey if (token_id, address) exists.
func (s *HolderStore) Insert(ctx context.Context, h entity.Holder) (entity.Holder, error) {
	query := `
		INSERT INTO holders (token_id, address, balance, opted_in_at_round, opted_out_at_round, deleted)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		RETURNING ` + holderColumns

	stored, err := scanHolder(s.pool.QueryRow(ctx, query,
		h.TokenID, h.Address, utils.BigIntString(h.Balance), roundToDB(h.OptedInAtRound), roundToDB(h.OptedOutAtRound), h.Deleted))
	if err != nil {
		if isDuplicateKeyError(err) {
			return entity.Holder{}, entity.ErrDuplicateKey
		}
		return entity.Holder{}, fmt.Errorf("insert holder: %w", err)
	}
	return stored, nil
}

func (s *HolderStore) Update(ctx context.Context, h entity.Holder) (entity.Holder, error) {
	query := `
		UPDATE holders SET balance = $3::numeric, opted_in_at_round = $4, opted_out_at_round = $5, deleted = $6
		WHERE token_id = $1 AND lower(address) = lower($2)
		RETURNING ` + holderColumns

	stored, err := scanHolder(s.pool.QueryRow(ctx, query,
		h.TokenID, h.Address, utils.BigIntString(h.Balance), roundToDB(h.OptedInAtRound), roundToDB(h.OptedOutAtRound), h.Deleted))
	if err != nil {
		if isNotFoundError(err) {
			return entity.Holder{}, entity.ErrNotFound
		}
		return entity.Holder{}, fmt.Errorf("update holder: %w", err)
	}
	return stored, nil
}

func (s *HolderStore) DeleteEmpty(ctx context.Context, tokenID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM holders WHERE token_id = $1 AND balance <= 0`, tokenID)
	if err != nil {
		return 0, fmt.Errorf("delete empty holders: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *HolderStore) Delete(ctx context.Context, tokenID int64, address string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM holders WHERE token_id = $1 AND lower(address) = lower($2)`, tokenID, address)
	if err != nil {
		return fmt.Errorf("delete holder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}
