package postgres

import (
	"context"
	"fmt"
	"time"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"
	"chain_sync/internal/pkg/utils"

	"github.com/jackc/pgx/v5"
)

// TokenStore implements port.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

var _ port.TokenStore = (*TokenStore)(nil)

const tokenColumns = `id, application_id, network, address, name, symbol, decimals, total_supply::text,
	creator, is_global_token, additional_info, last_synced_at, last_transaction_at, created_at, updated_at`

func scanToken(row pgx.Row) (entity.Token, error) {
	var (
		t        entity.Token
		decimals int16
		supply   string
	)
	err := row.Scan(&t.ID, &t.ApplicationID, &t.Network, &t.Address, &t.Name, &t.Symbol, &decimals, &supply,
		&t.Creator, &t.IsGlobalToken, &t.AdditionalInfo, &t.LastSyncedAt, &t.LastTransactionAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return entity.Token{}, err
	}
	t.Decimals = uint8(decimals)
	if t.TotalSupply, err = utils.ParseBigInt(supply); err != nil {
		return entity.Token{}, err
	}
	return t, nil
}

func (s *TokenStore) FindByAddress(ctx context.Context, network, address string) (entity.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE network = $1 AND lower(address) = lower($2)`

	t, err := scanToken(s.pool.QueryRow(ctx, query, network, address))
	if err != nil {
		if isNotFoundError(err) {
			return entity.Token{}, entity.ErrNotFound
		}
		return entity.Token{}, fmt.Errorf("get token by address: %w", err)
	}
	return t, nil
}

// Insert adds a new token. Returns ErrDuplicateKey if (network, address) exists.
func (s *TokenStore) Insert(ctx context.Context, t entity.Token) (entity.Token, error) {
	query := `
		INSERT INTO tokens (
			application_id, network, address, name, symbol, decimals, total_supply,
			creator, is_global_token, additional_info
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)
		RETURNING ` + tokenColumns

	stored, err := scanToken(s.pool.QueryRow(ctx, query,
		t.ApplicationID, t.Network, t.Address, t.Name, t.Symbol, int16(t.Decimals), utils.BigIntString(t.TotalSupply),
		t.Creator, t.IsGlobalToken, t.AdditionalInfo,
	))
	if err != nil {
		if isDuplicateKeyError(err) {
			return entity.Token{}, entity.ErrDuplicateKey
		}
		return entity.Token{}, fmt.Errorf("insert token: %w", err)
	}
	return stored, nil
}

func (s *TokenStore) Update(ctx context.Context, t entity.Token) (entity.Token, error) {
	query := `
		UPDATE tokens SET
			application_id = $2, name = $3, symbol = $4, decimals = $5, total_supply = $6::numeric,
			creator = $7, is_global_token = $8, additional_info = $9, updated_at = now()
		WHERE id = $1
		RETURNING ` + tokenColumns

	stored, err := scanToken(s.pool.QueryRow(ctx, query,
		t.ID, t.ApplicationID, t.Name, t.Symbol, int16(t.Decimals), utils.BigIntString(t.TotalSupply),
		t.Creator, t.IsGlobalToken, t.AdditionalInfo,
	))
	if err != nil {
		if isNotFoundError(err) {
			return entity.Token{}, entity.ErrNotFound
		}
		return entity.Token{}, fmt.Errorf("update token: %w", err)
	}
	return stored, nil
}

func (s *TokenStore) ListStale(ctx context.Context, applicationID int, cutoff time.Time, limit int) ([]entity.Token, error) {
	query := `SELECT ` + tokenColumns + `
		FROM tokens
		WHERE application_id = $1 AND (last_synced_at IS NULL OR last_synced_at < $2)
		ORDER BY last_synced_at DESC NULLS FIRST, id
		LIMIT NULLIF($3, 0)`

	rows, err := s.pool.Query(ctx, query, applicationID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale tokens: %w", err)
	}
	defer rows.Close()

	var out []entity.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *TokenStore) SetLastSyncedAt(ctx context.Context, tokenID int64, at time.Time) error {
	return s.exec(ctx, `UPDATE tokens SET last_synced_at = $2 WHERE id = $1`, tokenID, at)
}

// SetLastTransactionAt never moves the date backwards.
func (s *TokenStore) SetLastTransactionAt(ctx context.Context, tokenID int64, at time.Time) error {
	return s.exec(ctx, `UPDATE tokens SET last_transaction_at = GREATEST(last_transaction_at, $2) WHERE id = $1`, tokenID, at)
}

func (s *TokenStore) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrNotFound
	}
	return nil
}
