package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-desk/complaint-portal/internal/domain"
)

// LoginHistoryRepository stores session windows per account.
// At most one entry per account may be open; the store rejects a second with ErrDuplicate.
type LoginHistoryRepository interface {
	Append(ctx context.Context, accountID string, at time.Time) (*domain.LoginHistoryEntry, error)
	LatestOpen(ctx context.Context, accountID string) (*domain.LoginHistoryEntry, error)
	Close(ctx context.Context, entryID string, at time.Time) error
	ListByAccount(ctx context.Context, accountID string) ([]domain.LoginHistoryEntry, error)
}

type loginHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewLoginHistoryRepository builds repository.
func NewLoginHistoryRepository(pool *pgxpool.Pool) LoginHistoryRepository {
	return &loginHistoryRepository{pool: pool}
}

func (r *loginHistoryRepository) Append(ctx context.Context, accountID string, at time.Time) (*domain.LoginHistoryEntry, error) {
	const query = `
        INSERT INTO login_history (account_id, login_at)
        VALUES ($1, $2)
        RETURNING id`

	entry := &domain.LoginHistoryEntry{AccountID: accountID, LoginAt: at}
	if err := r.pool.QueryRow(ctx, query, accountID, at).Scan(&entry.ID); err != nil {
		return nil, translate(err)
	}
	return entry, nil
}

func (r *loginHistoryRepository) LatestOpen(ctx context.Context, accountID string) (*domain.LoginHistoryEntry, error) {
	const query = `
        SELECT id, account_id, login_at, logout_at
        FROM login_history
        WHERE account_id=$1 AND logout_at IS NULL
        ORDER BY login_at DESC, seq DESC
        LIMIT 1`

	var entry domain.LoginHistoryEntry
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&entry.ID,
		&entry.AccountID,
		&entry.LoginAt,
		&entry.LogoutAt,
	); err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (r *loginHistoryRepository) Close(ctx context.Context, entryID string, at time.Time) error {
	const query = `UPDATE login_history SET logout_at=$1 WHERE id=$2 AND logout_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, at, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *loginHistoryRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.LoginHistoryEntry, error) {
	const query = `
        SELECT id, account_id, login_at, logout_at
        FROM login_history WHERE account_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LoginHistoryEntry
	for rows.Next() {
		var entry domain.LoginHistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.LoginAt,
			&entry.LogoutAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
