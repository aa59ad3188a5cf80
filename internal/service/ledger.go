package service

import (
	"context"
	"errors"
	"time"

	"github.com/civic-desk/complaint-portal/internal/domain"
	"github.com/civic-desk/complaint-portal/internal/repository"
)

// LoginLedger appends and closes login-history windows.
//
// One window per account regardless of how many connections are live: OpenSession
// returns the existing open window instead of appending a second one, and
// CloseSession closes the most recent open window. The account's is_online flag
// mirrors whether a window is open and is written alongside it.
//
// Callers hold the account's lock from the shared KeyedMutex.
type LoginLedger struct {
	history  repository.LoginHistoryRepository
	accounts repository.AccountRepository
	now      func() time.Time
}

// NewLoginLedger builds the ledger.
func NewLoginLedger(history repository.LoginHistoryRepository, accounts repository.AccountRepository) *LoginLedger {
	return &LoginLedger{history: history, accounts: accounts, now: time.Now}
}

// OpenSession ensures the account has an open window. opened is true when a new
// entry was appended.
func (l *LoginLedger) OpenSession(ctx context.Context, accountID string) (entry *domain.LoginHistoryEntry, opened bool, err error) {
	entry, err = l.history.LatestOpen(ctx, accountID)
	switch {
	case err == nil:
		return entry, false, l.accounts.SetOnline(ctx, accountID, true)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, err
	}

	entry, err = l.history.Append(ctx, accountID, l.now().UTC())
	if errors.Is(err, repository.ErrDuplicate) {
		// another instance opened it first
		entry, err = l.history.LatestOpen(ctx, accountID)
		if err != nil {
			return nil, false, err
		}
		return entry, false, l.accounts.SetOnline(ctx, accountID, true)
	}
	if err != nil {
		return nil, false, err
	}
	return entry, true, l.accounts.SetOnline(ctx, accountID, true)
}

// CloseSession stamps logoutAt on the most recent open window. It returns nil
// without error when no window is open.
func (l *LoginLedger) CloseSession(ctx context.Context, accountID string) (*domain.LoginHistoryEntry, error) {
	entry, err := l.history.LatestOpen(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, l.setOffline(ctx, accountID)
	}
	if err != nil {
		return nil, err
	}

	closedAt := l.now().UTC()
	if err := l.history.Close(ctx, entry.ID, closedAt); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	entry.LogoutAt = &closedAt
	return entry, l.setOffline(ctx, accountID)
}

func (l *LoginLedger) setOffline(ctx context.Context, accountID string) error {
	err := l.accounts.SetOnline(ctx, accountID, false)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// History returns the account's windows in chronological order.
func (l *LoginLedger) History(ctx context.Context, accountID string) ([]domain.LoginHistoryEntry, error) {
	return l.history.ListByAccount(ctx, accountID)
}
