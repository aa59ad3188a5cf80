package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civic-desk/complaint-portal/internal/domain"
)

// MemoryStore keeps accounts and login history in process memory.
// It backs the service when no Postgres DSN is configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	history  map[string][]domain.LoginHistoryEntry
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*domain.Account),
		history:  make(map[string][]domain.LoginHistoryEntry),
		now:      time.Now,
	}
}

// Accounts exposes the store through the AccountRepository contract.
func (s *MemoryStore) Accounts() AccountRepository { return memoryAccounts{s} }

// LoginHistory exposes the store through the LoginHistoryRepository contract.
func (s *MemoryStore) LoginHistory() LoginHistoryRepository { return memoryHistory{s} }

type memoryAccounts struct{ s *MemoryStore }

func (m memoryAccounts) Create(_ context.Context, account *domain.Account) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(account.Email)
	for _, existing := range s.accounts {
		if strings.ToLower(existing.Email) == email {
			return ErrDuplicate
		}
	}
	now := s.now()
	account.ID = uuid.NewString()
	account.CreatedAt = now
	account.UpdatedAt = now
	stored := *account
	s.accounts[account.ID] = &stored
	return nil
}

func (m memoryAccounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *account
	return &cp, nil
}

func (m memoryAccounts) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(email)
	for _, account := range s.accounts {
		if strings.ToLower(account.Email) == email {
			cp := *account
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memoryAccounts) ListByRole(_ context.Context, role domain.Role) ([]domain.Account, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Account
	for _, account := range s.accounts {
		if account.Role == role {
			result = append(result, *account)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m memoryAccounts) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	list, err := m.ListByRole(ctx, role)
	return len(list), err
}

func (m memoryAccounts) Delete(_ context.Context, id string) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(s.accounts, id)
	delete(s.history, id)
	return nil
}

func (m memoryAccounts) SetActive(_ context.Context, id string, active bool) error {
	return m.s.update(id, func(a *domain.Account) { a.Active = active })
}

func (m memoryAccounts) SetOnline(_ context.Context, id string, online bool) error {
	return m.s.update(id, func(a *domain.Account) { a.IsOnline = online })
}

func (s *MemoryStore) update(id string, fn func(*domain.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	fn(account)
	account.UpdatedAt = s.now()
	return nil
}

type memoryHistory struct{ s *MemoryStore }

func (m memoryHistory) Append(_ context.Context, accountID string, at time.Time) (*domain.LoginHistoryEntry, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, ErrNotFound
	}
	for _, entry := range s.history[accountID] {
		if entry.Open() {
			return nil, ErrDuplicate
		}
	}
	entry := domain.LoginHistoryEntry{ID: uuid.NewString(), AccountID: accountID, LoginAt: at}
	s.history[accountID] = append(s.history[accountID], entry)
	return &entry, nil
}

func (m memoryHistory) LatestOpen(_ context.Context, accountID string) (*domain.LoginHistoryEntry, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[accountID]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Open() {
			cp := entries[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memoryHistory) Close(_ context.Context, entryID string, at time.Time) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for accountID, entries := range s.history {
		for i := range entries {
			if entries[i].ID == entryID && entries[i].Open() {
				closedAt := at
				s.history[accountID][i].LogoutAt = &closedAt
				return nil
			}
		}
	}
	return ErrNotFound
}

func (m memoryHistory) ListByAccount(_ context.Context, accountID string) ([]domain.LoginHistoryEntry, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[accountID]
	out := make([]domain.LoginHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}
