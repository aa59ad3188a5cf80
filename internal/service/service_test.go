package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civic-desk/complaint-portal/internal/auth"
	"github.com/civic-desk/complaint-portal/internal/config"
	"github.com/civic-desk/complaint-portal/internal/domain"
	"github.com/civic-desk/complaint-portal/internal/events"
	"github.com/civic-desk/complaint-portal/internal/locks"
	"github.com/civic-desk/complaint-portal/internal/repository"
)

type fixture struct {
	store    *repository.MemoryStore
	ledger   *LoginLedger
	gate     *auth.Gate
	accounts *AccountService
	recorder *eventRecorder
	cfg      config.Config
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Config{
		Auth:  config.AuthConfig{JWTSecret: "test-secret", BcryptCost: 4},
		Admin: config.AdminConfig{Name: "System Manager", Email: "admin@kmc.gov.in", Password: "admin123"},
	}
	store := repository.NewMemoryStore()
	ledger := NewLoginLedger(store.LoginHistory(), store.Accounts())
	gate := auth.NewGate(auth.NewTokenManager(cfg.Auth.JWTSecret, time.Hour), store.Accounts())

	dispatcher := events.NewInMemoryDispatcher(nil)
	recorder := &eventRecorder{}
	for _, typ := range []events.EventType{
		events.EventAccessChanged,
		events.EventPresenceChanged,
		events.EventSessionTerminated,
	} {
		dispatcher.Subscribe(typ, recorder.handle)
	}

	svc := NewAccountService(cfg, AccountDependencies{
		AccountRepo: store.Accounts(),
		Ledger:      ledger,
		Gate:        gate,
		Locks:       locks.NewKeyedMutex(),
		Dispatcher:  dispatcher,
	}, nil)

	return &fixture{store: store, ledger: ledger, gate: gate, accounts: svc, recorder: recorder, cfg: cfg}
}

func (f *fixture) seed(t *testing.T, email string, role domain.Role, department string, active bool) *domain.Account {
	t.Helper()
	hash, err := auth.HashPassword("secret-pass", 4)
	require.NoError(t, err)
	account := &domain.Account{
		Name:         "Manager",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       active,
	}
	if department != "" {
		account.Department = &department
	}
	require.NoError(t, f.store.Accounts().Create(context.Background(), account))
	return account
}

func (f *fixture) admin(t *testing.T) *auth.Principal {
	t.Helper()
	account := f.seed(t, "root@kmc.gov.in", domain.RoleSystemManager, "", true)
	return auth.PrincipalFor(account)
}

func (f *fixture) openEntries(t *testing.T, accountID string) int {
	t.Helper()
	entries, err := f.store.LoginHistory().ListByAccount(context.Background(), accountID)
	require.NoError(t, err)
	open := 0
	for _, e := range entries {
		if e.Open() {
			open++
		}
	}
	return open
}

func (f *fixture) account(t *testing.T, id string) *domain.Account {
	t.Helper()
	account, err := f.store.Accounts().GetByID(context.Background(), id)
	require.NoError(t, err)
	return account
}
