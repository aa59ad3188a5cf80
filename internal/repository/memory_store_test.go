package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-desk/complaint-portal/internal/domain"
)

func newAccount(t *testing.T, store *MemoryStore, email string) *domain.Account {
	t.Helper()
	dept := domain.DepartmentHealth
	account := &domain.Account{
		Name:       "Asha",
		Email:      email,
		Role:       domain.RoleDepartmentManager,
		Department: &dept,
		Active:     true,
	}
	require.NoError(t, store.Accounts().Create(context.Background(), account))
	return account
}

func TestMemoryAccounts_CreateRejectsDuplicateEmail(t *testing.T) {
	store := NewMemoryStore()
	newAccount(t, store, "asha@kmc.gov.in")

	err := store.Accounts().Create(context.Background(), &domain.Account{Email: "ASHA@kmc.gov.in"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryAccounts_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	account := newAccount(t, store, "asha@kmc.gov.in")

	got, err := store.Accounts().GetByID(ctx, account.ID)
	require.NoError(t, err)
	got.Active = false

	again, err := store.Accounts().GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, again.Active)
}

func TestMemoryAccounts_FlagsAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	accounts := store.Accounts()
	account := newAccount(t, store, "asha@kmc.gov.in")

	require.NoError(t, accounts.SetActive(ctx, account.ID, false))
	require.NoError(t, accounts.SetOnline(ctx, account.ID, true))
	got, err := accounts.GetByEmail(ctx, "asha@kmc.gov.in")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.True(t, got.IsOnline)

	count, err := accounts.CountByRole(ctx, domain.RoleDepartmentManager)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, accounts.Delete(ctx, account.ID))
	assert.ErrorIs(t, accounts.Delete(ctx, account.ID), ErrNotFound)
	assert.ErrorIs(t, accounts.SetActive(ctx, account.ID, true), ErrNotFound)
}

func TestMemoryHistory_SingleOpenEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	history := store.LoginHistory()
	account := newAccount(t, store, "asha@kmc.gov.in")

	first, err := history.Append(ctx, account.ID, time.Now())
	require.NoError(t, err)

	_, err = history.Append(ctx, account.ID, time.Now())
	assert.ErrorIs(t, err, ErrDuplicate)

	open, err := history.LatestOpen(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, open.ID)

	require.NoError(t, history.Close(ctx, first.ID, time.Now()))
	assert.ErrorIs(t, history.Close(ctx, first.ID, time.Now()), ErrNotFound)

	_, err = history.LatestOpen(ctx, account.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = history.Append(ctx, account.ID, time.Now())
	require.NoError(t, err)

	entries, err := history.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Open())
	assert.True(t, entries[1].Open())
}

func TestMemoryHistory_UnknownAccount(t *testing.T) {
	_, err := NewMemoryStore().LoginHistory().Append(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}
