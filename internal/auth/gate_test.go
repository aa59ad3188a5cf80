package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-desk/complaint-portal/internal/domain"
	"github.com/civic-desk/complaint-portal/internal/repository"
	apperrors "github.com/civic-desk/complaint-portal/pkg/util/errorutil"
)

type failingLookup struct{}

func (failingLookup) GetByID(context.Context, string) (*domain.Account, error) {
	return nil, errors.New("connection reset")
}

func newGateWithAccount(t *testing.T) (*Gate, *repository.MemoryStore, *domain.Account, string) {
	t.Helper()
	store := repository.NewMemoryStore()
	account := healthManager()
	require.NoError(t, store.Accounts().Create(context.Background(), account))

	gate := NewGate(NewTokenManager("secret", time.Hour), store.Accounts())
	token, _, err := gate.Tokens().Issue(account)
	require.NoError(t, err)
	return gate, store, account, token
}

func TestGate_AuthenticateHeader(t *testing.T) {
	gate, _, account, token := newGateWithAccount(t)

	principal, err := gate.AuthenticateHeader(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, account.ID, principal.AccountID)
	assert.Equal(t, domain.RoleDepartmentManager, principal.Role)
	assert.Equal(t, domain.DepartmentHealth, principal.Department)
}

func TestGate_DisabledIsReevaluatedOnEveryUse(t *testing.T) {
	ctx := context.Background()
	gate, store, account, token := newGateWithAccount(t)

	_, err := gate.Authenticate(ctx, token)
	require.NoError(t, err)

	require.NoError(t, store.Accounts().SetActive(ctx, account.ID, false))
	_, err = gate.Authenticate(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrAccountDisabled)
	assert.Equal(t, "Access disabled by System Manager", apperrors.ToDomainError(err).Message)
	assert.Equal(t, 403, apperrors.ToDomainError(err).HTTPStatus)

	require.NoError(t, store.Accounts().SetActive(ctx, account.ID, true))
	_, err = gate.Authenticate(ctx, token)
	assert.NoError(t, err)
}

func TestGate_AccountNotFound(t *testing.T) {
	ctx := context.Background()
	gate, store, account, token := newGateWithAccount(t)
	require.NoError(t, store.Accounts().Delete(ctx, account.ID))

	_, err := gate.Authenticate(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func TestGate_StoreFailureIsServerFault(t *testing.T) {
	tokens := NewTokenManager("secret", time.Hour)
	token, _, err := tokens.Issue(healthManager())
	require.NoError(t, err)

	_, err = NewGate(tokens, failingLookup{}).Authenticate(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.ToDomainError(err).HTTPStatus)
}

func TestGate_CredentialFailuresStopBeforeLookup(t *testing.T) {
	gate := NewGate(NewTokenManager("secret", time.Hour), failingLookup{})

	_, err := gate.AuthenticateHeader(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrCredentialMissing)

	_, err = gate.AuthenticateHeader(context.Background(), "Token abc")
	assert.ErrorIs(t, err, apperrors.ErrCredentialMalformed)
}
