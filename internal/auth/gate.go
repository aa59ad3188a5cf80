package auth

import (
	"context"
	"errors"

	"github.com/civic-desk/complaint-portal/internal/domain"
	"github.com/civic-desk/complaint-portal/internal/repository"
	apperrors "github.com/civic-desk/complaint-portal/pkg/util/errorutil"
)

// Principal represents the authenticated caller.
type Principal struct {
	AccountID  string
	Name       string
	Email      string
	Role       domain.Role
	Department string
}

// AccountLookup is the slice of the account store the gate reads.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
}

// Gate turns a session credential into an authenticated principal.
// Every REST request and every realtime handshake is admitted here; the enabled
// flag is read from the store on each call, never cached.
type Gate struct {
	tokens   *TokenManager
	accounts AccountLookup
}

// NewGate constructs the gate.
func NewGate(tokens *TokenManager, accounts AccountLookup) *Gate {
	return &Gate{tokens: tokens, accounts: accounts}
}

// Tokens exposes the credential issuer for the login flow.
func (g *Gate) Tokens() *TokenManager {
	return g.tokens
}

// Verify checks the credential alone.
func (g *Gate) Verify(raw string) (*SessionClaims, error) {
	return g.tokens.Verify(raw)
}

// Resolve loads the account named by the claims and enforces its enabled flag.
func (g *Gate) Resolve(ctx context.Context, claims *SessionClaims) (*Principal, error) {
	account, err := g.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.NewInternalError(err)
	}
	if !account.Active {
		return nil, apperrors.ErrAccountDisabled
	}
	return PrincipalFor(account), nil
}

// Authenticate verifies the raw credential and resolves its account.
func (g *Gate) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	claims, err := g.Verify(raw)
	if err != nil {
		return nil, err
	}
	return g.Resolve(ctx, claims)
}

// AuthenticateHeader is Authenticate for an Authorization header value.
func (g *Gate) AuthenticateHeader(ctx context.Context, header string) (*Principal, error) {
	raw, err := BearerToken(header)
	if err != nil {
		return nil, err
	}
	return g.Authenticate(ctx, raw)
}

// PrincipalFor projects an account onto a principal.
func PrincipalFor(account *domain.Account) *Principal {
	return &Principal{
		AccountID:  account.ID,
		Name:       account.Name,
		Email:      account.Email,
		Role:       account.Role,
		Department: account.DepartmentName(),
	}
}
