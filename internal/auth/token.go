package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/civic-desk/complaint-portal/internal/domain"
	apperrors "github.com/civic-desk/complaint-portal/pkg/util/errorutil"
)

// TokenManager issues session credentials and verifies them.
// Verification is the only credential check in the service: both the REST
// middleware and the realtime handshake go through Verify.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// SessionClaims describes the JWT payload.
type SessionClaims struct {
	AccountID  string      `json:"id"`
	Role       domain.Role `json:"role"`
	Department *string     `json:"department"`
	jwt.RegisteredClaims
}

// IssuedTime returns the issue time, zero when absent.
func (c *SessionClaims) IssuedTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiryTime returns the expiry time, zero when absent.
func (c *SessionClaims) ExpiryTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issue builds and signs a credential for the account.
func (tm *TokenManager) Issue(account *domain.Account) (string, time.Time, error) {
	now := tm.now()
	expiresAt := now.Add(tm.ttl)
	claims := &SessionClaims{
		AccountID:  account.ID,
		Role:       account.Role,
		Department: account.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Verify validates integrity and expiry and returns the claims.
// Failures are classified as CredentialMissing, CredentialMalformed,
// CredentialExpired or CredentialInvalid.
func (tm *TokenManager) Verify(raw string) (*SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperrors.ErrCredentialMissing
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	claims := &SessionClaims{}
	parsed, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid || claims.AccountID == "" {
		return nil, apperrors.ErrCredentialInvalid
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.ErrCredentialMalformed.Wrap(err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.ErrCredentialExpired.Wrap(err)
	default:
		return apperrors.ErrCredentialInvalid.Wrap(err)
	}
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperrors.ErrCredentialMissing
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.ErrCredentialMalformed
	}
	return strings.TrimSpace(parts[1]), nil
}
