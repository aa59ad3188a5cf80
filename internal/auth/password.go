package auth

import (
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/civic-desk/complaint-portal/pkg/util/errorutil"
)

// HashPassword hashes a plaintext password, clamping cost into bcrypt's range.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)); err != nil {
		return apperrors.ErrInvalidCredentials.Wrap(err)
	}
	return nil
}
