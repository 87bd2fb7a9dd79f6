package utils

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/puce-ride/appride/internal/apperrors"
)

// HashPassword bcrypt-hashes plain.  cost is clamped to bcrypt's accepted
// range so a bad BCRYPT_COST cannot break registration.  Passwords longer
// than 72 bytes are a validation error since bcrypt ignores the excess.
func HashPassword(plain string, cost int) (string, error) {
	cost = min(max(cost, bcrypt.MinCost), bcrypt.MaxCost)
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: password longer than 72 bytes", apperrors.ErrValidation)
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored hash.  A
// malformed hash never matches.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
