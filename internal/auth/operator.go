package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Operator is the single account allowed to change the catalog through the
// API. Only a bcrypt hash of its password is held.
type Operator struct {
	Email string
	Hash  []byte
}

func NewOperator(email, passwordHash string) Operator {
	return Operator{Email: normalizeEmail(email), Hash: []byte(passwordHash)}
}

func (o Operator) Verify(email, password string) error {
	email = normalizeEmail(email)

	// bcrypt runs on a mismatched email too so both failures take the same time
	hashErr := bcrypt.CompareHashAndPassword(o.Hash, []byte(password))
	if subtle.ConstantTimeCompare([]byte(email), []byte(o.Email)) != 1 || hashErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns the bcrypt hash stored in OPERATOR_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
