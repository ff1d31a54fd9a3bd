package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// IsPasswordHash reports whether stored looks like a bcrypt hash.
func IsPasswordHash(stored string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(stored, prefix) {
			return true
		}
	}
	return false
}

// VerifyPassword checks password against a stored bcrypt hash or a legacy plaintext value.
func VerifyPassword(stored, password string) (legacy bool, ok bool) {
	if stored == "" {
		return false, false
	}
	if IsPasswordHash(stored) {
		return false, bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return true, subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}
