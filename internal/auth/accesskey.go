package auth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// HashAccessKey generates the bcrypt hash stored in access_key_hash.
func HashAccessKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(key)), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash access key: %w", err)
	}
	return string(hash), nil
}

// CompareAccessKey checks a presented key against its bcrypt hash.
func CompareAccessKey(hash, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(key)))
}
