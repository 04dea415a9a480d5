package auth

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor for bcrypt (12 = ~300ms per hash)
const BcryptCost = 12

// unusablePrefix marks password hashes that can never match any input.
// Accounts created through SSO or invitations carry one until the owner
// sets a password.
const unusablePrefix = "!"

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	if !IsPasswordUsable(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UnusablePassword returns a sentinel hash that rejects every password.
// The random suffix keeps two unusable hashes from comparing equal.
func UnusablePassword() string {
	buf := make([]byte, 10)
	_, _ = rand.Read(buf)
	return unusablePrefix + hex.EncodeToString(buf)
}

// IsPasswordUsable reports whether the stored hash can ever validate a
// password. Empty hashes and sentinel hashes are unusable.
func IsPasswordUsable(hash string) bool {
	return hash != "" && !strings.HasPrefix(hash, unusablePrefix)
}
