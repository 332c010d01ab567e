package tenant

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// dummyHash is compared against when no account matches, so unknown users
// cost the same bcrypt work as wrong secrets.
var dummyHash = sync.OnceValue(func() string {
	hashed, err := HashPassword("assist-unknown-account")
	if err != nil {
		return ""
	}
	return hashed
})

func VerifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !IsPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func IsPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

// matchesLegacyEncoding reports whether stored is the base64 encoding of
// input, the format rows were written in before bcrypt.
func matchesLegacyEncoding(stored string, input string) bool {
	if stored == "" || input == "" || IsPasswordHash(stored) {
		return false
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(input))
	return subtle.ConstantTimeCompare([]byte(stored), []byte(encoded)) == 1
}
