package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

const (
	MinPasswordLength = 8
	SpecialCharacters = "!@#?"
	SaltSize          = 16
)

// IsStrong reports whether password is acceptable for a new account:
// at least MinPasswordLength characters with an uppercase letter, a lowercase
// letter, a digit and one of SpecialCharacters.
func IsStrong(password string) bool {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return false
	}

	var upper, lower, digit, special bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		case strings.ContainsRune(SpecialCharacters, c):
			special = true
		}
	}

	return upper && lower && digit && special
}

// Hasher derives password digests with argon2id.
type Hasher struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultHasher is used for stored accounts.
var DefaultHasher = Hasher{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLen: 32}

func (h Hasher) Hash(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, h.Time, h.Memory, h.Threads, h.KeyLen)
}

// Verify recomputes the digest and compares it in constant time.
func (h Hasher) Verify(password string, salt, digest []byte) bool {
	return subtle.ConstantTimeCompare(h.Hash(password, salt), digest) == 1
}

func Salt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
