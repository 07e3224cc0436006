package auth

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrCodeMismatch is returned by CodeHasher.Verify when the code is wrong.
var ErrCodeMismatch = errors.New("auth: invalid code")

const defaultCost = 10

// CodeHasher hashes one-time magic-link codes with bcrypt so that a database
// leak does not expose codes that are still valid.
type CodeHasher struct {
	cost int
}

func NewCodeHasher() *CodeHasher {
	return &CodeHasher{cost: defaultCost}
}

// NewCodeHasherForTest uses a low cost so tests stay fast.
func NewCodeHasherForTest() *CodeHasher {
	return &CodeHasher{cost: bcrypt.MinCost}
}

// NewCode returns a random code suitable for a magic link.
func NewCode() string {
	return rand.Text()
}

func (h *CodeHasher) Hash(code string) (string, error) {
	if len(code) > 72 {
		return "", errors.New("auth: code must be 72 bytes or fewer")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing code: %w", err)
	}
	return string(hashed), nil
}

func (h *CodeHasher) Verify(hash, code string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrCodeMismatch
		}
		return fmt.Errorf("auth: comparing code hash: %w", err)
	}
	return nil
}
