package auth

import (
	"fmt"

	"github.com/neilb14/users-service/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies passwords with bcrypt. Every Hash call draws a
// fresh salt, so equal passwords never produce equal hashes.
type Hasher struct {
	cost int
}

// NewHasher builds a Hasher using the configured bcrypt cost
func NewHasher(cfg *config.Config) *Hasher {
	return &Hasher{cost: cfg.BcryptCost}
}

// Hash returns the bcrypt encoding of password
func (h *Hasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether password matches hashed. Malformed hashes never match.
func (h *Hasher) Verify(password, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}
