package auth

import (
	"errors"
	"fmt"

	"github.com/narvanalabs/resque/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used when none is configured.
const DefaultBcryptCost = 12

var (
	// ErrInvalidCost is returned for a bcrypt cost outside 4..31.
	ErrInvalidCost = errors.New("bcrypt cost out of range")

	// ErrInvalidCredentials is returned when an email and password do not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, which must be within
// bcrypt.MinCost and bcrypt.MaxCost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCost, cost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Hash returns the bcrypt digest of plain.
func (h *BcryptHasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", models.ErrInvalidPassword.Errorf("password must not be empty")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plain matches digest. Malformed digests never match.
func (h *BcryptHasher) Verify(plain, digest string) bool {
	if plain == "" || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

// Verifier checks a plaintext password against a stored digest.
type Verifier interface {
	Verify(plain, digest string) bool
}

// AuthenticateUser checks plain against the user's stored password.
// Inactive users fail with models.ErrInactiveUser; every other mismatch,
// including accounts without a password, fails with ErrInvalidCredentials.
func AuthenticateUser(user models.User, plain string, v Verifier) error {
	ok, err := user.CanAuthenticate()
	if err != nil {
		return err
	}
	if !ok || plain == "" {
		return ErrInvalidCredentials
	}
	if !v.Verify(plain, user.Password.String()) {
		return ErrInvalidCredentials
	}
	return nil
}
