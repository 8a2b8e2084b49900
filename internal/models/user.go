package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthProvider identifies how a user signs in.
type AuthProvider string

const (
	AuthProviderEmail  AuthProvider = "email"
	AuthProviderGoogle AuthProvider = "google"
)

// ParseAuthProvider converts a string to a known AuthProvider.
func ParseAuthProvider(s string) (AuthProvider, error) {
	switch p := AuthProvider(s); p {
	case AuthProviderEmail, AuthProviderGoogle:
		return p, nil
	}
	return "", ErrInvalidAuthProvider.Errorf("unknown auth provider %q", s)
}

// UserStatus is the account state of a user.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// MinPasswordLength is the shortest plaintext password accepted at registration.
const MinPasswordLength = 10

// HashedPassword is a password digest produced by a password hasher.
type HashedPassword struct {
	value string
}

// NewHashedPassword wraps a non-empty digest.
func NewHashedPassword(digest string) (HashedPassword, error) {
	if digest == "" {
		return HashedPassword{}, ErrInvalidPassword.Errorf("password digest must not be empty")
	}
	return HashedPassword{value: digest}, nil
}

func (p HashedPassword) String() string { return p.value }

// MarshalText implements encoding.TextMarshaler.
func (p HashedPassword) MarshalText() ([]byte, error) { return []byte(p.value), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *HashedPassword) UnmarshalText(b []byte) error {
	v, err := NewHashedPassword(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ValidatePlainPassword checks a plaintext password before it is hashed.
func ValidatePlainPassword(plain string) error {
	if len([]rune(plain)) < MinPasswordLength {
		return ErrInvalidPassword.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// User is a registered account.
type User struct {
	ID        uuid.UUID       `json:"id"`
	Email     Email           `json:"email"`
	Provider  AuthProvider    `json:"provider"`
	Status    UserStatus      `json:"status"`
	Password  *HashedPassword `json:"password,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewUser creates an active user. Email users must carry a password digest.
func NewUser(id uuid.UUID, email Email, provider AuthProvider, password *HashedPassword) (User, error) {
	if email.IsZero() {
		return User{}, ErrInvalidEmail
	}
	if _, err := ParseAuthProvider(string(provider)); err != nil {
		return User{}, err
	}
	if provider == AuthProviderEmail && password == nil {
		return User{}, ErrInvalidPassword.Errorf("email users require a password")
	}
	return User{
		ID:        id,
		Email:     email,
		Provider:  provider,
		Status:    UserStatusActive,
		Password:  password,
		CreatedAt: now(),
	}, nil
}

// IsActive reports whether the account is active.
func (u User) IsActive() bool {
	return u.Status == UserStatusActive
}

// CanAuthenticate reports whether the user may sign in with a password.
// Inactive users are rejected with ErrInactiveUser.
func (u User) CanAuthenticate() (bool, error) {
	if !u.IsActive() {
		return false, ErrInactiveUser
	}
	return u.Provider == AuthProviderEmail && u.Password != nil, nil
}

// UpdateStatus returns the user with a new status. Inactive users cannot change status.
func (u User) UpdateStatus(status UserStatus) (User, error) {
	if !u.IsActive() {
		return u, ErrInactiveUser
	}
	switch status {
	case UserStatusActive, UserStatusInactive:
	default:
		return u, ErrInvalidStatus.Errorf("unknown user status %q", status)
	}
	u.Status = status
	return u, nil
}
