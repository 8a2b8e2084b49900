package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	email := mustEmail(t, "carol@x.com")

	_, err := NewUser(uuid.New(), email, AuthProviderEmail, nil)
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = NewUser(uuid.New(), email, AuthProvider("github"), nil)
	assert.ErrorIs(t, err, ErrInvalidAuthProvider)

	google, err := NewUser(uuid.New(), email, AuthProviderGoogle, nil)
	require.NoError(t, err)
	ok, err := google.CanAuthenticate()
	require.NoError(t, err)
	assert.False(t, ok, "google users do not sign in with a password")
}

func TestInactiveUserIsFrozen(t *testing.T) {
	u := newTestUser(t, "dave@x.com")

	ok, err := u.CanAuthenticate()
	require.NoError(t, err)
	assert.True(t, ok)

	inactive, err := u.UpdateStatus(UserStatusInactive)
	require.NoError(t, err)
	assert.True(t, u.IsActive())

	_, err = inactive.CanAuthenticate()
	assert.ErrorIs(t, err, ErrInactiveUser)

	_, err = inactive.UpdateStatus(UserStatusActive)
	assert.ErrorIs(t, err, ErrInactiveUser)
}

func TestValidatePlainPassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePlainPassword("short"), ErrInvalidPassword)
	assert.NoError(t, ValidatePlainPassword("long-enough-password"))
}
