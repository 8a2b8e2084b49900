package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genUserID() gopter.Gen {
	return gen.SliceOfN(16, gen.UInt8()).Map(func(b []uint8) uuid.UUID {
		var id uuid.UUID
		copy(id[:], b)
		id[0] |= 0x01
		return id
	})
}

func genAddress() gopter.Gen {
	return gopter.CombineGens(gen.Identifier(), gen.Identifier()).Map(func(v []interface{}) string {
		return v[0].(string) + "@" + v[1].(string) + ".io"
	})
}

func genSecret() gopter.Gen {
	return gen.SliceOfN(32, gen.UInt8()).Map(func(b []uint8) []byte {
		return append([]byte(nil), b...)
	})
}

func tokenParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	return parameters
}

// **Feature: resque-auth, Property 1: Issued tokens carry the caller's identity**
// For any user id, email and secret, validating a freshly issued token yields
// the same user id and email.
func TestPropertyTokenIdentity(t *testing.T) {
	properties := gopter.NewProperties(tokenParameters())

	properties.Property("validate(generate(id, email)) returns id and email", prop.ForAll(
		func(userID uuid.UUID, email string, secret []byte) bool {
			svc := NewService(&Config{JWTSecret: secret, TokenExpiry: time.Hour}, nil)
			token, err := svc.GenerateToken(userID, email)
			if err != nil {
				return false
			}
			claims, err := svc.ValidateToken(token)
			return err == nil && claims.UserID == userID && claims.Email == email
		},
		genUserID(), genAddress(), genSecret(),
	))

	properties.TestingRun(t)
}

// **Feature: resque-auth, Property 2: Only intact, live tokens from the same secret validate**
// Garbage, expired tokens and tokens signed with another secret all fail
// validation with no claims.
func TestPropertyTokenRejection(t *testing.T) {
	properties := gopter.NewProperties(tokenParameters())

	properties.Property("garbage is rejected", prop.ForAll(
		func(raw string, secret []byte) bool {
			svc := NewService(&Config{JWTSecret: secret, TokenExpiry: time.Hour}, nil)
			claims, err := svc.ValidateToken(raw)
			return err != nil && claims == nil
		},
		gen.OneGenOf(
			gen.Const(""),
			gen.AlphaString(),
			gopter.CombineGens(gen.AlphaString(), gen.AlphaString(), gen.AlphaString()).Map(func(v []interface{}) string {
				return v[0].(string) + "." + v[1].(string) + "." + v[2].(string)
			}),
		),
		genSecret(),
	))

	properties.Property("expired tokens report ErrExpiredToken", prop.ForAll(
		func(userID uuid.UUID, email string, secret []byte) bool {
			svc := NewService(&Config{JWTSecret: secret, TokenExpiry: -time.Hour}, nil)
			token, err := svc.GenerateToken(userID, email)
			if err != nil {
				return false
			}
			claims, err := svc.ValidateToken(token)
			return errors.Is(err, ErrExpiredToken) && claims == nil
		},
		genUserID(), genAddress(), genSecret(),
	))

	properties.Property("another secret is rejected", prop.ForAll(
		func(userID uuid.UUID, a, b []byte) bool {
			if string(a) == string(b) {
				return true
			}
			token, err := NewService(&Config{JWTSecret: a, TokenExpiry: time.Hour}, nil).GenerateToken(userID, "")
			if err != nil {
				return false
			}
			claims, err := NewService(&Config{JWTSecret: b, TokenExpiry: time.Hour}, nil).ValidateToken(token)
			return errors.Is(err, ErrInvalidSignature) && claims == nil
		},
		genUserID(), genSecret(), genSecret(),
	))

	properties.TestingRun(t)
}

func TestValidateTokenRejectsForeignIssuerAndAlgorithm(t *testing.T) {
	secret := []byte(strings.Repeat("k", 32))
	svc := NewService(&Config{JWTSecret: secret, TokenExpiry: time.Hour}, nil)
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   uuid.NewString(),
		ExpiresAt: future,
	}).SignedString(secret)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   uuid.NewString(),
		ExpiresAt: future,
	}).SignedString(secret)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(hs512)
	assert.Error(t, err)
	assert.Nil(t, claims)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  issuer,
		Subject: uuid.NewString(),
	}).SignedString(secret)
	require.NoError(t, err)
	_, err = svc.ValidateToken(noExpiry)
	assert.ErrorIs(t, err, ErrMissingClaims)
}

func TestGenerateTokenRequiresUser(t *testing.T) {
	svc := NewService(&Config{JWTSecret: []byte(strings.Repeat("k", 32)), TokenExpiry: time.Hour}, nil)
	_, err := svc.GenerateToken(uuid.Nil, "a@b.io")
	assert.ErrorIs(t, err, ErrMissingClaims)
}
