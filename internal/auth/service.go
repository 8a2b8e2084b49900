// Package auth provides password hashing, credential checks and access tokens.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token validation errors.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrMissingClaims    = errors.New("missing required claims")
	ErrInvalidSignature = errors.New("invalid token signature")
)

const (
	// TokenType is reported alongside issued access tokens.
	TokenType = "bearer"

	issuer = "resque"
)

// Claims is the identity carried by a validated token.
type Claims struct {
	UserID uuid.UUID
	Email  string
	Exp    time.Time
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Config holds token settings.
type Config struct {
	JWTSecret   []byte
	TokenExpiry time.Duration
}

// Service issues and validates HS256 access tokens.
type Service struct {
	secret []byte
	expiry time.Duration
	parser *jwt.Parser
	logger *slog.Logger
}

// NewService creates a token service.
func NewService(cfg *Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		secret: cfg.JWTSecret,
		expiry: cfg.TokenExpiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		),
		logger: logger,
	}
}

// GenerateToken signs a token whose subject is userID.
func (s *Service) GenerateToken(userID uuid.UUID, email string) (string, error) {
	if userID == uuid.Nil {
		return "", ErrMissingClaims
	}

	now := time.Now()
	claims := tokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		s.logger.Error("failed to sign token", "error", err)
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the signature, issuer and lifetime of raw and returns
// its identity.
func (s *Service) ValidateToken(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	var claims tokenClaims
	_, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return nil, ErrMissingClaims
	default:
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrMissingClaims
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Claims{
		UserID: userID,
		Email:  claims.Email,
		Exp:    claims.ExpiresAt.Time,
	}, nil
}

// ExtractBearerToken returns the token of a "Bearer <token>" header, or "".
func ExtractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
