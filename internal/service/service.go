// Package service implements the command and event handlers for users,
// projects and requirements, and registers them on a bus.Registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/models"
	"github.com/narvanalabs/resque/internal/store"
)

// ErrEmailTaken is returned when registering an email that already has an account.
var ErrEmailTaken = errors.New("email is already registered")

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// IDGenerator produces identifiers that never collide.
type IDGenerator interface {
	Generate() uuid.UUID
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	GenerateToken(userID uuid.UUID, email string) (string, error)
}

// Notifier delivers messages to people outside the system.
type Notifier interface {
	InvitationIssued(ctx context.Context, projectID uuid.UUID, email, role, code string) error
	Welcome(ctx context.Context, userID uuid.UUID, email string) error
	RequirementUnblocked(ctx context.Context, req models.Requirement) error
}

// Dependencies are the ports handlers need.
type Dependencies struct {
	Hasher   PasswordHasher
	IDs      IDGenerator
	Tokens   TokenIssuer
	Notifier Notifier
	Logger   *slog.Logger
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = NewLogNotifier(d.Logger)
	}
	return d
}

func loadProject(ctx context.Context, tx store.Tx, id uuid.UUID) (models.Project, error) {
	p, err := tx.Projects().Get(ctx, id)
	if err != nil {
		return p, fmt.Errorf("project %s: %w", id, err)
	}
	return p, nil
}

func loadRequirement(ctx context.Context, tx store.Tx, id uuid.UUID) (models.Requirement, error) {
	r, err := tx.Requirements().Get(ctx, id)
	if err != nil {
		return r, fmt.Errorf("requirement %s: %w", id, err)
	}
	return r, nil
}

func loadUser(ctx context.Context, tx store.Tx, id uuid.UUID) (models.User, error) {
	u, err := tx.Users().Get(ctx, id)
	if err != nil {
		return u, fmt.Errorf("user %s: %w", id, err)
	}
	return u, nil
}
