// Package store provides the persistence ports used by command and event
// handlers: typed repositories and a unit of work that scopes them to a
// transaction and buffers the events recorded inside it.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/models"
)

// Common store errors.
var (
	// ErrNotFound is returned when a requested aggregate does not exist.
	ErrNotFound = errors.New("aggregate not found")

	// ErrAlreadyExists is returned when saving an aggregate whose id is taken.
	ErrAlreadyExists = errors.New("aggregate already exists")

	// ErrConflict is returned on commit when a row locked by the scope was
	// changed by another scope in the meantime.
	ErrConflict = errors.New("concurrent modification")

	// ErrUnitOfWorkActive is returned when a unit of work is entered while
	// already inside its own scope.
	ErrUnitOfWorkActive = errors.New("unit of work is already active")
)

// Repository stores aggregates of type T by id.
type Repository[T any] interface {
	// Save inserts a new aggregate. Returns ErrAlreadyExists if the id is taken.
	Save(ctx context.Context, v T) error
	// Get retrieves an aggregate by id. Returns ErrNotFound if absent.
	Get(ctx context.Context, id uuid.UUID) (T, error)
	// FindAll returns every aggregate ordered by id.
	FindAll(ctx context.Context) ([]T, error)
	// Update replaces a stored aggregate. Returns ErrNotFound if absent.
	Update(ctx context.Context, v T) error
	// Delete removes an aggregate. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserRepository stores users.
type UserRepository interface {
	Repository[models.User]
	// GetByEmail retrieves a user by email. Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email models.Email) (models.User, error)
}

// ProjectRepository stores projects.
type ProjectRepository interface {
	Repository[models.Project]
	// Lock serializes changes to the project's requirement graph until the
	// scope ends. Returns ErrNotFound if absent.
	Lock(ctx context.Context, id uuid.UUID) error
}

// RequirementRepository stores requirements.
type RequirementRepository interface {
	Repository[models.Requirement]
	// ListByProject returns the requirements of a project ordered by id.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Requirement, error)
	// FindByTag returns the requirements of a project carrying tag.
	FindByTag(ctx context.Context, projectID uuid.UUID, tag string) ([]models.Requirement, error)
}

// Tx is the view of the store inside one unit-of-work scope.
type Tx interface {
	Users() UserRepository
	Projects() ProjectRepository
	Requirements() RequirementRepository
	// Publish records events to be released when the scope commits.
	Publish(events ...message.Event)
}

// UnitOfWork is a transaction boundary plus an event buffer.
// A UnitOfWork belongs to one logical operation and is not safe for concurrent use.
type UnitOfWork interface {
	// Do runs fn inside a new scope. The scope commits when fn returns nil and
	// rolls back otherwise. Entering Do while a scope is open returns
	// ErrUnitOfWorkActive.
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// DrainEvents returns the events of committed scopes in order and clears them.
	DrainEvents() []message.Event
}

// Provider hands out a fresh UnitOfWork per operation.
type Provider interface {
	NewUnitOfWork() UnitOfWork
}
