// Package memory provides an in-process implementation of the store ports.
// Each unit of work stages its writes and applies them atomically on commit.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/models"
	"github.com/narvanalabs/resque/internal/store"
)

// Store holds users, projects and requirements in memory.
type Store struct {
	mu           sync.RWMutex
	users        rows[models.User]
	projects     rows[models.Project]
	requirements rows[models.Requirement]
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:        newRows[models.User](),
		projects:     newRows[models.Project](),
		requirements: newRows[models.Requirement](),
	}
}

// NewUnitOfWork returns a unit of work over the store.
func (s *Store) NewUnitOfWork() store.UnitOfWork {
	return &unitOfWork{store: s}
}

var _ store.Provider = (*Store)(nil)

type unitOfWork struct {
	store.Scope
	store *Store
}

// Do runs fn against a staged view of the store and applies its writes when
// fn succeeds. Events published by fn are released only on commit.
func (u *unitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := u.Enter(); err != nil {
		return err
	}
	committed := false
	defer func() { u.Exit(committed) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := u.store.begin(&u.Scope)
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := u.store.commit(t); err != nil {
		return err
	}
	committed = true
	return nil
}

type tx struct {
	scope        *store.Scope
	users        *table[models.User]
	projects     *table[models.Project]
	requirements *table[models.Requirement]
}

func (s *Store) begin(scope *store.Scope) *tx {
	users := newTable(&s.mu, s.users, func(u models.User) uuid.UUID { return u.ID })
	users.clashes = func(a, b models.User) bool { return a.Email == b.Email }
	return &tx{
		scope:        scope,
		users:        users,
		projects:     newTable(&s.mu, s.projects, func(p models.Project) uuid.UUID { return p.ID }),
		requirements: newTable(&s.mu, s.requirements, func(r models.Requirement) uuid.UUID { return r.ID }),
	}
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.users.check(); err != nil {
		return err
	}
	if err := t.projects.check(); err != nil {
		return err
	}
	if err := t.requirements.check(); err != nil {
		return err
	}
	t.users.apply()
	t.projects.apply()
	t.requirements.apply()
	return nil
}

func (t *tx) Users() store.UserRepository { return userRepo{repo[models.User]{t.users}} }
func (t *tx) Projects() store.ProjectRepository { return projectRepo{repo[models.Project]{t.projects}} }
func (t *tx) Requirements() store.RequirementRepository { return requirementRepo{repo[models.Requirement]{t.requirements}} }

func (t *tx) Publish(events ...message.Event) {
	t.scope.Record(events...)
}

// repo adapts a table to store.Repository.
type repo[T any] struct {
	t *table[T]
}

func (r repo[T]) Save(ctx context.Context, v T) error {
	return r.t.insert(v)
}

func (r repo[T]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	v, ok := r.t.get(id)
	if !ok {
		return v, store.ErrNotFound
	}
	return v, nil
}

func (r repo[T]) FindAll(ctx context.Context) ([]T, error) {
	return r.t.all(), nil
}

func (r repo[T]) Update(ctx context.Context, v T) error {
	return r.t.update(v)
}

func (r repo[T]) Delete(ctx context.Context, id uuid.UUID) error {
	return r.t.remove(id)
}

type userRepo struct {
	repo[models.User]
}

func (r userRepo) GetByEmail(ctx context.Context, email models.Email) (models.User, error) {
	for _, u := range r.t.all() {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

type projectRepo struct {
	repo[models.Project]
}

// Lock pins the project row. Of two transactions locking the same project
// the second to commit fails with store.ErrConflict.
func (r projectRepo) Lock(ctx context.Context, id uuid.UUID) error {
	return r.t.pin(id)
}

type requirementRepo struct {
	repo[models.Requirement]
}

func (r requirementRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Requirement, error) {
	return r.t.filter(func(req models.Requirement) bool {
		return req.ProjectID == projectID
	}), nil
}

func (r requirementRepo) FindByTag(ctx context.Context, projectID uuid.UUID, tag string) ([]models.Requirement, error) {
	return r.t.filter(func(req models.Requirement) bool {
		return req.ProjectID == projectID && slices.Contains(req.Tags, tag)
	}), nil
}
