package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/narvanalabs/resque/internal/models"
	"github.com/narvanalabs/resque/internal/store"
)

// tableDef describes how an aggregate maps onto its table: the JSONB
// document plus the columns queries filter on.
type tableDef[T any] struct {
	name    string
	columns []string
	values  func(T) []any
	id      func(T) uuid.UUID
}

var usersTable = tableDef[models.User]{
	name:    "users",
	columns: []string{"email", "status", "created_at"},
	values: func(u models.User) []any {
		return []any{u.Email.String(), string(u.Status), u.CreatedAt}
	},
	id: func(u models.User) uuid.UUID { return u.ID },
}

var projectsTable = tableDef[models.Project]{
	name:    "projects",
	columns: []string{"owner_id", "status", "created_at"},
	values: func(p models.Project) []any {
		return []any{p.OwnerID, string(p.Status), p.CreatedAt}
	},
	id: func(p models.Project) uuid.UUID { return p.ID },
}

var requirementsTable = tableDef[models.Requirement]{
	name:    "requirements",
	columns: []string{"project_id", "status", "tags", "created_at"},
	values: func(r models.Requirement) []any {
		return []any{r.ProjectID, string(r.Status), pq.Array(r.Tags), r.CreatedAt}
	},
	id: func(r models.Requirement) uuid.UUID { return r.ID },
}

// repo implements store.Repository over one table.
type repo[T any] struct {
	q     queryable
	table tableDef[T]
}

func (r *repo[T]) args(v T) ([]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s row: %w", r.table.name, err)
	}
	args := append([]any{r.table.id(v)}, r.table.values(v)...)
	return append(args, data), nil
}

// Save inserts a new aggregate.
func (r *repo[T]) Save(ctx context.Context, v T) error {
	args, err := r.args(v)
	if err != nil {
		return err
	}
	cols := slices.Concat([]string{"id"}, r.table.columns, []string{"data"})
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.table.name, strings.Join(cols, ", "), strings.Join(marks, ", "))

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return translate(err)
	}
	return nil
}

// Get retrieves an aggregate by id.
func (r *repo[T]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE id = $1", r.table.name)
	return r.one(ctx, query, id)
}

// FindAll returns every aggregate ordered by id.
func (r *repo[T]) FindAll(ctx context.Context) ([]T, error) {
	query := fmt.Sprintf("SELECT data FROM %s ORDER BY id", r.table.name)
	return r.many(ctx, query)
}

// Update replaces a stored aggregate.
func (r *repo[T]) Update(ctx context.Context, v T) error {
	args, err := r.args(v)
	if err != nil {
		return err
	}
	sets := make([]string, 0, len(r.table.columns)+1)
	for i, c := range slices.Concat(r.table.columns, []string{"data"}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+2))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", r.table.name, strings.Join(sets, ", "))

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

// Delete removes an aggregate.
func (r *repo[T]) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.table.name)
	res, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

func (r *repo[T]) one(ctx context.Context, query string, args ...any) (T, error) {
	var v T
	var data []byte
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		return v, translate(err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("unmarshaling %s row: %w", r.table.name, err)
	}
	return v, nil
}

func (r *repo[T]) many(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("unmarshaling %s row: %w", r.table.name, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func affected(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type userRepo struct {
	repo[models.User]
}

// GetByEmail retrieves a user by email.
func (r *userRepo) GetByEmail(ctx context.Context, email models.Email) (models.User, error) {
	return r.one(ctx, "SELECT data FROM users WHERE email = $1", email.String())
}

type projectRepo struct {
	repo[models.Project]
}

// Lock takes the project's row lock. Concurrent lockers block until this
// transaction ends.
func (r *projectRepo) Lock(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := r.q.QueryRowContext(ctx, "SELECT id FROM projects WHERE id = $1 FOR UPDATE", id).Scan(&locked)
	return translate(err)
}

type requirementRepo struct {
	repo[models.Requirement]
}

// ListByProject returns the requirements of a project ordered by id.
func (r *requirementRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Requirement, error) {
	return r.many(ctx, "SELECT data FROM requirements WHERE project_id = $1 ORDER BY id", projectID)
}

// FindByTag returns the requirements of a project carrying tag.
func (r *requirementRepo) FindByTag(ctx context.Context, projectID uuid.UUID, tag string) ([]models.Requirement, error) {
	return r.many(ctx, "SELECT data FROM requirements WHERE project_id = $1 AND $2 = ANY(tags) ORDER BY id", projectID, tag)
}
