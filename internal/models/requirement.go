package models

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequirementComment is a note left on a requirement by a project member.
type RequirementComment struct {
	ID        uuid.UUID `json:"id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Requirement is a unit of work inside a project, linked to the requirements
// it depends on. Tags, Comments and Predecessors are cloned by every mutator.
type Requirement struct {
	ID           uuid.UUID                        `json:"id"`
	ProjectID    uuid.UUID                        `json:"project_id"`
	Title        RequirementTitle                 `json:"title"`
	Description  RequirementDescription           `json:"description"`
	AssigneeID   *uuid.UUID                       `json:"assignee_id,omitempty"`
	CreatedAt    time.Time                        `json:"created_at"`
	UpdatedAt    time.Time                        `json:"updated_at"`
	Priority     RequirementPriority              `json:"priority"`
	Status       RequirementStatus                `json:"status"`
	Tags         []string                         `json:"tags"`
	Comments     map[uuid.UUID]RequirementComment `json:"comments"`
	Predecessors []uuid.UUID                      `json:"predecessors"`
}

// NewRequirement creates a requirement in the todo state.
func NewRequirement(id, projectID uuid.UUID, title RequirementTitle, description RequirementDescription, priority RequirementPriority) Requirement {
	created := now()
	return Requirement{
		ID:           id,
		ProjectID:    projectID,
		Title:        title,
		Description:  description,
		CreatedAt:    created,
		UpdatedAt:    created,
		Priority:     priority,
		Status:       RequirementStatusTodo,
		Tags:         []string{},
		Comments:     map[uuid.UUID]RequirementComment{},
		Predecessors: []uuid.UUID{},
	}
}

// HasPredecessor reports whether id is a direct predecessor.
func (r Requirement) HasPredecessor(id uuid.UUID) bool {
	return slices.Contains(r.Predecessors, id)
}

// LinkPredecessor records that r depends on other. graph holds the edges of
// the other requirements in the project; the edges of r and other are taken
// from the values passed in. Linking twice is a no-op.
func (r Requirement) LinkPredecessor(other Requirement, graph DependencyGraph) (Requirement, error) {
	if r.HasPredecessor(other.ID) {
		return r, nil
	}
	if other.ID == r.ID {
		return r, ErrDependencyCycle.Errorf("requirement %s cannot depend on itself", r.ID)
	}
	if other.ProjectID != r.ProjectID {
		return r, ErrCrossProjectDependency
	}

	preds := func(id uuid.UUID) []uuid.UUID {
		switch id {
		case r.ID:
			return r.Predecessors
		case other.ID:
			return other.Predecessors
		}
		return graph[id]
	}
	if cycle := findCycle(r.ID, other.ID, preds); cycle != nil {
		return r, ErrDependencyCycle.Errorf("circular dependency detected: %s", formatPath(cycle))
	}

	r.Predecessors = append(slices.Clone(r.Predecessors), other.ID)
	return r.touch(), nil
}

// UnlinkPredecessor removes the dependency on otherID.
func (r Requirement) UnlinkPredecessor(otherID uuid.UUID) (Requirement, error) {
	idx := slices.Index(r.Predecessors, otherID)
	if idx < 0 {
		return r, ErrDependencyNotFound.Errorf("requirement %s does not depend on %s", r.ID, otherID)
	}
	r.Predecessors = slices.Delete(slices.Clone(r.Predecessors), idx, idx+1)
	return r.touch(), nil
}

// ChangeStatus moves r along the requirement status table.
func (r Requirement) ChangeStatus(next RequirementStatus) (Requirement, error) {
	st, err := r.Status.ChangeStatus(next)
	if err != nil {
		return r, err
	}
	r.Status = st
	return r.touch(), nil
}

// SetPriority replaces the priority.
func (r Requirement) SetPriority(level int) (Requirement, error) {
	p, err := NewRequirementPriority(level)
	if err != nil {
		return r, err
	}
	r.Priority = p
	return r.touch(), nil
}

// NormalizeTag trims and lowercases a tag.
func NormalizeTag(tag string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(tag))
	if t == "" {
		return "", ErrInvalidTag
	}
	return t, nil
}

// AddTag adds a normalized tag.
func (r Requirement) AddTag(tag string) (Requirement, error) {
	t, err := NormalizeTag(tag)
	if err != nil {
		return r, err
	}
	if slices.Contains(r.Tags, t) {
		return r, ErrDuplicateTag.Errorf("tag %q already present", t)
	}
	r.Tags = append(slices.Clone(r.Tags), t)
	return r.touch(), nil
}

// RemoveTag removes a tag, matched after normalization.
func (r Requirement) RemoveTag(tag string) (Requirement, error) {
	t, err := NormalizeTag(tag)
	if err != nil {
		return r, err
	}
	idx := slices.Index(r.Tags, t)
	if idx < 0 {
		return r, ErrTagNotFound.Errorf("tag %q not found", t)
	}
	r.Tags = slices.Delete(slices.Clone(r.Tags), idx, idx+1)
	return r.touch(), nil
}

// AddComment attaches a comment written by author.
func (r Requirement) AddComment(id uuid.UUID, author ProjectMember, content string) (Requirement, RequirementComment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return r, RequirementComment{}, ErrInvalidComment
	}
	created := now()
	c := RequirementComment{
		ID:        id,
		AuthorID:  author.UserID,
		Content:   content,
		CreatedAt: created,
		UpdatedAt: created,
	}
	comments := r.cloneComments()
	comments[id] = c
	r.Comments = comments
	return r.touch(), c, nil
}

// EditComment replaces the content of a comment. Only its author may edit it.
func (r Requirement) EditComment(id uuid.UUID, author ProjectMember, content string) (Requirement, RequirementComment, error) {
	c, ok := r.Comments[id]
	if !ok {
		return r, RequirementComment{}, ErrCommentNotFound.Errorf("comment %s not found", id)
	}
	if c.AuthorID != author.UserID {
		return r, RequirementComment{}, ErrCommentEditPermission
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return r, RequirementComment{}, ErrInvalidComment
	}
	c.Content = content
	c.UpdatedAt = now()
	comments := r.cloneComments()
	comments[id] = c
	r.Comments = comments
	return r.touch(), c, nil
}

// ChangeAssignee assigns r to assignee, or unassigns it when assignee is nil.
func (r Requirement) ChangeAssignee(assignee *uuid.UUID) Requirement {
	if sameAssignee(r.AssigneeID, assignee) {
		return r
	}
	if assignee != nil {
		id := *assignee
		assignee = &id
	}
	r.AssigneeID = assignee
	return r.touch()
}

func sameAssignee(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r Requirement) touch() Requirement {
	r.UpdatedAt = now()
	return r
}

func (r Requirement) cloneComments() map[uuid.UUID]RequirementComment {
	out := make(map[uuid.UUID]RequirementComment, len(r.Comments)+1)
	maps.Copy(out, r.Comments)
	return out
}
