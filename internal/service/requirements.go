package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/models"
	"github.com/narvanalabs/resque/internal/store"
)

// Requirements handles requirement commands.
type Requirements struct {
	deps Dependencies
}

// NewRequirements creates the requirement handlers.
func NewRequirements(deps Dependencies) *Requirements {
	return &Requirements{deps: deps.withDefaults()}
}

// Create adds a requirement to a project the actor can modify.
func (h *Requirements) Create(ctx context.Context, tx store.Tx, cmd CreateRequirement) (models.Requirement, error) {
	title, err := models.NewRequirementTitle(cmd.Title)
	if err != nil {
		return models.Requirement{}, err
	}
	desc, err := models.NewRequirementDescription(cmd.Description)
	if err != nil {
		return models.Requirement{}, err
	}
	prio, err := models.NewRequirementPriority(cmd.Priority)
	if err != nil {
		return models.Requirement{}, err
	}
	project, err := loadProject(ctx, tx, cmd.ProjectID)
	if err != nil {
		return models.Requirement{}, err
	}
	if !project.CanModify(cmd.ActorID) {
		return models.Requirement{}, models.ErrPermissionDenied
	}

	req := models.NewRequirement(h.deps.IDs.Generate(), project.ID, title, desc, prio)
	if err := tx.Requirements().Save(ctx, req); err != nil {
		return models.Requirement{}, fmt.Errorf("saving requirement: %w", err)
	}
	tx.Publish(RequirementCreated{
		EventMeta:     message.NewEventMeta(),
		RequirementID: req.ID,
		ProjectID:     req.ProjectID,
		Title:         req.Title.String(),
		Priority:      req.Priority.Value(),
	})
	return req, nil
}

// ChangeStatus moves a requirement along the status table.
func (h *Requirements) ChangeStatus(ctx context.Context, tx store.Tx, cmd ChangeRequirementStatus) (models.Requirement, error) {
	next, err := models.ParseRequirementStatus(cmd.Status)
	if err != nil {
		return models.Requirement{}, err
	}
	req, _, err := editable(ctx, tx, cmd.RequirementID, cmd.ActorID)
	if err != nil {
		return models.Requirement{}, err
	}

	from := req.Status
	req, err = req.ChangeStatus(next)
	if err != nil {
		return models.Requirement{}, err
	}
	if err := save(ctx, tx, req); err != nil {
		return models.Requirement{}, err
	}
	tx.Publish(RequirementStatusChanged{
		EventMeta:     message.NewEventMeta(),
		RequirementID: req.ID,
		ProjectID:     req.ProjectID,
		From:          string(from),
		To:            string(req.Status),
	})
	return req, nil
}

// SetPriority changes the priority level.
func (h *Requirements) SetPriority(ctx context.Context, tx store.Tx, cmd SetRequirementPriority) (models.Requirement, error) {
	req, _, err := editable(ctx, tx, cmd.RequirementID, cmd.ActorID)
	if err != nil {
		return models.Requirement{}, err
	}
	req, err = req.SetPriority(cmd.Priority)
	if err != nil {
		return models.Requirement{}, err
	}
	if err := save(ctx, tx, req); err != nil {
		return models.Requirement{}, err
	}
	tx.Publish(RequirementPriorityChanged{
		EventMeta:     message.NewEventMeta(),
		RequirementID: req.ID,
		ProjectID:     req.ProjectID,
		Priority:      req.Priority.Value(),
	})
	return req, nil
}

// Tag adds a tag.
func (h *Requirements) Tag(ctx context.Context, tx store.Tx, cmd TagRequirement) (models.Requirement, error) {
	req, _, err := editable(ctx, tx, cmd.RequirementID, cmd.ActorID)
	if err != nil {
		return models.Requirement{}, err
	}
	req, err = req.AddTag(cmd.Tag)
	if err != nil {
		return models.Requirement{}, err
	}
	if err := save(ctx, tx, req); err != nil {
		return models.Requirement{}, err
	}
	tag, _ := models.NormalizeTag(cmd.Tag)
	tx.Publish(RequirementTagged{EventMeta: message.NewEventMeta(), RequirementID: req.ID, ProjectID: req.ProjectID, Tag: tag})
	return req, nil
}

// Untag removes a tag.
func (h *Requirements) Untag(ctx context.Context, tx store.Tx, cmd UntagRequirement) (models.Requirement, error) {
	req, _, err := editable(ctx, tx, cmd.RequirementID, cmd.ActorID)
	if err != nil {
		return models.Requirement{}, err
	}
	req, err = req.RemoveTag(cmd.Tag)
	if err != nil {
		return models.Requirement{}, err
	}
	if err := save(ctx, tx, req); err != nil {
		return models.Requirement{}, err
	}
	tag, _ := models.NormalizeTag(cmd.Tag)
	tx.Publish(RequirementUntagged{EventMeta: message.NewEventMeta(), RequirementID: req.ID, ProjectID: req.ProjectID, Tag: tag})
	return req, nil
}

// Link makes a requirement depend on another one in the same project.
// Links that would close a cycle are rejected and nothing is stored.
func (h *Requirements) Link(ctx context.Context, tx store.Tx, cmd LinkRequirement) (models.Requirement, error) {
	req, _, err := editable(ctx, tx, cmd.RequirementID, cmd.ActorID)
	if err != nil {
		return models.Requirement{}, err
	}
	// Graph changes are serialized per project; reread under the lock.
	if err := tx.Projects().Lock(ctx, req.ProjectID); err != nil {
		return models.Requirement{}, fmt.Errorf("locking project %s: %w", req.ProjectID, err)
	}
	if req, err = loadRequirement(ctx, tx, req.ID); err != nil {
		return models.Requirement{}, err
	}
	pred, err := loadRequirement(ctx, tx, cmd.PredecessorID)
	if err != nil {
		return models.Requirement{}, err
	}
	siblings, err := tx.Requirements().ListByProject(ctx, req.ProjectID)
	if err != nil {
		return models.Requirement{}, fmt.Errorf("listing requirements: %w", err)
	}

	linked, err := req.LinkPredecessor(pred, models.BuildDependencyGraph(siblings))
	if err != nil {
		return models.Requirement{}, err
	}
	if linked.HasPredecessor(pred.ID) && !req.HasPredecessor(pred.ID) {
		if err := save(ctx, tx, linked); err != nil {
			return models.Requirement{}, err
		}
		tx.Publish(RequirementLinked{
			EventMeta:     message.NewEventMeta(),
			RequirementID: linked.ID,
			ProjectID:     linked.ProjectID,
			PredecessorID: pred.ID,
		})
	}
	return linked, nil
}

// Unlink removes a dependency.
func (h *Requirements) Unlink(ctx context.Context, tx store.Tx, cmd UnlinkRequirement) (models.Requirement, error) {
	req, _, err := editable(ctx, tx, cmd.RequirementID, cmd.ActorID)
	if err != nil {
		return models.Requirement{}, err
	}
	req, err = req.UnlinkPredecessor(cmd.PredecessorID)
	if err != nil {
		return models.Requirement{}, err
	}
	if err := save(ctx, tx, req); err != nil {
		return models.Requirement{}, err
	}
	tx.Publish(RequirementUnlinked{
		EventMeta:     message.NewEventMeta(),
		RequirementID: req.ID,
		ProjectID:     req.ProjectID,
		PredecessorID: cmd.PredecessorID,
	})
	return req, nil
}

// AddComment lets any member of an active project comment.
func (h *Requirements) AddComment(ctx context.Context, tx store.Tx, cmd AddComment) (models.RequirementComment, error) {
	req, author, err := commentable(ctx, tx, cmd.RequirementID, cmd.ActorID)
	if err != nil {
		return models.RequirementComment{}, err
	}
	req, comment, err := req.AddComment(h.deps.IDs.Generate(), author, cmd.Content)
	if err != nil {
		return models.RequirementComment{}, err
	}
	if err := save(ctx, tx, req); err != nil {
		return models.RequirementComment{}, err
	}
	tx.Publish(CommentAdded{
		EventMeta:     message.NewEventMeta(),
		RequirementID: req.ID,
		ProjectID:     req.ProjectID,
		CommentID:     comment.ID,
		AuthorID:      comment.AuthorID,
	})
	return comment, nil
}

// EditComment rewrites the actor's own comment.
func (h *Requirements) EditComment(ctx context.Context, tx store.Tx, cmd EditComment) (models.RequirementComment, error) {
	req, author, err := commentable(ctx, tx, cmd.RequirementID, cmd.ActorID)
	if err != nil {
		return models.RequirementComment{}, err
	}
	req, comment, err := req.EditComment(cmd.CommentID, author, cmd.Content)
	if err != nil {
		return models.RequirementComment{}, err
	}
	if err := save(ctx, tx, req); err != nil {
		return models.RequirementComment{}, err
	}
	tx.Publish(CommentEdited{
		EventMeta:     message.NewEventMeta(),
		RequirementID: req.ID,
		ProjectID:     req.ProjectID,
		CommentID:     comment.ID,
	})
	return comment, nil
}

// Assign assigns a requirement to a project member who is not a viewer,
// or unassigns it.
func (h *Requirements) Assign(ctx context.Context, tx store.Tx, cmd AssignRequirement) (models.Requirement, error) {
	req, project, err := editable(ctx, tx, cmd.RequirementID, cmd.ActorID)
	if err != nil {
		return models.Requirement{}, err
	}
	if cmd.AssigneeID != nil {
		m, ok := project.Member(*cmd.AssigneeID)
		if !ok {
			return models.Requirement{}, models.ErrMemberNotFound.Errorf("user %s is not a member of project %s", *cmd.AssigneeID, project.ID)
		}
		if m.Role == models.ProjectRoleViewer {
			return models.Requirement{}, models.ErrPermissionDenied.Errorf("viewers cannot be assigned requirements")
		}
	}
	return assign(ctx, tx, req, cmd.AssigneeID)
}

// assign stores a new assignee and records RequirementAssigned when it changed.
func assign(ctx context.Context, tx store.Tx, req models.Requirement, assignee *uuid.UUID) (models.Requirement, error) {
	if sameID(req.AssigneeID, assignee) {
		return req, nil
	}
	updated := req.ChangeAssignee(assignee)
	if err := save(ctx, tx, updated); err != nil {
		return models.Requirement{}, err
	}
	tx.Publish(RequirementAssigned{
		EventMeta:     message.NewEventMeta(),
		RequirementID: updated.ID,
		ProjectID:     updated.ProjectID,
		AssigneeID:    updated.AssigneeID,
	})
	return updated, nil
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// editable loads a requirement and its project and checks that actor may modify it.
func editable(ctx context.Context, tx store.Tx, id, actor uuid.UUID) (models.Requirement, models.Project, error) {
	req, err := loadRequirement(ctx, tx, id)
	if err != nil {
		return models.Requirement{}, models.Project{}, err
	}
	project, err := loadProject(ctx, tx, req.ProjectID)
	if err != nil {
		return models.Requirement{}, models.Project{}, err
	}
	if !project.CanModify(actor) {
		return models.Requirement{}, models.Project{}, models.ErrPermissionDenied
	}
	return req, project, nil
}

// commentable loads a requirement and the actor's membership in its active project.
func commentable(ctx context.Context, tx store.Tx, id, actor uuid.UUID) (models.Requirement, models.ProjectMember, error) {
	req, err := loadRequirement(ctx, tx, id)
	if err != nil {
		return models.Requirement{}, models.ProjectMember{}, err
	}
	project, err := loadProject(ctx, tx, req.ProjectID)
	if err != nil {
		return models.Requirement{}, models.ProjectMember{}, err
	}
	if project.Status != models.ProjectStatusActive {
		return models.Requirement{}, models.ProjectMember{}, models.ErrInvalidProjectState.Errorf("project %s is %s", project.ID, project.Status)
	}
	member, ok := project.Member(actor)
	if !ok {
		return models.Requirement{}, models.ProjectMember{}, models.ErrPermissionDenied
	}
	return req, member, nil
}

func save(ctx context.Context, tx store.Tx, req models.Requirement) error {
	if err := tx.Requirements().Update(ctx, req); err != nil {
		return fmt.Errorf("updating requirement %s: %w", req.ID, err)
	}
	return nil
}
