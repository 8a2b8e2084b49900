package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/models"
	"github.com/narvanalabs/resque/internal/store"
)

// Reactions holds the event handlers that keep aggregates consistent with
// each other and notify people of changes.
type Reactions struct {
	deps Dependencies
}

// NewReactions creates the event handlers.
func NewReactions(deps Dependencies) *Reactions {
	return &Reactions{deps: deps.withDefaults()}
}

// WelcomeUser greets a newly registered user.
func (h *Reactions) WelcomeUser(ctx context.Context, _ store.Tx, evt UserRegistered) error {
	return h.deps.Notifier.Welcome(ctx, evt.UserID, evt.Email)
}

// SendInvitation hands a new invitation to the notifier.
func (h *Reactions) SendInvitation(ctx context.Context, _ store.Tx, evt MemberInvited) error {
	return h.deps.Notifier.InvitationIssued(ctx, evt.ProjectID, evt.Email, evt.Role, evt.Code)
}

// UnassignDeactivatedUser clears every assignment held by a deactivated user.
func (h *Reactions) UnassignDeactivatedUser(ctx context.Context, tx store.Tx, evt UserDeactivated) error {
	reqs, err := tx.Requirements().FindAll(ctx)
	if err != nil {
		return fmt.Errorf("listing requirements: %w", err)
	}
	return unassignAll(ctx, tx, reqs, evt.UserID)
}

// UnassignRemovedMember clears the assignments a removed member held in the project.
func (h *Reactions) UnassignRemovedMember(ctx context.Context, tx store.Tx, evt MemberRemoved) error {
	reqs, err := tx.Requirements().ListByProject(ctx, evt.ProjectID)
	if err != nil {
		return fmt.Errorf("listing requirements: %w", err)
	}
	return unassignAll(ctx, tx, reqs, evt.UserID)
}

func unassignAll(ctx context.Context, tx store.Tx, reqs []models.Requirement, userID uuid.UUID) error {
	for _, r := range reqs {
		if r.AssigneeID == nil || *r.AssigneeID != userID {
			continue
		}
		if _, err := assign(ctx, tx, r, nil); err != nil {
			return err
		}
	}
	return nil
}

// UnblockSuccessors records RequirementUnblocked for every successor whose
// predecessors are now all done.
func (h *Reactions) UnblockSuccessors(ctx context.Context, tx store.Tx, evt RequirementStatusChanged) error {
	if evt.To != string(models.RequirementStatusDone) {
		return nil
	}
	reqs, err := tx.Requirements().ListByProject(ctx, evt.ProjectID)
	if err != nil {
		return fmt.Errorf("listing requirements: %w", err)
	}
	byID := make(map[uuid.UUID]models.Requirement, len(reqs))
	for _, r := range reqs {
		byID[r.ID] = r
	}

	graph := models.BuildDependencyGraph(reqs)
	for _, succ := range graph.Successors(evt.RequirementID) {
		if !allDone(byID, graph[succ]) {
			continue
		}
		h.deps.Logger.Debug("requirement unblocked",
			slog.String("requirement_id", succ.String()),
			slog.String("unblocked_by", evt.RequirementID.String()),
		)
		tx.Publish(RequirementUnblocked{
			EventMeta:     message.NewEventMeta(),
			RequirementID: succ,
			ProjectID:     evt.ProjectID,
		})
	}
	return nil
}

func allDone(byID map[uuid.UUID]models.Requirement, ids []uuid.UUID) bool {
	for _, id := range ids {
		r, ok := byID[id]
		if !ok || r.Status != models.RequirementStatusDone {
			return false
		}
	}
	return true
}

// NotifyUnblocked tells the notifier a requirement can be started.
func (h *Reactions) NotifyUnblocked(ctx context.Context, tx store.Tx, evt RequirementUnblocked) error {
	req, err := loadRequirement(ctx, tx, evt.RequirementID)
	if err != nil {
		return err
	}
	return h.deps.Notifier.RequirementUnblocked(ctx, req)
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With(slog.String("component", "notifier"))}
}

// InvitationIssued logs the invitation. The code is never logged.
func (n *LogNotifier) InvitationIssued(ctx context.Context, projectID uuid.UUID, email, role, _ string) error {
	n.logger.InfoContext(ctx, "invitation issued",
		slog.String("project_id", projectID.String()),
		slog.String("email", email),
		slog.String("role", role),
	)
	return nil
}

// Welcome logs the new account.
func (n *LogNotifier) Welcome(ctx context.Context, userID uuid.UUID, email string) error {
	n.logger.InfoContext(ctx, "welcome", slog.String("user_id", userID.String()), slog.String("email", email))
	return nil
}

// RequirementUnblocked logs that req can be started.
func (n *LogNotifier) RequirementUnblocked(ctx context.Context, req models.Requirement) error {
	n.logger.InfoContext(ctx, "requirement ready to start",
		slog.String("requirement_id", req.ID.String()),
		slog.String("project_id", req.ProjectID.String()),
		slog.String("title", req.Title.String()),
	)
	return nil
}
