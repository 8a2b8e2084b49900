package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/models"
	"github.com/narvanalabs/resque/internal/store"
)

// Projects handles project, membership and invitation commands.
type Projects struct {
	deps Dependencies
}

// NewProjects creates the project handlers.
func NewProjects(deps Dependencies) *Projects {
	return &Projects{deps: deps.withDefaults()}
}

// Create creates a project owned by the actor.
func (h *Projects) Create(ctx context.Context, tx store.Tx, cmd CreateProject) (models.Project, error) {
	title, err := models.NewProjectTitle(cmd.Title)
	if err != nil {
		return models.Project{}, err
	}
	owner, err := loadUser(ctx, tx, cmd.ActorID)
	if err != nil {
		return models.Project{}, err
	}
	if !owner.IsActive() {
		return models.Project{}, models.ErrInactiveUser
	}

	project := models.NewProject(h.deps.IDs.Generate(), title, cmd.Description, owner.ID)
	if err := tx.Projects().Save(ctx, project); err != nil {
		return models.Project{}, fmt.Errorf("saving project: %w", err)
	}
	tx.Publish(ProjectCreated{
		EventMeta: message.NewEventMeta(),
		ProjectID: project.ID,
		OwnerID:   project.OwnerID,
		Title:     project.Title.String(),
	})
	return project, nil
}

// Invite issues an invitation. Only managers may invite.
func (h *Projects) Invite(ctx context.Context, tx store.Tx, cmd InviteMember) (models.ProjectInvitation, error) {
	email, err := models.NewEmail(cmd.Email)
	if err != nil {
		return models.ProjectInvitation{}, err
	}
	role, err := models.ParseProjectRole(cmd.Role)
	if err != nil {
		return models.ProjectInvitation{}, err
	}
	project, err := h.managedProject(ctx, tx, cmd.ProjectID, cmd.ActorID)
	if err != nil {
		return models.ProjectInvitation{}, err
	}

	project, inv, err := project.InviteMember(email, role)
	if err != nil {
		return models.ProjectInvitation{}, err
	}
	if err := tx.Projects().Update(ctx, project); err != nil {
		return models.ProjectInvitation{}, fmt.Errorf("updating project: %w", err)
	}
	tx.Publish(MemberInvited{
		EventMeta: message.NewEventMeta(),
		ProjectID: project.ID,
		Email:     inv.Email.String(),
		Role:      string(inv.Role),
		Code:      inv.Code.String(),
		ExpiresAt: inv.Expiration.Time(),
	})
	return inv, nil
}

// Accept joins the actor to the project named by the invitation.
func (h *Projects) Accept(ctx context.Context, tx store.Tx, cmd AcceptInvitation) (models.ProjectMember, error) {
	code, err := models.ParseInvitationCode(cmd.Code)
	if err != nil {
		return models.ProjectMember{}, err
	}
	user, err := loadUser(ctx, tx, cmd.ActorID)
	if err != nil {
		return models.ProjectMember{}, err
	}
	if !user.IsActive() {
		return models.ProjectMember{}, models.ErrInactiveUser
	}
	project, err := loadProject(ctx, tx, cmd.ProjectID)
	if err != nil {
		return models.ProjectMember{}, err
	}

	project, member, err := project.AcceptInvitation(code, user)
	if err != nil {
		return models.ProjectMember{}, err
	}
	if err := tx.Projects().Update(ctx, project); err != nil {
		return models.ProjectMember{}, fmt.Errorf("updating project: %w", err)
	}
	tx.Publish(InvitationAccepted{
		EventMeta: message.NewEventMeta(),
		ProjectID: project.ID,
		UserID:    member.UserID,
		Role:      string(member.Role),
	})
	return member, nil
}

// Revoke withdraws a pending invitation. Only managers may revoke.
func (h *Projects) Revoke(ctx context.Context, tx store.Tx, cmd RevokeInvitation) (models.ProjectInvitation, error) {
	code, err := models.ParseInvitationCode(cmd.Code)
	if err != nil {
		return models.ProjectInvitation{}, err
	}
	project, err := h.managedProject(ctx, tx, cmd.ProjectID, cmd.ActorID)
	if err != nil {
		return models.ProjectInvitation{}, err
	}

	project, inv, err := project.RevokeInvitation(code)
	if err != nil {
		return models.ProjectInvitation{}, err
	}
	if err := tx.Projects().Update(ctx, project); err != nil {
		return models.ProjectInvitation{}, fmt.Errorf("updating project: %w", err)
	}
	tx.Publish(InvitationRevoked{
		EventMeta: message.NewEventMeta(),
		ProjectID: project.ID,
		Email:     inv.Email.String(),
	})
	return inv, nil
}

// ChangeStatus moves the project along its status table. Only managers may do so.
func (h *Projects) ChangeStatus(ctx context.Context, tx store.Tx, cmd ChangeProjectStatus) (models.Project, error) {
	next, err := models.ParseProjectStatus(cmd.Status)
	if err != nil {
		return models.Project{}, err
	}
	project, err := h.managedProject(ctx, tx, cmd.ProjectID, cmd.ActorID)
	if err != nil {
		return models.Project{}, err
	}

	from := project.Status
	project, err = project.UpdateStatus(next)
	if err != nil {
		return models.Project{}, err
	}
	if err := tx.Projects().Update(ctx, project); err != nil {
		return models.Project{}, fmt.Errorf("updating project: %w", err)
	}
	tx.Publish(ProjectStatusChanged{
		EventMeta: message.NewEventMeta(),
		ProjectID: project.ID,
		From:      string(from),
		To:        string(project.Status),
	})
	return project, nil
}

// ChangeMemberRole gives a member another role. Only managers may do so.
func (h *Projects) ChangeMemberRole(ctx context.Context, tx store.Tx, cmd ChangeMemberRole) (models.ProjectMember, error) {
	role, err := models.ParseProjectRole(cmd.Role)
	if err != nil {
		return models.ProjectMember{}, err
	}
	project, err := h.managedProject(ctx, tx, cmd.ProjectID, cmd.ActorID)
	if err != nil {
		return models.ProjectMember{}, err
	}

	project, member, err := project.ChangeMemberRole(cmd.UserID, role)
	if err != nil {
		return models.ProjectMember{}, err
	}
	if err := tx.Projects().Update(ctx, project); err != nil {
		return models.ProjectMember{}, fmt.Errorf("updating project: %w", err)
	}
	tx.Publish(MemberRoleChanged{
		EventMeta: message.NewEventMeta(),
		ProjectID: project.ID,
		UserID:    member.UserID,
		Role:      string(member.Role),
	})
	return member, nil
}

// RemoveMember drops a member. Managers may remove anyone but the owner;
// members may remove themselves.
func (h *Projects) RemoveMember(ctx context.Context, tx store.Tx, cmd RemoveMember) (models.Project, error) {
	project, err := loadProject(ctx, tx, cmd.ProjectID)
	if err != nil {
		return models.Project{}, err
	}
	if cmd.ActorID != cmd.UserID && !project.CanManage(cmd.ActorID) {
		return models.Project{}, models.ErrPermissionDenied
	}

	project, err = project.RemoveMember(cmd.UserID)
	if err != nil {
		return models.Project{}, err
	}
	if err := tx.Projects().Update(ctx, project); err != nil {
		return models.Project{}, fmt.Errorf("updating project: %w", err)
	}
	tx.Publish(MemberRemoved{
		EventMeta: message.NewEventMeta(),
		ProjectID: project.ID,
		UserID:    cmd.UserID,
	})
	return project, nil
}

func (h *Projects) managedProject(ctx context.Context, tx store.Tx, projectID, actorID uuid.UUID) (models.Project, error) {
	project, err := loadProject(ctx, tx, projectID)
	if err != nil {
		return models.Project{}, err
	}
	if !project.CanManage(actorID) {
		return models.Project{}, models.ErrPermissionDenied
	}
	return project, nil
}
