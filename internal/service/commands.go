package service

import (
	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/message"
)

// RegisterUser creates an account. Password is required for the email provider.
type RegisterUser struct {
	message.CommandMeta
	Email    string `json:"email"`
	Password string `json:"-"`
	Provider string `json:"provider,omitempty"`
}

func (RegisterUser) Type() string { return "user.register" }

// Login exchanges credentials for an access token.
type Login struct {
	message.CommandMeta
	Email    string `json:"email"`
	Password string `json:"-"`
}

func (Login) Type() string { return "user.login" }

// DeactivateUser closes an account. Users may only deactivate themselves.
type DeactivateUser struct {
	message.CommandMeta
	ActorID uuid.UUID `json:"actor_id"`
	UserID  uuid.UUID `json:"user_id"`
}

func (DeactivateUser) Type() string { return "user.deactivate" }

// CreateProject creates a project owned by the actor.
type CreateProject struct {
	message.CommandMeta
	ActorID     uuid.UUID `json:"actor_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

func (CreateProject) Type() string { return "project.create" }

// InviteMember invites an email address into a project.
type InviteMember struct {
	message.CommandMeta
	ActorID   uuid.UUID `json:"actor_id"`
	ProjectID uuid.UUID `json:"project_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
}

func (InviteMember) Type() string { return "project.invite_member" }

// AcceptInvitation joins the actor to a project using an invitation code.
type AcceptInvitation struct {
	message.CommandMeta
	ActorID   uuid.UUID `json:"actor_id"`
	ProjectID uuid.UUID `json:"project_id"`
	Code      string    `json:"-"`
}

func (AcceptInvitation) Type() string { return "project.accept_invitation" }

// RevokeInvitation withdraws a pending invitation.
type RevokeInvitation struct {
	message.CommandMeta
	ActorID   uuid.UUID `json:"actor_id"`
	ProjectID uuid.UUID `json:"project_id"`
	Code      string    `json:"-"`
}

func (RevokeInvitation) Type() string { return "project.revoke_invitation" }

// ChangeProjectStatus moves a project to another status.
type ChangeProjectStatus struct {
	message.CommandMeta
	ActorID   uuid.UUID `json:"actor_id"`
	ProjectID uuid.UUID `json:"project_id"`
	Status    string    `json:"status"`
}

func (ChangeProjectStatus) Type() string { return "project.change_status" }

// ChangeMemberRole gives a member another role.
type ChangeMemberRole struct {
	message.CommandMeta
	ActorID   uuid.UUID `json:"actor_id"`
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
}

func (ChangeMemberRole) Type() string { return "project.change_member_role" }

// RemoveMember removes a member from a project.
type RemoveMember struct {
	message.CommandMeta
	ActorID   uuid.UUID `json:"actor_id"`
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
}

func (RemoveMember) Type() string { return "project.remove_member" }

// CreateRequirement adds a requirement to a project.
type CreateRequirement struct {
	message.CommandMeta
	ActorID     uuid.UUID `json:"actor_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"`
}

func (CreateRequirement) Type() string { return "requirement.create" }

// ChangeRequirementStatus moves a requirement along its status table.
type ChangeRequirementStatus struct {
	message.CommandMeta
	ActorID       uuid.UUID `json:"actor_id"`
	RequirementID uuid.UUID `json:"requirement_id"`
	Status        string    `json:"status"`
}

func (ChangeRequirementStatus) Type() string { return "requirement.change_status" }

// SetRequirementPriority changes a requirement's priority.
type SetRequirementPriority struct {
	message.CommandMeta
	ActorID       uuid.UUID `json:"actor_id"`
	RequirementID uuid.UUID `json:"requirement_id"`
	Priority      int       `json:"priority"`
}

func (SetRequirementPriority) Type() string { return "requirement.set_priority" }

// TagRequirement adds a tag.
type TagRequirement struct {
	message.CommandMeta
	ActorID       uuid.UUID `json:"actor_id"`
	RequirementID uuid.UUID `json:"requirement_id"`
	Tag           string    `json:"tag"`
}

func (TagRequirement) Type() string { return "requirement.tag" }

// UntagRequirement removes a tag.
type UntagRequirement struct {
	message.CommandMeta
	ActorID       uuid.UUID `json:"actor_id"`
	RequirementID uuid.UUID `json:"requirement_id"`
	Tag           string    `json:"tag"`
}

func (UntagRequirement) Type() string { return "requirement.untag" }

// LinkRequirement makes RequirementID depend on PredecessorID.
type LinkRequirement struct {
	message.CommandMeta
	ActorID       uuid.UUID `json:"actor_id"`
	RequirementID uuid.UUID `json:"requirement_id"`
	PredecessorID uuid.UUID `json:"predecessor_id"`
}

func (LinkRequirement) Type() string { return "requirement.link" }

// UnlinkRequirement removes a dependency.
type UnlinkRequirement struct {
	message.CommandMeta
	ActorID       uuid.UUID `json:"actor_id"`
	RequirementID uuid.UUID `json:"requirement_id"`
	PredecessorID uuid.UUID `json:"predecessor_id"`
}

func (UnlinkRequirement) Type() string { return "requirement.unlink" }

// AddComment comments on a requirement.
type AddComment struct {
	message.CommandMeta
	ActorID       uuid.UUID `json:"actor_id"`
	RequirementID uuid.UUID `json:"requirement_id"`
	Content       string    `json:"content"`
}

func (AddComment) Type() string { return "requirement.add_comment" }

// EditComment rewrites the actor's own comment.
type EditComment struct {
	message.CommandMeta
	ActorID       uuid.UUID `json:"actor_id"`
	RequirementID uuid.UUID `json:"requirement_id"`
	CommentID     uuid.UUID `json:"comment_id"`
	Content       string    `json:"content"`
}

func (EditComment) Type() string { return "requirement.edit_comment" }

// AssignRequirement assigns a requirement to a member, or unassigns it when
// AssigneeID is nil.
type AssignRequirement struct {
	message.CommandMeta
	ActorID       uuid.UUID  `json:"actor_id"`
	RequirementID uuid.UUID  `json:"requirement_id"`
	AssigneeID    *uuid.UUID `json:"assignee_id,omitempty"`
}

func (AssignRequirement) Type() string { return "requirement.assign" }
