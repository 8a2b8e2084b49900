package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/message"
)

// UserRegistered is recorded when an account is created.
type UserRegistered struct {
	message.EventMeta
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	Provider string    `json:"provider"`
}

func (UserRegistered) Type() string { return "user.registered" }

// UserDeactivated is recorded when an account is deactivated.
type UserDeactivated struct {
	message.EventMeta
	UserID uuid.UUID `json:"user_id"`
}

func (UserDeactivated) Type() string { return "user.deactivated" }

// ProjectCreated is recorded when a project is created with its owner as manager.
type ProjectCreated struct {
	message.EventMeta
	ProjectID uuid.UUID `json:"project_id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
}

func (ProjectCreated) Type() string { return "project.created" }

// MemberInvited carries the invitation code for in-process delivery only;
// the code is never serialized.
type MemberInvited struct {
	message.EventMeta
	ProjectID uuid.UUID `json:"project_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (MemberInvited) Type() string { return "project.member_invited" }

// InvitationAccepted is recorded when an invitee joins the project.
type InvitationAccepted struct {
	message.EventMeta
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
}

func (InvitationAccepted) Type() string { return "project.invitation_accepted" }

// InvitationRevoked is recorded when a manager withdraws a pending invitation.
type InvitationRevoked struct {
	message.EventMeta
	ProjectID uuid.UUID `json:"project_id"`
	Email     string    `json:"email"`
}

func (InvitationRevoked) Type() string { return "project.invitation_revoked" }

// ProjectStatusChanged is recorded on every project status transition.
type ProjectStatusChanged struct {
	message.EventMeta
	ProjectID uuid.UUID `json:"project_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
}

func (ProjectStatusChanged) Type() string { return "project.status_changed" }

// MemberRoleChanged is recorded when a member's role changes.
type MemberRoleChanged struct {
	message.EventMeta
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
}

func (MemberRoleChanged) Type() string { return "project.member_role_changed" }

// MemberRemoved is recorded when a member leaves or is removed.
type MemberRemoved struct {
	message.EventMeta
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
}

func (MemberRemoved) Type() string { return "project.member_removed" }

// RequirementCreated is recorded when a requirement is added to a project.
type RequirementCreated struct {
	message.EventMeta
	RequirementID uuid.UUID `json:"requirement_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	Title         string    `json:"title"`
	Priority      int       `json:"priority"`
}

func (RequirementCreated) Type() string { return "requirement.created" }

// RequirementStatusChanged is recorded on every requirement status transition.
type RequirementStatusChanged struct {
	message.EventMeta
	RequirementID uuid.UUID `json:"requirement_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
}

func (RequirementStatusChanged) Type() string { return "requirement.status_changed" }

// RequirementPriorityChanged is recorded when the priority level changes.
type RequirementPriorityChanged struct {
	message.EventMeta
	RequirementID uuid.UUID `json:"requirement_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	Priority      int       `json:"priority"`
}

func (RequirementPriorityChanged) Type() string { return "requirement.priority_changed" }

// RequirementTagged carries the normalized tag that was added.
type RequirementTagged struct {
	message.EventMeta
	RequirementID uuid.UUID `json:"requirement_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	Tag           string    `json:"tag"`
}

func (RequirementTagged) Type() string { return "requirement.tagged" }

// RequirementUntagged carries the normalized tag that was removed.
type RequirementUntagged struct {
	message.EventMeta
	RequirementID uuid.UUID `json:"requirement_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	Tag           string    `json:"tag"`
}

func (RequirementUntagged) Type() string { return "requirement.untagged" }

// RequirementLinked is recorded when a requirement gains a predecessor.
type RequirementLinked struct {
	message.EventMeta
	RequirementID uuid.UUID `json:"requirement_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	PredecessorID uuid.UUID `json:"predecessor_id"`
}

func (RequirementLinked) Type() string { return "requirement.linked" }

// RequirementUnlinked is recorded when a dependency is removed.
type RequirementUnlinked struct {
	message.EventMeta
	RequirementID uuid.UUID `json:"requirement_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	PredecessorID uuid.UUID `json:"predecessor_id"`
}

func (RequirementUnlinked) Type() string { return "requirement.unlinked" }

// CommentAdded is recorded when a member comments on a requirement.
type CommentAdded struct {
	message.EventMeta
	RequirementID uuid.UUID `json:"requirement_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	CommentID     uuid.UUID `json:"comment_id"`
	AuthorID      uuid.UUID `json:"author_id"`
}

func (CommentAdded) Type() string { return "requirement.comment_added" }

// CommentEdited is recorded when an author rewrites a comment.
type CommentEdited struct {
	message.EventMeta
	RequirementID uuid.UUID `json:"requirement_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	CommentID     uuid.UUID `json:"comment_id"`
}

func (CommentEdited) Type() string { return "requirement.comment_edited" }

// RequirementAssigned is recorded on assignment changes. A nil AssigneeID
// means the requirement was unassigned.
type RequirementAssigned struct {
	message.EventMeta
	RequirementID uuid.UUID  `json:"requirement_id"`
	ProjectID     uuid.UUID  `json:"project_id"`
	AssigneeID    *uuid.UUID `json:"assignee_id"`
}

func (RequirementAssigned) Type() string { return "requirement.assigned" }

// RequirementUnblocked is recorded when every predecessor of a requirement is done.
type RequirementUnblocked struct {
	message.EventMeta
	RequirementID uuid.UUID `json:"requirement_id"`
	ProjectID     uuid.UUID `json:"project_id"`
}

func (RequirementUnblocked) Type() string { return "requirement.unblocked" }
