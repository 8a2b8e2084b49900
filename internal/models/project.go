package models

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ProjectRole is a member's role within a project.
type ProjectRole string

const (
	ProjectRoleManager ProjectRole = "manager"
	ProjectRoleMember  ProjectRole = "member"
	ProjectRoleViewer  ProjectRole = "viewer"
)

// ParseProjectRole converts a string to a known ProjectRole.
func ParseProjectRole(s string) (ProjectRole, error) {
	switch r := ProjectRole(s); r {
	case ProjectRoleManager, ProjectRoleMember, ProjectRoleViewer:
		return r, nil
	}
	return "", ErrInvalidProjectRole.Errorf("unknown project role %q", s)
}

// Invitable reports whether the role may be granted through an invitation.
func (r ProjectRole) Invitable() bool {
	return r == ProjectRoleMember || r == ProjectRoleViewer
}

// ProjectMember is a user's membership in a project.
type ProjectMember struct {
	UserID   uuid.UUID   `json:"user_id"`
	Role     ProjectRole `json:"role"`
	JoinedAt time.Time   `json:"joined_at"`
}

// Project is the aggregate root for membership and invitations.
// Members and Invitations are never modified in place; mutators clone them.
type Project struct {
	ID          uuid.UUID                            `json:"id"`
	Title       ProjectTitle                         `json:"title"`
	Description string                               `json:"description"`
	Status      ProjectStatus                        `json:"status"`
	OwnerID     uuid.UUID                            `json:"owner_id"`
	CreatedAt   time.Time                            `json:"created_at"`
	Members     []ProjectMember                      `json:"members"`
	Invitations map[InvitationCode]ProjectInvitation `json:"invitations"`
}

// NewProject creates an active project whose owner is its only member, as a manager.
func NewProject(id uuid.UUID, title ProjectTitle, description string, ownerID uuid.UUID) Project {
	created := now()
	members := []ProjectMember{{
		UserID:   ownerID,
		Role:     ProjectRoleManager,
		JoinedAt: created,
	}}
	return Project{
		ID:          id,
		Title:       title,
		Description: description,
		Status:      ProjectStatusActive,
		OwnerID:     ownerID,
		CreatedAt:   created,
		Members:     members,
		Invitations: map[InvitationCode]ProjectInvitation{},
	}
}

// Member returns the membership of userID.
func (p Project) Member(userID uuid.UUID) (ProjectMember, bool) {
	for _, m := range p.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return ProjectMember{}, false
}

// IsMember reports whether userID belongs to the project.
func (p Project) IsMember(userID uuid.UUID) bool {
	_, ok := p.Member(userID)
	return ok
}

// Invitation returns the invitation issued under code.
func (p Project) Invitation(code InvitationCode) (ProjectInvitation, bool) {
	inv, ok := p.Invitations[code]
	return inv, ok
}

// CanModify reports whether userID may change the project's content.
func (p Project) CanModify(userID uuid.UUID) bool {
	if p.Status != ProjectStatusActive {
		return false
	}
	m, ok := p.Member(userID)
	if !ok {
		return false
	}
	return m.Role == ProjectRoleManager || m.Role == ProjectRoleMember
}

// CanManage reports whether userID may manage membership and project status.
func (p Project) CanManage(userID uuid.UUID) bool {
	m, ok := p.Member(userID)
	return ok && m.Role == ProjectRoleManager
}

// InviteMember issues a fresh invitation for email with role.
// A pending invitation for the same email that has run out is marked expired.
func (p Project) InviteMember(email Email, role ProjectRole) (Project, ProjectInvitation, error) {
	if p.Status == ProjectStatusArchived {
		return p, ProjectInvitation{}, ErrInvalidProjectState.Errorf("project %s is archived", p.ID)
	}

	issued := now()
	invitations := p.cloneInvitations()
	for code, inv := range invitations {
		if inv.Email != email {
			continue
		}
		switch {
		case inv.Status == InvitationStatusAccepted,
			inv.Status == InvitationStatusPending && !inv.Expiration.IsExpiredAt(issued):
			return p, ProjectInvitation{}, ErrDuplicateInvitation.Errorf("%s has already been invited", email)
		case inv.Status == InvitationStatusPending:
			invitations[code] = inv.withStatus(InvitationStatusExpired)
		}
	}

	if !role.Invitable() {
		return p, ProjectInvitation{}, ErrInvalidRole.Errorf("role %q cannot be granted by invitation", role)
	}

	code, err := GenerateInvitationCode()
	if err != nil {
		return p, ProjectInvitation{}, err
	}
	inv := ProjectInvitation{
		Code:       code,
		Email:      email,
		Role:       role,
		Expiration: ExpirationFrom(issued),
		Status:     InvitationStatusPending,
		InvitedAt:  issued,
	}
	invitations[code] = inv
	p.Invitations = invitations
	return p, inv, nil
}

// AcceptInvitation turns the invitation under code into a membership for user.
func (p Project) AcceptInvitation(code InvitationCode, user User) (Project, ProjectMember, error) {
	if p.Status != ProjectStatusActive {
		return p, ProjectMember{}, ErrInvalidProjectState.Errorf("project %s is %s", p.ID, p.Status)
	}

	inv, ok := p.Invitations[code]
	if !ok {
		return p, ProjectMember{}, ErrInvalidInvitationCode
	}
	if inv.IsExpired() {
		return p, ProjectMember{}, ErrExpiredInvitation
	}
	if inv.Status == InvitationStatusAccepted || p.IsMember(user.ID) {
		return p, ProjectMember{}, ErrAlreadyAcceptedInvitation
	}
	if inv.Status != InvitationStatusPending {
		return p, ProjectMember{}, ErrInvalidInvitationCode.Errorf("invitation is %s", inv.Status)
	}
	if inv.Email != user.Email {
		return p, ProjectMember{}, ErrInvalidInvitationCode.Errorf("invitation was issued to a different email")
	}

	member := ProjectMember{
		UserID:   user.ID,
		Role:     inv.Role,
		JoinedAt: now(),
	}
	invitations := p.cloneInvitations()
	invitations[code] = inv.withStatus(InvitationStatusAccepted)

	p.Members = append(slices.Clone(p.Members), member)
	p.Invitations = invitations
	return p, member, nil
}

// RevokeInvitation withdraws a pending invitation.
func (p Project) RevokeInvitation(code InvitationCode) (Project, ProjectInvitation, error) {
	if p.Status == ProjectStatusArchived {
		return p, ProjectInvitation{}, ErrInvalidProjectState.Errorf("project %s is archived", p.ID)
	}
	inv, ok := p.Invitations[code]
	if !ok {
		return p, ProjectInvitation{}, ErrInvalidInvitationCode
	}
	if inv.Status != InvitationStatusPending {
		return p, ProjectInvitation{}, ErrInvalidInvitationStatus.Errorf("invitation is %s", inv.Status)
	}
	revoked := inv.withStatus(InvitationStatusRevoked)
	invitations := p.cloneInvitations()
	invitations[code] = revoked
	p.Invitations = invitations
	return p, revoked, nil
}

// UpdateStatus moves the project along the project status table.
func (p Project) UpdateStatus(next ProjectStatus) (Project, error) {
	st, err := p.Status.ChangeStatus(next)
	if err != nil {
		return p, err
	}
	p.Status = st
	return p, nil
}

// ChangeMemberRole gives an existing member a new role. The owner stays a manager.
func (p Project) ChangeMemberRole(userID uuid.UUID, role ProjectRole) (Project, ProjectMember, error) {
	if p.Status == ProjectStatusArchived {
		return p, ProjectMember{}, ErrInvalidProjectState.Errorf("project %s is archived", p.ID)
	}
	if _, err := ParseProjectRole(string(role)); err != nil {
		return p, ProjectMember{}, err
	}
	if userID == p.OwnerID && role != ProjectRoleManager {
		return p, ProjectMember{}, ErrOwnerRoleChange
	}
	idx := p.memberIndex(userID)
	if idx < 0 {
		return p, ProjectMember{}, ErrMemberNotFound
	}
	members := slices.Clone(p.Members)
	members[idx].Role = role
	p.Members = members
	return p, members[idx], nil
}

// RemoveMember drops a member. The owner cannot be removed.
func (p Project) RemoveMember(userID uuid.UUID) (Project, error) {
	if p.Status == ProjectStatusArchived {
		return p, ErrInvalidProjectState.Errorf("project %s is archived", p.ID)
	}
	if userID == p.OwnerID {
		return p, ErrOwnerRoleChange
	}
	idx := p.memberIndex(userID)
	if idx < 0 {
		return p, ErrMemberNotFound
	}
	p.Members = slices.Delete(slices.Clone(p.Members), idx, idx+1)
	return p, nil
}

func (p Project) memberIndex(userID uuid.UUID) int {
	return slices.IndexFunc(p.Members, func(m ProjectMember) bool { return m.UserID == userID })
}

func (p Project) cloneInvitations() map[InvitationCode]ProjectInvitation {
	out := make(map[InvitationCode]ProjectInvitation, len(p.Invitations)+1)
	maps.Copy(out, p.Invitations)
	return out
}
