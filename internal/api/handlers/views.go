package handlers

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/models"
)

// UserView is a user without credentials.
type UserView struct {
	ID        uuid.UUID           `json:"id"`
	Email     models.Email        `json:"email"`
	Provider  models.AuthProvider `json:"provider"`
	Status    models.UserStatus   `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}

func userView(u models.User) UserView {
	return UserView{
		ID:        u.ID,
		Email:     u.Email,
		Provider:  u.Provider,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}

// ProjectView is a project as seen by one of its members. Invitation codes
// are only shown to managers.
type ProjectView struct {
	ID          uuid.UUID                  `json:"id"`
	Title       models.ProjectTitle        `json:"title"`
	Description string                     `json:"description"`
	Status      models.ProjectStatus       `json:"status"`
	OwnerID     uuid.UUID                  `json:"owner_id"`
	CreatedAt   time.Time                  `json:"created_at"`
	Members     []models.ProjectMember     `json:"members"`
	Invitations []models.ProjectInvitation `json:"invitations,omitempty"`
}

func projectView(p models.Project, viewer uuid.UUID) ProjectView {
	v := ProjectView{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Status:      p.Status,
		OwnerID:     p.OwnerID,
		CreatedAt:   p.CreatedAt,
		Members:     p.Members,
	}
	if p.CanManage(viewer) {
		for _, inv := range p.Invitations {
			v.Invitations = append(v.Invitations, inv)
		}
		slices.SortFunc(v.Invitations, func(a, b models.ProjectInvitation) int {
			return a.InvitedAt.Compare(b.InvitedAt)
		})
	}
	return v
}
