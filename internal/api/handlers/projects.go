package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/bus"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/models"
	"github.com/narvanalabs/resque/internal/service"
	"github.com/narvanalabs/resque/internal/store"
)

// ProjectHandler handles project, membership and invitation endpoints.
type ProjectHandler struct {
	base
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(b *bus.Bus, uows store.Provider, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{base: newBase(b, uows, logger)}
}

// memberProject loads a project the actor belongs to.
func memberProject(ctx context.Context, tx store.Tx, projectID, actor uuid.UUID) (models.Project, error) {
	p, err := tx.Projects().Get(ctx, projectID)
	if err != nil {
		return p, err
	}
	if !p.IsMember(actor) {
		return p, models.ErrPermissionDenied.Errorf("user %s is not a member of project %s", actor, projectID)
	}
	return p, nil
}

type createProjectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Create handles POST /v1/projects.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	project, err := dispatch[models.Project](r.Context(), h.base, service.CreateProject{
		CommandMeta: message.NewCommandMeta(),
		ActorID:     actor,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "project created", "project_id", project.ID)
	WriteJSON(w, http.StatusCreated, projectView(project, actor))
}

// List handles GET /v1/projects. It returns the projects the actor belongs to.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	views := []ProjectView{}
	err = h.read(r.Context(), func(ctx context.Context, tx store.Tx) error {
		all, err := tx.Projects().FindAll(ctx)
		if err != nil {
			return err
		}
		for _, p := range all {
			if p.IsMember(actor) {
				views = append(views, projectView(p, actor))
			}
		}
		return nil
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, views)
}

// Get handles GET /v1/projects/{projectID}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, projectID, err := actorAndParam(r, "projectID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	var project models.Project
	err = h.read(r.Context(), func(ctx context.Context, tx store.Tx) error {
		project, err = memberProject(ctx, tx, projectID, actor)
		return err
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, projectView(project, actor))
}

type statusRequest struct {
	Status string `json:"status"`
}

// ChangeStatus handles PATCH /v1/projects/{projectID}/status.
func (h *ProjectHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, projectID, err := actorAndParam(r, "projectID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	project, err := dispatch[models.Project](r.Context(), h.base, service.ChangeProjectStatus{
		CommandMeta: message.NewCommandMeta(),
		ActorID:     actor,
		ProjectID:   projectID,
		Status:      req.Status,
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, projectView(project, actor))
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Invite handles POST /v1/projects/{projectID}/invitations.
func (h *ProjectHandler) Invite(w http.ResponseWriter, r *http.Request) {
	actor, projectID, err := actorAndParam(r, "projectID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	inv, err := dispatch[models.ProjectInvitation](r.Context(), h.base, service.InviteMember{
		CommandMeta: message.NewCommandMeta(),
		ActorID:     actor,
		ProjectID:   projectID,
		Email:       req.Email,
		Role:        req.Role,
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, inv)
}

type codeRequest struct {
	Code string `json:"code"`
}

// Accept handles POST /v1/projects/{projectID}/invitations/accept.
func (h *ProjectHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, projectID, err := actorAndParam(r, "projectID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var req codeRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	member, err := dispatch[models.ProjectMember](r.Context(), h.base, service.AcceptInvitation{
		CommandMeta: message.NewCommandMeta(),
		ActorID:     actor,
		ProjectID:   projectID,
		Code:        strings.TrimSpace(req.Code),
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, member)
}

// Revoke handles POST /v1/projects/{projectID}/invitations/revoke.
// The code travels in the body so it stays out of access logs.
func (h *ProjectHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	actor, projectID, err := actorAndParam(r, "projectID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var req codeRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	inv, err := dispatch[models.ProjectInvitation](r.Context(), h.base, service.RevokeInvitation{
		CommandMeta: message.NewCommandMeta(),
		ActorID:     actor,
		ProjectID:   projectID,
		Code:        strings.TrimSpace(req.Code),
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, inv)
}

type roleRequest struct {
	Role string `json:"role"`
}

// ChangeMemberRole handles PUT /v1/projects/{projectID}/members/{userID}.
func (h *ProjectHandler) ChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	actor, projectID, err := actorAndParam(r, "projectID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	userID, err := uuidParam(r, "userID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	member, err := dispatch[models.ProjectMember](r.Context(), h.base, service.ChangeMemberRole{
		CommandMeta: message.NewCommandMeta(),
		ActorID:     actor,
		ProjectID:   projectID,
		UserID:      userID,
		Role:        req.Role,
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, member)
}

// RemoveMember handles DELETE /v1/projects/{projectID}/members/{userID}.
func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, projectID, err := actorAndParam(r, "projectID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	userID, err := uuidParam(r, "userID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	project, err := dispatch[models.Project](r.Context(), h.base, service.RemoveMember{
		CommandMeta: message.NewCommandMeta(),
		ActorID:     actor,
		ProjectID:   projectID,
		UserID:      userID,
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, projectView(project, actor))
}
