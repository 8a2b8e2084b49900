package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/bus"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/models"
	"github.com/narvanalabs/resque/internal/service"
	"github.com/narvanalabs/resque/internal/store"
)

// RequirementHandler handles requirement endpoints.
type RequirementHandler struct {
	base
}

// NewRequirementHandler creates a new requirement handler.
func NewRequirementHandler(b *bus.Bus, uows store.Provider, logger *slog.Logger) *RequirementHandler {
	return &RequirementHandler{base: newBase(b, uows, logger)}
}

// List handles GET /v1/projects/{projectID}/requirements. The optional tag
// query parameter narrows the result to requirements carrying that tag.
func (h *RequirementHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, projectID, err := actorAndParam(r, "projectID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	tag := r.URL.Query().Get("tag")
	if tag != "" {
		if tag, err = models.NormalizeTag(tag); err != nil {
			WriteError(w, r, h.logger, err)
			return
		}
	}

	var reqs []models.Requirement
	err = h.read(r.Context(), func(ctx context.Context, tx store.Tx) error {
		if _, err := memberProject(ctx, tx, projectID, actor); err != nil {
			return err
		}
		var err error
		if tag != "" {
			reqs, err = tx.Requirements().FindByTag(ctx, projectID, tag)
		} else {
			reqs, err = tx.Requirements().ListByProject(ctx, projectID)
		}
		return err
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	if reqs == nil {
		reqs = []models.Requirement{}
	}
	WriteJSON(w, http.StatusOK, reqs)
}

type createRequirementRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// Create handles POST /v1/projects/{projectID}/requirements.
func (h *RequirementHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, projectID, err := actorAndParam(r, "projectID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var req createRequirementRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	created, err := dispatch[models.Requirement](r.Context(), h.base, service.CreateRequirement{
		CommandMeta: message.NewCommandMeta(),
		ActorID:     actor,
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "requirement created", "requirement_id", created.ID, "project_id", projectID)
	WriteJSON(w, http.StatusCreated, created)
}

// Get handles GET /v1/requirements/{requirementID}.
func (h *RequirementHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, id, err := actorAndParam(r, "requirementID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	var req models.Requirement
	err = h.read(r.Context(), func(ctx context.Context, tx store.Tx) error {
		req, err = tx.Requirements().Get(ctx, id)
		if err != nil {
			return err
		}
		_, err = memberProject(ctx, tx, req.ProjectID, actor)
		return err
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

// requirementCommand decodes the optional body, builds a command for the
// actor and the requirement in the URL, and writes the handler's result.
func requirementCommand[B any, R any](h *RequirementHandler, w http.ResponseWriter, r *http.Request, status int, build func(actor, id uuid.UUID, body B) message.Command) {
	actor, id, err := actorAndParam(r, "requirementID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	var body B
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			WriteError(w, r, h.logger, err)
			return
		}
	}
	result, err := dispatch[R](r.Context(), h.base, build(actor, id, body))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, status, result)
}

type noBody struct{}

// ChangeStatus handles PATCH /v1/requirements/{requirementID}/status.
func (h *RequirementHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	requirementCommand[statusRequest, models.Requirement](h, w, r, http.StatusOK,
		func(actor, id uuid.UUID, body statusRequest) message.Command {
			return service.ChangeRequirementStatus{
				CommandMeta:   message.NewCommandMeta(),
				ActorID:       actor,
				RequirementID: id,
				Status:        body.Status,
			}
		})
}

type priorityRequest struct {
	Priority int `json:"priority"`
}

// SetPriority handles PATCH /v1/requirements/{requirementID}/priority.
func (h *RequirementHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	requirementCommand[priorityRequest, models.Requirement](h, w, r, http.StatusOK,
		func(actor, id uuid.UUID, body priorityRequest) message.Command {
			return service.SetRequirementPriority{
				CommandMeta:   message.NewCommandMeta(),
				ActorID:       actor,
				RequirementID: id,
				Priority:      body.Priority,
			}
		})
}

type tagRequest struct {
	Tag string `json:"tag"`
}

// Tag handles POST /v1/requirements/{requirementID}/tags.
func (h *RequirementHandler) Tag(w http.ResponseWriter, r *http.Request) {
	requirementCommand[tagRequest, models.Requirement](h, w, r, http.StatusOK,
		func(actor, id uuid.UUID, body tagRequest) message.Command {
			return service.TagRequirement{
				CommandMeta:   message.NewCommandMeta(),
				ActorID:       actor,
				RequirementID: id,
				Tag:           body.Tag,
			}
		})
}

// Untag handles DELETE /v1/requirements/{requirementID}/tags/{tag}.
func (h *RequirementHandler) Untag(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	requirementCommand[noBody, models.Requirement](h, w, r, http.StatusOK,
		func(actor, id uuid.UUID, _ noBody) message.Command {
			return service.UntagRequirement{
				CommandMeta:   message.NewCommandMeta(),
				ActorID:       actor,
				RequirementID: id,
				Tag:           tag,
			}
		})
}

type linkRequest struct {
	PredecessorID uuid.UUID `json:"predecessor_id"`
}

// Link handles POST /v1/requirements/{requirementID}/predecessors.
func (h *RequirementHandler) Link(w http.ResponseWriter, r *http.Request) {
	requirementCommand[linkRequest, models.Requirement](h, w, r, http.StatusOK,
		func(actor, id uuid.UUID, body linkRequest) message.Command {
			return service.LinkRequirement{
				CommandMeta:   message.NewCommandMeta(),
				ActorID:       actor,
				RequirementID: id,
				PredecessorID: body.PredecessorID,
			}
		})
}

// Unlink handles DELETE /v1/requirements/{requirementID}/predecessors/{predecessorID}.
func (h *RequirementHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	predecessor, err := uuidParam(r, "predecessorID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	requirementCommand[noBody, models.Requirement](h, w, r, http.StatusOK,
		func(actor, id uuid.UUID, _ noBody) message.Command {
			return service.UnlinkRequirement{
				CommandMeta:   message.NewCommandMeta(),
				ActorID:       actor,
				RequirementID: id,
				PredecessorID: predecessor,
			}
		})
}

type commentRequest struct {
	Content string `json:"content"`
}

// AddComment handles POST /v1/requirements/{requirementID}/comments.
func (h *RequirementHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	requirementCommand[commentRequest, models.RequirementComment](h, w, r, http.StatusCreated,
		func(actor, id uuid.UUID, body commentRequest) message.Command {
			return service.AddComment{
				CommandMeta:   message.NewCommandMeta(),
				ActorID:       actor,
				RequirementID: id,
				Content:       body.Content,
			}
		})
}

// EditComment handles PATCH /v1/requirements/{requirementID}/comments/{commentID}.
func (h *RequirementHandler) EditComment(w http.ResponseWriter, r *http.Request) {
	commentID, err := uuidParam(r, "commentID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	requirementCommand[commentRequest, models.RequirementComment](h, w, r, http.StatusOK,
		func(actor, id uuid.UUID, body commentRequest) message.Command {
			return service.EditComment{
				CommandMeta:   message.NewCommandMeta(),
				ActorID:       actor,
				RequirementID: id,
				CommentID:     commentID,
				Content:       body.Content,
			}
		})
}

type assignRequest struct {
	AssigneeID *uuid.UUID `json:"assignee_id"`
}

// Assign handles PUT /v1/requirements/{requirementID}/assignee. A null
// assignee_id unassigns the requirement.
func (h *RequirementHandler) Assign(w http.ResponseWriter, r *http.Request) {
	requirementCommand[assignRequest, models.Requirement](h, w, r, http.StatusOK,
		func(actor, id uuid.UUID, body assignRequest) message.Command {
			return service.AssignRequirement{
				CommandMeta:   message.NewCommandMeta(),
				ActorID:       actor,
				RequirementID: id,
				AssigneeID:    body.AssigneeID,
			}
		})
}
