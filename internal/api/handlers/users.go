package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/narvanalabs/resque/internal/bus"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/models"
	"github.com/narvanalabs/resque/internal/service"
	"github.com/narvanalabs/resque/internal/store"
)

// base carries what every command handler needs.
type base struct {
	bus    *bus.Bus
	uows   store.Provider
	logger *slog.Logger
}

func newBase(b *bus.Bus, uows store.Provider, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{bus: b, uows: uows, logger: logger}
}

// dispatch runs cmd through the bus in a fresh unit of work.
func dispatch[R any](ctx context.Context, h base, cmd message.Command) (R, error) {
	return bus.Dispatch[R](ctx, h.bus, h.uows.NewUnitOfWork(), cmd)
}

// read runs fn in its own unit of work.
func (h base) read(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return h.uows.NewUnitOfWork().Do(ctx, fn)
}

// AuthHandler handles registration and login.
type AuthHandler struct {
	base
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(b *bus.Bus, uows store.Provider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{base: newBase(b, uows, logger)}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Provider string `json:"provider,omitempty"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	user, err := dispatch[models.User](r.Context(), h.base, service.RegisterUser{
		CommandMeta: message.NewCommandMeta(),
		Email:       req.Email,
		Password:    req.Password,
		Provider:    req.Provider,
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "user registered", "user_id", user.ID)
	WriteJSON(w, http.StatusCreated, userView(user))
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	result, err := dispatch[service.LoginResult](r.Context(), h.base, service.Login{
		CommandMeta: message.NewCommandMeta(),
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// UserHandler handles account endpoints for authenticated users.
type UserHandler struct {
	base
}

// NewUserHandler creates a new user handler.
func NewUserHandler(b *bus.Bus, uows store.Provider, logger *slog.Logger) *UserHandler {
	return &UserHandler{base: newBase(b, uows, logger)}
}

// Me handles GET /v1/users/me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	var user models.User
	err = h.read(r.Context(), func(ctx context.Context, tx store.Tx) error {
		user, err = tx.Users().Get(ctx, actor)
		return err
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, userView(user))
}

// Deactivate handles DELETE /v1/users/{userID}.
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, userID, err := actorAndParam(r, "userID")
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	user, err := dispatch[models.User](r.Context(), h.base, service.DeactivateUser{
		CommandMeta: message.NewCommandMeta(),
		ActorID:     actor,
		UserID:      userID,
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, userView(user))
}
