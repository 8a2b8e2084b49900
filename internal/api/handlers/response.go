// Package handlers provides HTTP handlers for the API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	apierrors "github.com/narvanalabs/resque/internal/api/errors"
	"github.com/narvanalabs/resque/internal/api/middleware"
	"github.com/narvanalabs/resque/pkg/logger"
)

const maxBodyBytes = 1 << 20

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	apierrors.WriteJSON(w, status, data)
}

// WriteError maps err onto an API error and writes it. Internal errors are
// logged with their cause since the response hides it.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	apiErr := apierrors.FromError(err)
	if apiErr.HTTPStatusCode() >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
	} else {
		log.DebugContext(r.Context(), "request rejected", "error", err, "code", apiErr.Code)
	}
	apierrors.WriteErrorWithRequestID(w, apiErr, logger.RequestIDFromContext(r.Context()))
}

// WriteBadRequest writes a 400 response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.WriteErrorWithRequestID(w, apierrors.NewValidationError(message), logger.RequestIDFromContext(r.Context()))
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apierrors.NewValidationError("request body is required")
		}
		return apierrors.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}

// uuidParam parses the named chi URL parameter.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apierrors.NewValidationError("invalid " + name)
	}
	return id, nil
}

// actorID returns the authenticated user.
func actorID(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.GetUserID(r.Context())
	if !ok {
		return uuid.Nil, apierrors.NewUnauthorizedError("authentication required")
	}
	return id, nil
}

// actorAndParam resolves the actor and one uuid path parameter.
func actorAndParam(r *http.Request, name string) (uuid.UUID, uuid.UUID, error) {
	actor, err := actorID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuidParam(r, name)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return actor, id, nil
}
