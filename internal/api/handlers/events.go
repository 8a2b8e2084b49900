package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/events"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/store"
)

// pingInterval keeps idle streams open through proxies.
const pingInterval = 15 * time.Second

// EventStreamHandler streams committed events and handler failures via
// Server-Sent Events.
type EventStreamHandler struct {
	broker *events.Broker
	uows   store.Provider
	logger *slog.Logger
}

// NewEventStreamHandler creates a new event stream handler.
func NewEventStreamHandler(broker *events.Broker, uows store.Provider, logger *slog.Logger) *EventStreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStreamHandler{broker: broker, uows: uows, logger: logger}
}

// Stream handles GET /v1/events.
//
// Query parameters: project_id (required), kind ("event" or "error") and
// type (a type prefix such as "requirement."). The actor must be a member
// of the project and only envelopes naming it are sent.
func (h *EventStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor, err := actorID(r)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	q := r.URL.Query()
	kind := q.Get("kind")
	if kind != "" && kind != message.KindEvent && kind != message.KindError {
		WriteBadRequest(w, r, "kind must be event or error")
		return
	}

	raw := q.Get("project_id")
	if raw == "" {
		WriteBadRequest(w, r, "project_id is required")
		return
	}
	projectID, err := uuid.Parse(raw)
	if err != nil {
		WriteBadRequest(w, r, "invalid project_id")
		return
	}
	err = h.uows.NewUnitOfWork().Do(r.Context(), func(ctx context.Context, tx store.Tx) error {
		_, err := memberProject(ctx, tx, projectID, actor)
		return err
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, h.logger, fmt.Errorf("streaming unsupported by %T", w))
		return
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := h.broker.Subscribe(kind, q.Get("type"))
	defer h.broker.Unsubscribe(sub)

	h.logger.InfoContext(r.Context(), "event stream started", "subscriber_id", sub.ID, "kind", kind, "type", sub.TypePrefix)
	h.send(w, flusher, "connected", "", map[string]string{"subscriber_id": sub.ID})

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.InfoContext(ctx, "event stream closed by client", "subscriber_id", sub.ID)
			return
		case <-ping.C:
			h.send(w, flusher, "ping", "", map[string]int64{"time": time.Now().Unix()})
		case env, open := <-sub.Ch:
			if !open {
				return
			}
			if !namesProject(env, projectID) {
				continue
			}
			h.send(w, flusher, env.Kind, env.ID.String(), env)
		}
	}
}

func (h *EventStreamHandler) send(w http.ResponseWriter, f http.Flusher, event, id string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal stream event", "error", err, "event", event)
		return
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	f.Flush()
}

func namesProject(env *message.Envelope, projectID uuid.UUID) bool {
	var ref struct {
		ProjectID uuid.UUID `json:"project_id"`
	}
	if err := json.Unmarshal(env.Payload, &ref); err != nil {
		return false
	}
	return ref.ProjectID == projectID
}
