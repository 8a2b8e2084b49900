package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/narvanalabs/resque/internal/auth"
	"github.com/narvanalabs/resque/internal/bus"
	"github.com/narvanalabs/resque/internal/events"
	"github.com/narvanalabs/resque/internal/idgen"
	"github.com/narvanalabs/resque/internal/service"
	"github.com/narvanalabs/resque/internal/store/memory"
	"github.com/narvanalabs/resque/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	t      *testing.T
	server *httptest.Server
	broker *events.Broker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hasher, err := auth.NewBcryptHasher(4)
	require.NoError(t, err)
	tokens := auth.NewService(&auth.Config{
		JWTSecret:   []byte("0123456789abcdef0123456789abcdef"),
		TokenExpiry: time.Hour,
	}, nil)

	reg := bus.NewRegistry()
	require.NoError(t, service.Register(reg, service.Dependencies{
		Hasher: hasher,
		IDs:    idgen.UUIDv7{},
		Tokens: tokens,
	}))
	broker := events.NewBroker(nil)

	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, Dependencies{
		Bus:    bus.New(reg, bus.WithSink(broker)),
		Store:  memory.New(),
		Broker: broker,
		Tokens: tokens,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		broker.Close()
		ts.Close()
	})
	return &testEnv{t: t, server: ts, broker: broker}
}

// call sends a JSON request and decodes the response into out when given.
func (e *testEnv) call(method, path, token string, body any, out any) int {
	e.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	require.NoError(e.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type userResp struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Status   string `json:"status"`
	Password string `json:"password"`
}

type errorResp struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	RequestID string         `json:"request_id"`
}

type projectResp struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Members []struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	} `json:"members"`
	Invitations []struct {
		Code string `json:"code"`
	} `json:"invitations"`
}

type requirementResp struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"project_id"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	Priority     int      `json:"priority"`
	Tags         []string `json:"tags"`
	AssigneeID   *string  `json:"assignee_id"`
	Predecessors []string `json:"predecessors"`
}

func (e *testEnv) signUp(email string) (userResp, string) {
	e.t.Helper()
	var u userResp
	require.Equal(e.t, http.StatusCreated, e.call(http.MethodPost, "/auth/register", "",
		map[string]string{"email": email, "password": "correct horse battery"}, &u))

	var login service.LoginResult
	require.Equal(e.t, http.StatusOK, e.call(http.MethodPost, "/auth/login", "",
		map[string]string{"email": email, "password": "correct horse battery"}, &login))
	require.NotEmpty(e.t, login.AccessToken)
	return u, login.AccessToken
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ada, token := env.signUp("ada@example.com")
	assert.Equal(t, "ada@example.com", ada.Email)
	assert.Empty(t, ada.Password)

	var errBody errorResp
	status := env.call(http.MethodPost, "/auth/register", "",
		map[string]string{"email": "ada@example.com", "password": "another long one"}, &errBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errBody.Code)
	assert.NotEmpty(t, errBody.RequestID)

	status = env.call(http.MethodPost, "/auth/login", "",
		map[string]string{"email": "ada@example.com", "password": "wrong password!"}, &errBody)
	assert.Equal(t, http.StatusUnauthorized, status)

	status = env.call(http.MethodPost, "/auth/register", "",
		map[string]string{"email": "not-an-email", "password": "correct horse battery"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_EMAIL", errBody.Details["reason"])

	var me userResp
	require.Equal(t, http.StatusOK, env.call(http.MethodGet, "/v1/users/me", token, nil, &me))
	assert.Equal(t, ada.ID, me.ID)
}

func TestV1RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	var errBody errorResp
	assert.Equal(t, http.StatusUnauthorized, env.call(http.MethodGet, "/v1/projects", "", nil, &errBody))
	assert.Equal(t, "UNAUTHORIZED", errBody.Code)
}

func TestProjectMembershipFlow(t *testing.T) {
	env := newTestEnv(t)
	_, adaToken := env.signUp("ada@example.com")
	bob, bobToken := env.signUp("bob@example.com")

	var project projectResp
	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, "/v1/projects", adaToken,
		map[string]string{"title": "Launch", "description": "first release"}, &project))
	assert.Equal(t, "active", project.Status)

	var errBody errorResp
	assert.Equal(t, http.StatusForbidden, env.call(http.MethodGet, "/v1/projects/"+project.ID, bobToken, nil, &errBody))

	var inv struct {
		Code   string `json:"code"`
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, "/v1/projects/"+project.ID+"/invitations", adaToken,
		map[string]string{"email": "bob@example.com", "role": "member"}, &inv))
	require.NotEmpty(t, inv.Code)

	var member struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	require.Equal(t, http.StatusOK, env.call(http.MethodPost, "/v1/projects/"+project.ID+"/invitations/accept", bobToken,
		map[string]string{"code": inv.Code}, &member))
	assert.Equal(t, bob.ID, member.UserID)
	assert.Equal(t, "member", member.Role)

	assert.Equal(t, http.StatusUnprocessableEntity, env.call(http.MethodPost, "/v1/projects/"+project.ID+"/invitations/accept", bobToken,
		map[string]string{"code": inv.Code}, &errBody))

	var seen projectResp
	require.Equal(t, http.StatusOK, env.call(http.MethodGet, "/v1/projects/"+project.ID, bobToken, nil, &seen))
	assert.Len(t, seen.Members, 2)
	assert.Empty(t, seen.Invitations, "members do not see invitation codes")

	require.Equal(t, http.StatusOK, env.call(http.MethodGet, "/v1/projects/"+project.ID, adaToken, nil, &seen))
	assert.Len(t, seen.Invitations, 1)

	var list []projectResp
	require.Equal(t, http.StatusOK, env.call(http.MethodGet, "/v1/projects", bobToken, nil, &list))
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusForbidden, env.call(http.MethodPatch, "/v1/projects/"+project.ID+"/status", bobToken,
		map[string]string{"status": "closed"}, &errBody))
	require.Equal(t, http.StatusOK, env.call(http.MethodPatch, "/v1/projects/"+project.ID+"/status", adaToken,
		map[string]string{"status": "closed"}, &seen))
	assert.Equal(t, "closed", seen.Status)

	require.Equal(t, http.StatusOK, env.call(http.MethodDelete, "/v1/projects/"+project.ID+"/members/"+bob.ID, adaToken, nil, &seen))
	assert.Len(t, seen.Members, 1)
}

func TestRequirementLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ada, token := env.signUp("ada@example.com")

	var project projectResp
	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, "/v1/projects", token,
		map[string]string{"title": "Launch"}, &project))
	base := "/v1/projects/" + project.ID + "/requirements"

	var schema, api requirementResp
	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, base, token,
		map[string]any{"title": "Schema", "description": "design the tables", "priority": 1}, &schema))
	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, base, token,
		map[string]any{"title": "API", "description": "expose endpoints", "priority": 2}, &api))
	assert.Equal(t, "todo", schema.Status)

	var errBody errorResp
	assert.Equal(t, http.StatusBadRequest, env.call(http.MethodPost, base, token,
		map[string]any{"title": "X", "description": "too short a title", "priority": 1}, &errBody))
	assert.Equal(t, "INVALID_TITLE", errBody.Details["reason"])

	reqPath := "/v1/requirements/" + api.ID
	require.Equal(t, http.StatusOK, env.call(http.MethodPost, reqPath+"/predecessors", token,
		map[string]string{"predecessor_id": schema.ID}, &api))
	assert.Equal(t, []string{schema.ID}, api.Predecessors)

	assert.Equal(t, http.StatusUnprocessableEntity, env.call(http.MethodPost, "/v1/requirements/"+schema.ID+"/predecessors", token,
		map[string]string{"predecessor_id": api.ID}, &errBody))
	assert.Equal(t, "DEPENDENCY_CYCLE", errBody.Details["reason"])

	require.Equal(t, http.StatusOK, env.call(http.MethodPost, reqPath+"/tags", token,
		map[string]string{"tag": "backend"}, &api))
	var tagged []requirementResp
	require.Equal(t, http.StatusOK, env.call(http.MethodGet, base+"?tag=backend", token, nil, &tagged))
	require.Len(t, tagged, 1)
	assert.Equal(t, api.ID, tagged[0].ID)

	var all []requirementResp
	require.Equal(t, http.StatusOK, env.call(http.MethodGet, base, token, nil, &all))
	assert.Len(t, all, 2)

	require.Equal(t, http.StatusOK, env.call(http.MethodDelete, reqPath+"/tags/backend", token, nil, &api))
	assert.Empty(t, api.Tags)

	assert.Equal(t, http.StatusUnprocessableEntity, env.call(http.MethodPatch, "/v1/requirements/"+schema.ID+"/status", token,
		map[string]string{"status": "done"}, &errBody))
	assert.Equal(t, "INVALID_STATUS_TRANSITION", errBody.Details["reason"])

	require.Equal(t, http.StatusOK, env.call(http.MethodPatch, reqPath+"/priority", token,
		map[string]int{"priority": 3}, &api))
	assert.Equal(t, 3, api.Priority)

	require.Equal(t, http.StatusOK, env.call(http.MethodPut, reqPath+"/assignee", token,
		map[string]string{"assignee_id": ada.ID}, &api))
	require.NotNil(t, api.AssigneeID)
	assert.Equal(t, ada.ID, *api.AssigneeID)

	var comment struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}
	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, reqPath+"/comments", token,
		map[string]string{"content": "needs a migration"}, &comment))
	require.Equal(t, http.StatusOK, env.call(http.MethodPatch, reqPath+"/comments/"+comment.ID, token,
		map[string]string{"content": "needs two migrations"}, &comment))
	assert.Equal(t, "needs two migrations", comment.Content)

	require.Equal(t, http.StatusOK, env.call(http.MethodDelete, reqPath+"/predecessors/"+schema.ID, token, nil, &api))
	assert.Empty(t, api.Predecessors)

	var fetched requirementResp
	require.Equal(t, http.StatusOK, env.call(http.MethodGet, reqPath, token, nil, &fetched))
	assert.Equal(t, "API", fetched.Title)

	assert.Equal(t, http.StatusNotFound, env.call(http.MethodGet, "/v1/requirements/"+project.ID, token, nil, &errBody))
	assert.Equal(t, http.StatusBadRequest, env.call(http.MethodGet, "/v1/requirements/not-a-uuid", token, nil, &errBody))
}

// stream opens an event stream and returns a reader yielding one
// (event, data) pair per call.
func (e *testEnv) stream(query, token string) func() (string, string) {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	e.t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.server.URL+"/v1/events?"+query+"&access_token="+token, nil)
	require.NoError(e.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { resp.Body.Close() })
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	assert.Equal(e.t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	return func() (string, string) {
		var event, data string
		for lines.Scan() {
			line := lines.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
		return "", ""
	}
}

func TestEventStreamDeliversCascade(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signUp("ada@example.com")

	var project projectResp
	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, "/v1/projects", token,
		map[string]string{"title": "Launch"}, &project))
	base := "/v1/projects/" + project.ID + "/requirements"
	var first, second requirementResp
	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, base, token,
		map[string]any{"title": "First", "description": "comes first", "priority": 1}, &first))
	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, base, token,
		map[string]any{"title": "Second", "description": "comes second", "priority": 1}, &second))
	require.Equal(t, http.StatusOK, env.call(http.MethodPost, "/v1/requirements/"+second.ID+"/predecessors", token,
		map[string]string{"predecessor_id": first.ID}, &second))

	next := env.stream("type=requirement.&project_id="+project.ID, token)

	event, _ := next()
	require.Equal(t, "connected", event)

	for _, status := range []string{"in_progress", "done"} {
		require.Equal(t, http.StatusOK, env.call(http.MethodPatch, "/v1/requirements/"+first.ID+"/status", token,
			map[string]string{"status": status}, &first))
	}

	var types []string
	for len(types) < 3 {
		event, data := next()
		require.Equal(t, "event", event)
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal([]byte(data), &env))
		types = append(types, env.Type)
	}
	assert.Equal(t, []string{
		"requirement.status_changed",
		"requirement.status_changed",
		"requirement.unblocked",
	}, types)
}

func TestEventStreamIsScopedToMembersProject(t *testing.T) {
	env := newTestEnv(t)
	_, owner := env.signUp("owner@example.com")
	_, stranger := env.signUp("stranger@example.com")

	var secret, other projectResp
	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, "/v1/projects", owner,
		map[string]string{"title": "Secret plan"}, &secret))
	var errBody errorResp
	assert.Equal(t, http.StatusBadRequest, env.call(http.MethodGet, "/v1/events?access_token="+stranger, "", nil, &errBody))
	assert.Equal(t, http.StatusForbidden, env.call(http.MethodGet, "/v1/events?project_id="+secret.ID+"&access_token="+stranger, "", nil, &errBody))

	next := env.stream("project_id="+secret.ID, owner)
	event, _ := next()
	require.Equal(t, "connected", event)

	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, "/v1/projects", owner,
		map[string]string{"title": "Elsewhere"}, &other))
	var req requirementResp
	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, "/v1/projects/"+other.ID+"/requirements", owner,
		map[string]any{"title": "Unrelated", "description": "in another project", "priority": 1}, &req))
	require.Equal(t, http.StatusCreated, env.call(http.MethodPost, "/v1/projects/"+secret.ID+"/requirements", owner,
		map[string]any{"title": "Scoped", "description": "in the streamed project", "priority": 1}, &req))
	require.Equal(t, http.StatusOK, env.call(http.MethodPost, "/v1/requirements/"+req.ID+"/tags", owner,
		map[string]string{"tag": "urgent"}, &req))

	var got []string
	for len(got) < 2 {
		event, data := next()
		require.Equal(t, "event", event)
		var envelope struct {
			Type    string `json:"type"`
			Payload struct {
				ProjectID string `json:"project_id"`
			} `json:"payload"`
		}
		require.NoError(t, json.Unmarshal([]byte(data), &envelope))
		assert.Equal(t, secret.ID, envelope.Payload.ProjectID)
		got = append(got, envelope.Type)
	}
	assert.Equal(t, []string{"requirement.created", "requirement.tagged"}, got)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	require.Equal(t, http.StatusOK, env.call(http.MethodGet, "/health", "", nil, &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, Version, body.Version)
}
