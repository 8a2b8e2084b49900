package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	apierrors "github.com/narvanalabs/resque/internal/api/errors"
	"github.com/narvanalabs/resque/internal/auth"
	"github.com/narvanalabs/resque/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func tokenService(expiry time.Duration) *auth.Service {
	return auth.NewService(&auth.Config{JWTSecret: []byte(testSecret), TokenExpiry: expiry}, nil)
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetUserID(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		apierrors.WriteJSON(w, http.StatusOK, map[string]string{
			"user_id": id.String(),
			"email":   GetUserEmail(r.Context()),
			"logged":  logger.UserIDFromContext(r.Context()),
		})
	})
}

func TestAuthenticate(t *testing.T) {
	svc := tokenService(time.Hour)
	userID := uuid.New()
	token, err := svc.GenerateToken(userID, "ada@example.com")
	require.NoError(t, err)

	expired, err := tokenService(-time.Minute).GenerateToken(userID, "ada@example.com")
	require.NoError(t, err)

	handler := NewAuthMiddleware(svc, nil).Authenticate(echoUser())

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
		msg    string
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK, ""},
		{"query param", func(r *http.Request) { r.URL.RawQuery = TokenQueryParam + "=" + token }, http.StatusOK, ""},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized, "missing authentication"},
		{"expired", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) }, http.StatusUnauthorized, "token has expired"},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer not.a.jwt") }, http.StatusUnauthorized, "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/projects", nil)
			tt.setup(req)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
				assert.Equal(t, userID.String(), body["user_id"])
				assert.Equal(t, "ada@example.com", body["email"])
				assert.Equal(t, userID.String(), body["logged"])
				return
			}
			var body apierrors.APIError
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, apierrors.CodeUnauthorized, body.Code)
			assert.Equal(t, tt.msg, body.Message)
		})
	}
}

func TestRecoveryWritesInternalError(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := chimiddleware.RequestID(Recovery(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/projects", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body apierrors.APIError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, apierrors.CodeInternalError, body.Code)
	assert.NotEmpty(t, body.RequestID)
	assert.Contains(t, buf.String(), "nil map write")
}

func TestRequestLoggerPropagatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, slog.LevelInfo, true)

	var seen string
	handler := chimiddleware.RequestID(RequestLogger(log.Logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotEmpty(t, seen)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, float64(http.StatusCreated), entry["status"])
	assert.Equal(t, seen, entry["request_id"])
}
