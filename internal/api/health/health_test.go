package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = PingFunc(func(context.Context) error { return nil })

func failing(msg string) Pinger {
	return PingFunc(func(context.Context) error { return errors.New(msg) })
}

func TestCheckAggregatesComponents(t *testing.T) {
	tests := []struct {
		name     string
		database Pinger
		redis    Pinger
		want     Status
	}{
		{"all up", ok, ok, StatusHealthy},
		{"optional down", ok, failing("connection refused"), StatusDegraded},
		{"critical down", failing("no route"), ok, StatusUnhealthy},
		{"critical missing", nil, ok, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("test")
			c.Register("database", tt.database, true)
			c.Register("redis", tt.redis, false)

			resp := c.Check(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Components, 2)
			assert.Equal(t, "test", resp.Version)
		})
	}
}

func TestCheckRespectsTimeout(t *testing.T) {
	c := NewChecker("test")
	c.SetTimeout(20 * time.Millisecond)
	c.Register("database", PingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), true)

	start := time.Now()
	resp := c.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Components["database"].Message, "deadline exceeded")
}

func TestHandlerStatusCodes(t *testing.T) {
	c := NewChecker("test")
	c.Register("database", ok, true)
	c.Register("redis", failing("down"), false)

	rr := httptest.NewRecorder()
	c.Handler()(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body Response
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, StatusDegraded, body.Status)
	assert.Equal(t, StatusDegraded, body.Components["redis"].Status)

	c.Register("database", failing("down"), true)
	rr = httptest.NewRecorder()
	c.Handler()(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
