// Package health reports whether the API's backing services are reachable.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the state of one component or of the service as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentStatus is the result of pinging one component.
type ComponentStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the body of GET /health.
type Response struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
}

// Pinger is anything that can prove it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type probe struct {
	Pinger
	critical bool
}

// Checker pings registered components concurrently.
type Checker struct {
	version string
	started time.Time

	mu      sync.RWMutex
	probes  map[string]probe
	timeout time.Duration
}

// NewChecker creates a Checker with a five second ping budget.
func NewChecker(version string) *Checker {
	return &Checker{
		version: version,
		started: time.Now(),
		probes:  make(map[string]probe),
		timeout: 5 * time.Second,
	}
}

// Register adds or replaces a component. When a critical component fails
// the service is unhealthy; any other failure only degrades it.
func (c *Checker) Register(name string, p Pinger, critical bool) {
	c.mu.Lock()
	c.probes[name] = probe{Pinger: p, critical: critical}
	c.mu.Unlock()
}

// SetTimeout bounds each Check.
func (c *Checker) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// Check pings every component and folds the results into one status.
func (c *Checker) Check(ctx context.Context) *Response {
	c.mu.RLock()
	probes := make(map[string]probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	timeout := c.timeout
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]ComponentStatus, len(probes))
	var g errgroup.Group
	for name, p := range probes {
		g.Go(func() error {
			st := ping(ctx, name, p.Pinger)
			mu.Lock()
			results[name] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	for name, st := range results {
		if st.Status == StatusHealthy {
			continue
		}
		if probes[name].critical {
			overall = StatusUnhealthy
			continue
		}
		st.Status = StatusDegraded
		results[name] = st
		if overall == StatusHealthy {
			overall = StatusDegraded
		}
	}

	return &Response{
		Status:     overall,
		Components: results,
		Version:    c.version,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
	}
}

func ping(ctx context.Context, name string, p Pinger) ComponentStatus {
	if p == nil {
		return ComponentStatus{Status: StatusUnhealthy, Message: name + " not configured"}
	}
	if err := p.Ping(ctx); err != nil {
		return ComponentStatus{Status: StatusUnhealthy, Message: name + " ping failed: " + err.Error()}
	}
	return ComponentStatus{Status: StatusHealthy, Message: "connected"}
}

// Handler serves Check as JSON, with 503 when the service is unhealthy.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := c.Check(r.Context())
		code := http.StatusOK
		if resp.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
