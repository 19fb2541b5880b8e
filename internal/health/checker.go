// Package health tracks whether the storage the service depends on is
// reachable and reports it over gRPC health and HTTP.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported by the Checker.
const ServiceName = "cart-order-service"

// Pinger is one dependency to probe. The repository and *redis.Client
// (through RedisPinger) satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Checker struct {
	deps     map[string]Pinger
	server   *health.Server
	interval time.Duration
	timeout  time.Duration

	mu     sync.RWMutex
	status map[string]string
	ok     bool
}

func NewChecker(server *health.Server, deps map[string]Pinger) *Checker {
	return &Checker{
		deps:     deps,
		server:   server,
		interval: 5 * time.Second,
		timeout:  2 * time.Second,
		status:   make(map[string]string),
	}
}

// Run checks once immediately, then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.Check(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Check(ctx)
		case <-ctx.Done():
			c.server.Shutdown()
			return
		}
	}
}

// Check pings every dependency and updates the serving status.
func (c *Checker) Check(ctx context.Context) bool {
	status := make(map[string]string, len(c.deps))
	ok := true
	for name, dep := range c.deps {
		pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := dep.Ping(pingCtx)
		cancel()
		if err != nil {
			slog.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
			status[name] = err.Error()
			ok = false
			continue
		}
		status[name] = "ok"
	}

	c.mu.Lock()
	changed := c.ok != ok
	c.status = status
	c.ok = ok
	c.mu.Unlock()

	servingStatus := healthpb.HealthCheckResponse_SERVING
	if !ok {
		servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.server.SetServingStatus(ServiceName, servingStatus)
	c.server.SetServingStatus("", servingStatus)

	if changed {
		slog.InfoContext(ctx, "health status changed", "serving", ok)
	}
	return ok
}

func (c *Checker) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ok
}

type Response struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

// ServeHTTP reports the last check result: 200 when every dependency
// answered, 503 otherwise.
func (c *Checker) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	c.mu.RLock()
	resp := Response{Status: "ok", Dependencies: make(map[string]string, len(c.status))}
	for k, v := range c.status {
		resp.Dependencies[k] = v
	}
	ok := c.ok
	c.mu.RUnlock()

	code := http.StatusOK
	if !ok {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}
