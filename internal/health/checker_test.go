package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func servingStatus(t *testing.T, s *health.Server) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	return resp.Status
}

func TestChecker_AllHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	server := health.NewServer()
	checker := NewChecker(server, map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    RedisPinger(client),
	})

	assert.True(t, checker.Check(context.Background()))
	assert.True(t, checker.Healthy())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, server))

	rec := httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, resp.Dependencies)
}

func TestChecker_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	server := health.NewServer()
	checker := NewChecker(server, map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    RedisPinger(client),
	})
	require.True(t, checker.Check(context.Background()))

	mr.Close()

	assert.False(t, checker.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, server))

	rec := httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, "ok", resp.Dependencies["postgres"])
	assert.NotEqual(t, "ok", resp.Dependencies["redis"])
}

func TestChecker_Recovers(t *testing.T) {
	var pgErr error = errors.New("connection refused")
	server := health.NewServer()
	checker := NewChecker(server, map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return pgErr }),
	})

	assert.False(t, checker.Check(context.Background()))

	pgErr = nil
	assert.True(t, checker.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, server))
}

func TestChecker_NotHealthyBeforeFirstCheck(t *testing.T) {
	checker := NewChecker(health.NewServer(), nil)

	rec := httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	server := health.NewServer()
	checker := NewChecker(server, map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
	})
	checker.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, checker.Healthy, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("checker did not stop after cancel")
	}
	// Shutdown marks everything NOT_SERVING
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, server))
}
