package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (p fakePinger) PingContext(ctx context.Context) error {
	return p.err
}

func staticCheck(status HealthStatus) HealthChecker {
	return NewCustomHealthChecker(func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: status}
	})
}

func TestHealthManager_CheckHealth(t *testing.T) {
	tests := []struct {
		name     string
		checks   map[string]HealthChecker
		expected HealthStatus
	}{
		{"no checks", nil, HealthStatusHealthy},
		{"all healthy", map[string]HealthChecker{
			"database": NewDatabaseHealthChecker(fakePinger{}),
			"cache":    staticCheck(HealthStatusHealthy),
		}, HealthStatusHealthy},
		{"degraded", map[string]HealthChecker{
			"database": NewDatabaseHealthChecker(fakePinger{}),
			"backend":  staticCheck(HealthStatusDegraded),
		}, HealthStatusDegraded},
		{"unhealthy wins", map[string]HealthChecker{
			"database": NewDatabaseHealthChecker(fakePinger{err: errors.New("connection refused")}),
			"backend":  staticCheck(HealthStatusDegraded),
		}, HealthStatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm := NewHealthManager("statistics-test", "1.0.0")
			for name, checker := range tt.checks {
				hm.RegisterChecker(name, checker)
			}

			report := hm.CheckHealth(context.Background())
			assert.Equal(t, tt.expected, report.Status)
			assert.Len(t, report.Checks, len(tt.checks))
			assert.Equal(t, "statistics-test", report.Service)
			for _, check := range report.Checks {
				assert.NotEmpty(t, check.Name)
			}
		})
	}
}

func TestHealthManager_HTTPHandler(t *testing.T) {
	hm := NewHealthManager("statistics-test", "1.0.0")
	hm.RegisterChecker("database", NewDatabaseHealthChecker(fakePinger{}))

	rec := httptest.NewRecorder()
	hm.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, HealthStatusHealthy, report.Status)

	hm.RegisterChecker("database", NewDatabaseHealthChecker(fakePinger{err: errors.New("down")}))
	rec = httptest.NewRecorder()
	hm.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHTTPHealthChecker(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected HealthStatus
	}{
		{"ok", http.StatusOK, HealthStatusHealthy},
		{"client error", http.StatusNotFound, HealthStatusDegraded},
		{"server error", http.StatusBadGateway, HealthStatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			check := NewHTTPHealthChecker(server.URL, 0).Check(context.Background())
			assert.Equal(t, tt.expected, check.Status)
			assert.Equal(t, tt.status, check.Details["status_code"])
		})
	}
}

func TestHTTPHealthChecker_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	check := NewHTTPHealthChecker(url, 0).Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, check.Status)
}
