package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(t *testing.T) {
	t.Helper()
	healthChecker = newHealthChecker()
}

func TestGetHealth(t *testing.T) {
	resetHealth(t)
	SetVersion("1.0.0")

	UpdateComponent("rpc", true, "")
	UpdateComponent("store", true, "")

	health := GetHealth()
	assert.Equal(t, "healthy", health.Status)
	assert.Len(t, health.Components, 2)
	assert.Equal(t, "1.0.0", health.Version)

	UpdateComponent("store", false, "etcd unreachable")
	health = GetHealth()
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "unhealthy: etcd unreachable", health.Components["store"])
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name     string
		critical []string
		setup    func()
		expected string
	}{
		{
			name:     "critical component ready",
			critical: []string{"rpc"},
			setup:    func() { UpdateComponent("rpc", true, "") },
			expected: "ready",
		},
		{
			name:     "critical component missing",
			critical: []string{"rpc", "store"},
			setup:    func() { UpdateComponent("rpc", true, "") },
			expected: "not_ready",
		},
		{
			name:     "critical component unhealthy",
			critical: []string{"rpc"},
			setup:    func() { UpdateComponent("rpc", false, "listen failed") },
			expected: "not_ready",
		},
		{
			name:     "non-critical component ignored",
			critical: []string{"rpc"},
			setup: func() {
				UpdateComponent("rpc", true, "")
				UpdateComponent("store", false, "closed")
			},
			expected: "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			SetCriticalComponents(tt.critical...)
			tt.setup()

			readiness := GetReadiness()
			assert.Equal(t, tt.expected, readiness.Status)
			if tt.expected != "ready" {
				assert.NotEmpty(t, readiness.Message)
			}
		})
	}
}

func TestHandlers(t *testing.T) {
	resetHealth(t)
	UpdateComponent("rpc", false, "starting")

	mux := NewMux()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	UpdateComponent("rpc", true, "")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "alive", body["status"])

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "flock_progress_percent")
}
