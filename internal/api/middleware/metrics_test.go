package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/agentoven/psymarket/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	route  string
	method string
	status int
}

type recorder struct {
	mu  sync.Mutex
	obs []observation
}

func (r *recorder) RecordHTTPRequest(route, method string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{route, method, status})
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	rec := &recorder{}
	r := chi.NewRouter()
	r.Use(middleware.Metrics(rec))
	r.Get("/api/v1/analyses/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, target := range []string{"/api/v1/analyses/a1", "/api/v1/analyses/b2", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	require.Len(t, rec.obs, 3)
	assert.Equal(t, observation{"/api/v1/analyses/{id}", http.MethodGet, http.StatusNotFound}, rec.obs[0])
	assert.Equal(t, rec.obs[0], rec.obs[1], "ids collapse into the pattern")
	assert.Equal(t, "unmatched", rec.obs[2].route)
}
