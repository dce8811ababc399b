package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "/healthz"},
		{"/metrics", "/metrics"},
		{"/api/v1/state", "/api/v1/state"},
		{"/api/v1/solve/", "/api/v1/solve"},
		{"/api/v1/stream", "/api/v1/stream"},
		{"/", "other"},
		{"/wp-admin", "other"},
		{"/api/v2/state", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizeRoute(tt.path); got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("other", "GET", "418"))
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/teapot", nil))
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("other", "GET", "418")) - before; got != 3 {
		t.Errorf("counted %f requests, want 3", got)
	}
}

func TestRecorders(t *testing.T) {
	RecordSolve("converged", 4)
	RecordSolve("invalid", 0)
	RecordBurn(true)
	RecordBurn(false)
	RecordBurn(false)
	SetSession(12.5, 3600)
	if got := testutil.ToFloat64(burnsTotal.WithLabelValues("rejected")); got < 2 {
		t.Errorf("rejected burns = %f", got)
	}
	if got := testutil.ToFloat64(fuelRemaining); got != 12.5 {
		t.Errorf("fuel gauge = %f", got)
	}
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	for _, name := range []string{"rdv_solver_solves_total", "rdv_solver_iterations", "rdv_sim_time_seconds"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("%s not exported", name)
		}
	}
}
