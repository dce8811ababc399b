package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/gorilla/websocket"

	rdv "github.com/orbitalarena/rendezvous"
)

func testServer(t *testing.T, budget float64) *Server {
	t.Helper()
	ic := rdv.NewGEOInitialConditions(-rdv.Rad2deg(1000/rdv.GEORadius), budget)
	sess, err := rdv.NewSession(ic, rdv.DefaultConfig(), kitlog.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	return New("127.0.0.1:0", sess, 10*time.Millisecond, kitlog.NewNopLogger())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	h := testServer(t, 50).Handler()
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"health", "GET", "/healthz", "", http.StatusOK},
		{"metrics", "GET", "/metrics", "", http.StatusOK},
		{"state", "GET", "/api/v1/state", "", http.StatusOK},
		{"step", "POST", "/api/v1/step", `{"dt_s": 60}`, http.StatusOK},
		{"step negative", "POST", "/api/v1/step", `{"dt_s": -1}`, http.StatusBadRequest},
		{"step unknown field", "POST", "/api/v1/step", `{"dt": 60}`, http.StatusBadRequest},
		{"step wrong method", "GET", "/api/v1/step", "", http.StatusMethodNotAllowed},
		{"burn", "POST", "/api/v1/burn", `{"dv_ric_ms": [0, 0.1, 0]}`, http.StatusOK},
		{"burn short vector", "POST", "/api/v1/burn", `{"dv_ric_ms": [0, 0.1]}`, http.StatusBadRequest},
		{"burn too large", "POST", "/api/v1/burn", `{"dv_ric_ms": [0, 100, 0]}`, http.StatusConflict},
		{"preview", "POST", "/api/v1/preview", `{"dv_ric_ms": [0, 0.1, 0], "duration_s": 600}`, http.StatusOK},
		{"preview too long", "POST", "/api/v1/preview", `{"duration_s": 1e9, "step_s": 1}`, http.StatusBadRequest},
		{"solve", "POST", "/api/v1/solve", `{"tof_s": 3600, "match_velocity": true}`, http.StatusOK},
		{"solve bad tof", "POST", "/api/v1/solve", `{"tof_s": 0}`, http.StatusBadRequest},
		{"solve bad guess", "POST", "/api/v1/solve", `{"tof_s": 3600, "guess": "magic"}`, http.StatusBadRequest},
		{"solve not converged", "POST", "/api/v1/solve", `{"tof_s": 3600, "offset_ric_m": [0, 5e6, 0], "max_iterations": 1}`, http.StatusUnprocessableEntity},
		{"sweep", "POST", "/api/v1/sweep", `{"tof_min_s": 1800, "tof_max_s": 3600, "steps": 2, "guess": "cw"}`, http.StatusOK},
		{"sweep bad bounds", "POST", "/api/v1/sweep", `{"tof_min_s": 3600, "tof_max_s": 1800, "steps": 2}`, http.StatusBadRequest},
		{"rewind", "POST", "/api/v1/rewind", `{"time_s": 30}`, http.StatusOK},
		{"rewind future", "POST", "/api/v1/rewind", `{"time_s": 1e6}`, http.StatusConflict},
		{"rewind missing", "POST", "/api/v1/rewind", `{}`, http.StatusBadRequest},
		{"snapshots", "GET", "/api/v1/snapshots?limit=5", "", http.StatusOK},
		{"snapshots bad limit", "GET", "/api/v1/snapshots?limit=x", "", http.StatusBadRequest},
		{"burns", "GET", "/api/v1/burns", "", http.StatusOK},
		{"history", "GET", "/api/v1/history.csv", "", http.StatusOK},
		{"reset", "POST", "/api/v1/reset", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestSolveAndBurn(t *testing.T) {
	h := testServer(t, 50).Handler()
	w := do(t, h, "POST", "/api/v1/solve", `{"tof_s": 3600, "match_velocity": true}`)
	var sol rdv.Solution
	if err := json.NewDecoder(w.Body).Decode(&sol); err != nil {
		t.Fatal(err)
	}
	if !sol.Valid || !sol.HasFuel || sol.FinalPosErr >= 1 {
		t.Fatalf("unexpected solution %+v", sol)
	}
	body, _ := json.Marshal(map[string]interface{}{"dv_ric_ms": sol.DV1RIC})
	if w := do(t, h, "POST", "/api/v1/burn", string(body)); w.Code != http.StatusOK {
		t.Fatalf("burn failed: %s", w.Body.String())
	}
	w = do(t, h, "POST", "/api/v1/step", `{"dt_s": 3600}`)
	var st rdv.StateReport
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Range > 1.5 || st.BurnCount != 1 || st.SimTime != 3600 {
		t.Fatalf("unexpected state after the intercept: range=%f burns=%d t=%f", st.Range, st.BurnCount, st.SimTime)
	}

	w = do(t, h, "GET", "/api/v1/snapshots?limit=2", "")
	var snaps []rdv.Snapshot
	json.NewDecoder(w.Body).Decode(&snaps)
	if len(snaps) != 2 || snaps[1].Time != 3600 {
		t.Fatalf("unexpected snapshots %+v", snaps)
	}
}

func TestSolveFailureCarriesSolution(t *testing.T) {
	h := testServer(t, 50).Handler()
	w := do(t, h, "POST", "/api/v1/solve", `{"tof_s": 3600, "offset_ric_m": [0, 5e6, 0], "max_iterations": 1}`)
	var sol rdv.Solution
	if err := json.NewDecoder(w.Body).Decode(&sol); err != nil {
		t.Fatal(err)
	}
	if sol.Valid || !strings.HasPrefix(sol.Error, "Did not converge after 1 iterations") {
		t.Fatalf("unexpected failed solution %+v", sol)
	}
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(testServer(t, 50).Handler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	for i := 0; i < 3; i++ {
		var st rdv.StateReport
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatal(err)
		}
		if st.FuelBudget != 50 {
			t.Fatalf("unexpected frame %+v", st)
		}
	}
}

func TestNilLogger(t *testing.T) {
	sess, err := rdv.NewSession(rdv.NewGEOInitialConditions(1, 10), rdv.DefaultConfig(), kitlog.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	h := New("127.0.0.1:0", sess, time.Second, nil).Handler()
	if w := do(t, h, "POST", "/api/v1/step", `{"dt_s": 10}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("RDV_HTTP_ADDR", ":9999")
	t.Setenv("RDV_SCENARIO", "")
	t.Setenv("RDV_STREAM_INTERVAL", "250ms")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9999" || cfg.StreamInterval != 250*time.Millisecond || cfg.Scenario != "" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	t.Setenv("RDV_STREAM_INTERVAL", "-1s")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("negative stream interval accepted")
	}
}
