// Package server exposes a rendezvous session over HTTP and a websocket state stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	rdv "github.com/orbitalarena/rendezvous"
	"github.com/orbitalarena/rendezvous/metrics"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Config holds the service settings loaded from environment variables.
type Config struct {
	Addr           string        // RDV_HTTP_ADDR (default: ":8080").
	Scenario       string        // RDV_SCENARIO, initial conditions file (default: built-in GEO scenario).
	StreamInterval time.Duration // RDV_STREAM_INTERVAL between websocket state frames (default: 1s).
}

// ConfigFromEnv reads the service settings.
func ConfigFromEnv() (Config, error) {
	cfg := Config{Addr: ":8080", StreamInterval: time.Second}
	if v := os.Getenv("RDV_HTTP_ADDR"); v != "" {
		cfg.Addr = v
	}
	cfg.Scenario = os.Getenv("RDV_SCENARIO")
	if v := os.Getenv("RDV_STREAM_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: RDV_STREAM_INTERVAL=%q", rdv.ErrInvalidConfig, v)
		}
		cfg.StreamInterval = d
	}
	return cfg, nil
}

// Server holds the HTTP server and the session it serves.
// The session is not safe for concurrent use, so every handler holds mu while using it.
type Server struct {
	mu             sync.Mutex
	session        *rdv.Session
	streamInterval time.Duration
	upgrader       websocket.Upgrader
	httpServer     *http.Server
	logger         kitlog.Logger
}

// New creates a configured HTTP server for the session. A nil logger discards logs.
func New(addr string, session *rdv.Session, streamInterval time.Duration, logger kitlog.Logger) *Server {
	if streamInterval <= 0 {
		streamInterval = time.Second
	}
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	s := &Server{
		session:        session,
		streamInterval: streamInterval,
		upgrader:       websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:         kitlog.With(logger, "subsys", "api"),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.publish()
	return s
}

// Handler returns the routes wrapped in the logging and metrics middlewares.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/state", s.handleState)
	mux.HandleFunc("POST /api/v1/step", s.handleStep)
	mux.HandleFunc("POST /api/v1/burn", s.handleBurn)
	mux.HandleFunc("POST /api/v1/preview", s.handlePreview)
	mux.HandleFunc("POST /api/v1/solve", s.handleSolve)
	mux.HandleFunc("POST /api/v1/sweep", s.handleSweep)
	mux.HandleFunc("POST /api/v1/rewind", s.handleRewind)
	mux.HandleFunc("POST /api/v1/reset", s.handleReset)
	mux.HandleFunc("GET /api/v1/snapshots", s.handleSnapshots)
	mux.HandleFunc("GET /api/v1/burns", s.handleBurns)
	mux.HandleFunc("GET /api/v1/history.csv", s.handleHistoryCSV)
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	var handler http.Handler = mux
	handler = loggingMiddleware(s.logger)(handler)
	return metrics.Middleware(handler)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// publish updates the session gauges, mu must be held or the server not yet shared.
func (s *Server) publish() {
	metrics.SetSession(s.session.FuelRemaining(), s.session.SimTime())
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

// statusOf maps the engine errors to HTTP status codes.
func statusOf(err error) int {
	var solverErr *rdv.SolverError
	switch {
	case errors.Is(err, rdv.ErrInsufficientFuel), errors.Is(err, rdv.ErrRewindOutOfRange):
		return http.StatusConflict
	case errors.As(err, &solverErr) && solverErr.Kind != rdv.InvalidInput:
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// vector converts an optional request vector, absent meaning zero.
func vector(name string, v []float64) (rdv.Vec3, error) {
	if v == nil {
		return rdv.Vec3{}, nil
	}
	out, err := rdv.Vec3FromSlice(v)
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	st := s.session.State()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

type stepRequest struct {
	DT float64 `json:"dt_s"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.Step(req.DT); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	s.publish()
	writeJSON(w, http.StatusOK, s.session.State())
}

type burnRequest struct {
	DVRIC []float64 `json:"dv_ric_ms"`
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req burnRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dv, err := rdv.Vec3FromSlice(req.DVRIC)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("dv_ric_ms: %w", err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.session.ApplyBurn(dv)
	metrics.RecordBurn(err == nil)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	s.publish()
	writeJSON(w, http.StatusOK, rec)
}

type previewRequest struct {
	DVRIC    []float64 `json:"dv_ric_ms"`
	Duration float64   `json:"duration_s"`
	Step     float64   `json:"step_s"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req := previewRequest{Step: 60}
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	dv, err := vector("dv_ric_ms", req.DVRIC)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	p, err := s.session.PreviewBurn(dv, req.Duration, req.Step)
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type solveRequest struct {
	OffsetRIC     []float64 `json:"offset_ric_m"`
	TOF           float64   `json:"tof_s"`
	MatchVelocity bool      `json:"match_velocity"`
	Guess         string    `json:"guess"`
	MaxIterations int       `json:"max_iterations"`
}

func (req solveRequest) options() (rdv.Vec3, rdv.SolveOptions, error) {
	offset, err := vector("offset_ric_m", req.OffsetRIC)
	if err != nil {
		return offset, rdv.SolveOptions{}, err
	}
	guess, err := rdv.ParseGuessMethod(req.Guess)
	if err != nil {
		return offset, rdv.SolveOptions{}, err
	}
	if req.MaxIterations < 0 {
		return offset, rdv.SolveOptions{}, fmt.Errorf("max_iterations may not be negative")
	}
	return offset, rdv.SolveOptions{MatchVelocity: req.MatchVelocity, MaxIterations: req.MaxIterations, Guess: guess}, nil
}

// solveResult labels a solve for the metrics.
func solveResult(err error) string {
	var solverErr *rdv.SolverError
	if errors.As(err, &solverErr) {
		return solverErr.Kind.String()
	}
	if err != nil {
		return "error"
	}
	return "converged"
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req solveRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offset, opts, err := req.options()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	sol, err := s.session.SolveInterceptBurn(offset, req.TOF, opts)
	s.mu.Unlock()
	metrics.RecordSolve(solveResult(err), sol.Iterations)
	if err != nil {
		s.logger.Log("level", "warning", "route", "solve", "err", err)
		writeJSON(w, statusOf(err), sol)
		return
	}
	writeJSON(w, http.StatusOK, sol)
}

type sweepRequest struct {
	solveRequest
	TOFMin float64 `json:"tof_min_s"`
	TOFMax float64 `json:"tof_max_s"`
	Steps  int     `json:"steps"`
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offset, opts, err := req.options()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	res, err := s.session.SweepInterceptTOF(r.Context(), offset, req.TOFMin, req.TOFMax, req.Steps, opts)
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	for _, sol := range res.All {
		result := "converged"
		if !sol.Converged {
			result = "not_converged"
		}
		metrics.RecordSolve(result, sol.Iterations)
	}
	writeJSON(w, http.StatusOK, res)
}

type rewindRequest struct {
	Time *float64 `json:"time_s"`
}

func (s *Server) handleRewind(w http.ResponseWriter, r *http.Request) {
	var req rewindRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Time == nil {
		writeError(w, http.StatusBadRequest, errors.New("time_s is required"))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.RewindTo(*req.Time); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	s.publish()
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Reset()
	s.publish()
	writeJSON(w, http.StatusOK, s.session.State())
}

// handleSnapshots serves the retained snapshots, optionally only the last ?limit=N.
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit parameter, must be a positive integer"))
			return
		}
		limit = n
	}
	s.mu.Lock()
	snaps := s.session.Snapshots()
	s.mu.Unlock()
	if limit > 0 && limit < len(snaps) {
		snaps = snaps[len(snaps)-limit:]
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleBurns(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	burns := s.session.Burns()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, burns)
}

func (s *Server) handleHistoryCSV(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snaps := s.session.Snapshots()
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/csv")
	if err := rdv.WriteHistoryCSV(w, snaps); err != nil {
		s.logger.Log("level", "error", "route", "history", "err", err)
	}
}

// handleStream pushes the session state over a websocket at most once per stream interval.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Log("level", "warning", "route", "stream", "err", err)
		return
	}
	defer conn.Close()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Reading is required to process the close frame.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	limiter := rate.NewLimiter(rate.Every(s.streamInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		s.mu.Lock()
		st := s.session.State()
		s.mu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(st); err != nil {
			s.logger.Log("level", "info", "route", "stream", "status", "closed", "err", err)
			return
		}
	}
}
