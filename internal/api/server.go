// Package api serves stored simulation runs, their timelines and sweep
// results over HTTP, and controls the background sweep runner.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/v2x.sim/internal/config"
	"github.com/banshee-data/v2x.sim/internal/db"
	"github.com/banshee-data/v2x.sim/internal/httputil"
	"github.com/banshee-data/v2x.sim/internal/report"
	"github.com/banshee-data/v2x.sim/internal/sweep"
	"github.com/banshee-data/v2x.sim/internal/traffic/engine"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// maxListLimit caps ?limit on run listings.
const maxListLimit = 1000

// maxRequestBody caps the size of a sweep start request.
const maxRequestBody = 1 << 20

// Store is the persistence the API reads. *db.DB implements it.
type Store interface {
	ListRuns(limit int) ([]db.SimRun, error)
	GetRun(runID string) (*db.SimRun, error)
	DeleteRun(runID string) error
	Timeline(runID string, every int) ([]db.TimelineRow, error)
	SweepResults(sweepID string) ([]db.SweepResult, error)
}

type Server struct {
	store  Store
	sweeps *sweep.Runner
}

// NewServer returns a server over store. sweeps may be nil, in which case
// the sweep control routes answer 503.
func NewServer(store Store, sweeps *sweep.Runner) *Server {
	return &Server{store: store, sweeps: sweeps}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/", s.handleRunByID)
	mux.HandleFunc("/api/sweeps/", s.showSweep)
	mux.HandleFunc("/api/sweep/status", s.sweepStatus)
	mux.HandleFunc("/api/sweep/start", s.startSweep)
	mux.HandleFunc("/api/sweep/stop", s.stopSweep)
	mux.HandleFunc("/api/config/defaults", s.showDefaults)
	mux.HandleFunc("/charts/runs/", s.runChart)
	return mux
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string, def, max int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("invalid '%s' parameter", name)
	}
	return n, nil
}

// storeError maps a store error to a response.
func storeError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, what+" not found")
		return
	}
	httputil.InternalServerError(w, fmt.Sprintf("failed to load %s: %v", what, err))
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, err := queryInt(r, "limit", 100, maxListLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		storeError(w, "runs", err)
		return
	}
	httputil.WriteJSONOK(w, runs)
}

// handleRunByID serves /api/runs/{id} and /api/runs/{id}/timeline.
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		httputil.BadRequest(w, "missing run id")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			run, err := s.store.GetRun(id)
			if err != nil {
				storeError(w, "run", err)
				return
			}
			httputil.WriteJSONOK(w, run)
		case http.MethodDelete:
			if err := s.store.DeleteRun(id); err != nil {
				storeError(w, "run", err)
				return
			}
			httputil.WriteJSONOK(w, map[string]string{"deleted": id})
		default:
			httputil.MethodNotAllowed(w)
		}
	case "timeline":
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		s.runTimeline(w, r, id)
	default:
		httputil.NotFound(w, "unknown run resource "+sub)
	}
}

func (s *Server) runTimeline(w http.ResponseWriter, r *http.Request, id string) {
	every, err := queryInt(r, "every", 1, 1<<20)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if _, err := s.store.GetRun(id); err != nil {
		storeError(w, "run", err)
		return
	}
	rows, err := s.store.Timeline(id, every)
	if err != nil {
		storeError(w, "timeline", err)
		return
	}
	httputil.WriteJSONOK(w, rows)
}

func (s *Server) showSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/sweeps/")
	if id == "" || strings.Contains(id, "/") {
		httputil.BadRequest(w, "invalid sweep id")
		return
	}
	results, err := s.store.SweepResults(id)
	if err != nil {
		storeError(w, "sweep", err)
		return
	}
	httputil.WriteJSONOK(w, results)
}

func (s *Server) sweepStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.sweeps == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "sweep runner not configured")
		return
	}
	httputil.WriteJSONOK(w, s.sweeps.GetSweepState())
}

func (s *Server) startSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.sweeps == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "sweep runner not configured")
		return
	}
	var req sweep.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid sweep request: %v", err))
		return
	}
	// The sweep outlives the request.
	id, err := s.sweeps.Start(context.Background(), req)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"sweep_id": id})
}

func (s *Server) stopSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.sweeps == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "sweep runner not configured")
		return
	}
	s.sweeps.Stop()
	httputil.WriteJSONOK(w, s.sweeps.GetSweepState())
}

func (s *Server) showDefaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, config.DefaultSimConfig())
}

// runChart renders the stored timeline of a run with go-echarts.
func (s *Server) runChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/charts/runs/")
	if id == "" || strings.Contains(id, "/") {
		httputil.BadRequest(w, "invalid run id")
		return
	}
	run, err := s.store.GetRun(id)
	if err != nil {
		storeError(w, "run", err)
		return
	}
	rows, err := s.store.Timeline(id, 1)
	if err != nil {
		storeError(w, "timeline", err)
		return
	}
	snaps := make([]engine.Snapshot, len(rows))
	for i, row := range rows {
		snaps[i] = engine.Snapshot{
			Tick:          row.Tick,
			T:             row.T,
			SignalState:   row.SignalState,
			EWApproaching: row.EWApproaching,
			NSApproaching: row.NSApproaching,
			Metrics: engine.Metrics{
				Collisions:          row.Collisions,
				NearMisses:          row.NearMisses,
				TotalVehiclesExited: row.VehiclesExited,
				TotalDelay:          row.TotalDelay,
			},
		}
	}
	title := "Run " + run.RunID
	if run.Tag != "" {
		title += " (" + run.Tag + ")"
	}
	page, err := report.RenderTimelineChart(snaps, title)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}
