package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autoservice/internal/ratelimit"
	"autoservice/internal/util"
	"autoservice/services/shop/internal/app"
)

const maxBodyBytes = 1 << 20

// WriteLimiter meters mutating requests per client.
type WriteLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Limiter        WriteLimiter
	TrustedProxies *util.TrustedProxies
	// Gatherer enables /metrics when set.
	Gatherer prometheus.Gatherer
}

// Server exposes the shop API over HTTP.
type Server struct {
	app     *app.App
	limiter WriteLimiter
	trusted *util.TrustedProxies
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	s := &Server{
		app:     cfg.App,
		limiter: cfg.Limiter,
		trusted: cfg.TrustedProxies,
		mux:     http.NewServeMux(),
	}
	s.routes()
	if cfg.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("shop", s.trusted, util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/api/brands", s.limited(s.handleBrands))
	s.mux.Handle("/api/mechanics", s.limited(s.handleMechanics))
	s.mux.Handle("/api/mechanics/", s.limited(s.handleMechanicByID))
	s.mux.Handle("/api/tasks/", s.limited(s.handleTaskByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// limited applies the write quota to non-GET requests. Limiter errors deny.
func (s *Server) limited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
			next(w, r)
			return
		}
		d, err := s.limiter.Allow(r.Context(), "write|"+util.ClientIP(r, s.trusted))
		if err != nil {
			util.LoggerFromContext(r.Context()).Warn("rate limiter unavailable", "err", err)
		}
		if !d.Allowed {
			retry := int(d.RetryAfter.Round(time.Second) / time.Second)
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	})
}

// /api/brands
func (s *Server) handleBrands(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		brands, err := s.app.ListBrands(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeList(w, brands)
	case http.MethodPost:
		var req brandRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		brand, err := s.app.RegisterBrand(r.Context(), req.Name)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, brand)
	default:
		methodNotAllowed(w)
	}
}

// /api/mechanics
func (s *Server) handleMechanics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.app.ListMechanics(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeList(w, list)
	case http.MethodPost:
		var req app.MechanicInput
		if !decodeJSON(w, r, &req) {
			return
		}
		mech, err := s.app.RegisterMechanic(r.Context(), req)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, mech)
	default:
		methodNotAllowed(w)
	}
}

// /api/mechanics/{id}, /api/mechanics/{id}/workload,
// /api/mechanics/{id}/tasks, /api/mechanics/{id}/tasks/{taskId}
func (s *Server) handleMechanicByID(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api/mechanics/"))
	switch {
	case len(parts) == 1:
		s.handleMechanic(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "workload":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		workload, err := s.app.Workload(r.Context(), parts[0])
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, workload)
	case len(parts) == 2 && parts[1] == "tasks":
		s.handleMechanicTasks(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "tasks":
		s.handleMechanicTask(w, r, parts[0], parts[2])
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleMechanic(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		mech, err := s.app.GetMechanic(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mech)
	case http.MethodPut:
		var req app.MechanicInput
		if !decodeJSON(w, r, &req) {
			return
		}
		mech, err := s.app.UpdateMechanic(r.Context(), id, req)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mech)
	case http.MethodDelete:
		if err := s.app.DeleteMechanic(r.Context(), id); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMechanicTasks(w http.ResponseWriter, r *http.Request, mechanicID string) {
	switch r.Method {
	case http.MethodGet:
		tasks, err := s.app.ListTasks(r.Context(), mechanicID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeList(w, tasks)
	case http.MethodPost:
		var req app.TaskInput
		if !decodeJSON(w, r, &req) {
			return
		}
		task, err := s.app.CreateTask(r.Context(), mechanicID, req)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, task)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMechanicTask(w http.ResponseWriter, r *http.Request, mechanicID, taskID string) {
	switch r.Method {
	case http.MethodPut:
		var req app.TaskInput
		if !decodeJSON(w, r, &req) {
			return
		}
		task, err := s.app.UpdateTask(r.Context(), taskID, mechanicID, req)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	case http.MethodDelete:
		if err := s.app.DeleteTask(r.Context(), taskID, mechanicID); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// /api/tasks/{taskId}, /api/tasks/{taskId}/reassign
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api/tasks/"))
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		task, err := s.app.GetTask(r.Context(), parts[0])
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	case len(parts) == 2 && parts[1] == "reassign":
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		var req reassignRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		task, err := s.app.ReassignTask(r.Context(), parts[0], req.NewMechanicID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	default:
		notFound(w, "not found")
	}
}

type brandRequest struct {
	Name string `json:"name"`
}

type reassignRequest struct {
	NewMechanicID string `json:"newMechanicId"`
}

// splitPath returns the non-empty segments of p, or nil when any segment is empty.
func splitPath(p string) []string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	for _, part := range parts {
		if part == "" {
			return nil
		}
	}
	return parts
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}
