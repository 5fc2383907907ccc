// Package server exposes the reconciliation engine over HTTP for automation:
// trigger a run, inspect the introspected schema, preview table data, and
// health-check the schema source.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lofcz/minfold/internal/database"
	"github.com/lofcz/minfold/internal/engine"
	"github.com/lofcz/minfold/internal/errs"
	"github.com/lofcz/minfold/internal/logger"
	"github.com/lofcz/minfold/internal/schema"
)

// Server wires the engine and schema service behind an HTTP router.
type Server struct {
	db   database.DB
	svc  *schema.Service
	log  *logger.Logger
	root string
	opts engine.Options

	// syncMu serializes runs: two concurrent reconciliations over the same
	// project would race on the generated files.
	syncMu sync.Mutex
}

// New creates a Server over an open schema source and a target project.
func New(db database.DB, projectPath string, opts engine.Options, log *logger.Logger) *Server {
	return &Server{
		db:   db,
		svc:  schema.NewService(db, log),
		log:  log,
		root: projectPath,
		opts: opts,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/schema", s.handleSchema)
	r.Get("/tables/{table}/rows", s.handleRows)
	r.Post("/sync", s.handleSync)
	return r
}

// ListenAndServe blocks serving the router on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.With().Str("addr", addr).Logger().Info("http server listening")
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	tables, err := s.svc.GetSchema(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if !s.tableExists(r, table) {
		writeError(w, http.StatusNotFound, errs.New(errs.ErrKindNotFound, "no such table "+table))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, errs.New(errs.ErrKindInvalidInput, "limit must be 1..500"))
			return
		}
		limit = n
	}

	query, args, err := database.Select(table, s.db.Dialect()).Limit(limit).Build()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := s.db.Query(r.Context(), query, args...)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer rows.Close()

	data, err := database.ScanRows(rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": table, "rows": data})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	res, err := engine.Run(r.Context(), s.db, s.root, s.opts, s.log)
	if err != nil {
		s.log.ErrorWith("sync run failed", err, map[string]any{"step": string(errs.StepOf(err))})
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) tableExists(r *http.Request, table string) bool {
	names, err := s.db.ListTables(r.Context())
	if err != nil {
		return false
	}
	for _, n := range names {
		if strings.EqualFold(n, table) {
			return true
		}
	}
	return false
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errs.IsNotFound(err):
		return http.StatusNotFound
	case errs.IsInvalidInput(err):
		return http.StatusBadRequest
	case errs.IsConnectionFailed(err), errs.IsTimeout(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
