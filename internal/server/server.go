// Package server is the local HTTP console for a memory session: tool calls,
// conversation turns, context preview, flush and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rcliao/aide/internal/memory"
	"github.com/rcliao/aide/internal/model"
	"github.com/rcliao/aide/internal/tools"
)

const maxBodyBytes = 1 << 20

// Server serves one Manager over HTTP.
type Server struct {
	mem    *memory.Manager
	tools  *tools.Surface
	logger *zap.Logger
}

// New returns a server for mem.
func New(mem *memory.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		mem:    mem,
		tools:  tools.New(mem, tools.WithLogger(logger.Named("tools"))),
		logger: logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/health", s.health)
	r.Get("/tools", s.listTools)
	r.Post("/tools/{name}", s.callTool)
	r.Post("/messages", s.observe)
	r.Get("/context", s.buildContext)
	r.Post("/flush", s.flush)
	r.Get("/stats", s.stats)
	r.Handle("/metrics", promhttp.HandlerFor(s.mem.Metrics().Registry(), promhttp.HandlerOpts{}))
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts the
// listener down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"state":   s.mem.State().String(),
		"session": s.mem.SessionID(),
	})
}

func (s *Server) listTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tools.Definitions())
}

func (s *Server) callTool(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res := s.tools.Call(r.Context(), chi.URLParam(r, "name"), body)
	status := http.StatusOK
	if !res.OK {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

type messageRequest struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

func (s *Server) observe(w http.ResponseWriter, r *http.Request) {
	var in messageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if in.Role == "" {
		in.Role = model.RoleUser
	}
	if !model.ValidRoles[in.Role] {
		writeError(w, http.StatusBadRequest, errors.New("invalid role"))
		return
	}
	s.mem.Observe(in.Role, in.Content)
	writeJSON(w, http.StatusAccepted, map[string]int{"short_term": len(s.mem.ShortTerm())})
}

func (s *Server) buildContext(w http.ResponseWriter, r *http.Request) {
	block := s.mem.BuildContext(r.Context(), r.URL.Query().Get("q"))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, block)
}

type flushRequest struct {
	Summary string `json:"summary"`
}

func (s *Server) flush(w http.ResponseWriter, r *http.Request) {
	var in flushRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	entry, err := s.mem.Flush(r.Context(), in.Summary)
	if err != nil {
		s.writeMemoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.mem.Stats(r.Context())
	if err != nil {
		s.writeMemoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) writeMemoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, memory.ErrNotInitialized) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())))
		})
	}
}
