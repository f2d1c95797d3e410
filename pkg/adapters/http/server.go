package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/consult/internal/logging"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/aretw0/consult/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Sessions is the session API served over HTTP. *session.Manager implements it.
type Sessions interface {
	Create(ctx context.Context, targets []domain.Target) (string, *domain.Session, error)
	Start(ctx context.Context, sessionID string, targets []domain.Target) (*domain.Session, error)
	Answer(ctx context.Context, sessionID, question string, value domain.Answer) (*domain.Session, error)
	Back(ctx context.Context, sessionID string) (*domain.Session, error)
	Restart(ctx context.Context, sessionID string) (*domain.Session, error)
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Busy(sessionID string) bool
	Trace(ctx context.Context, sessionID string) (*session.Trace, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

var _ Sessions = (*session.Manager)(nil)

// Server exposes consultations to UIs over REST and SSE.
type Server struct {
	Sessions Sessions
	Streams  *StreamManager

	catalog *domain.Catalog
	version string
	logger  *slog.Logger
	mounts  map[string]http.Handler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCatalog sets the targets advertised by GET /targets.
func WithCatalog(catalog *domain.Catalog) ServerOption {
	return func(s *Server) {
		if catalog != nil {
			s.catalog = catalog
		}
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = strings.TrimSpace(version)
	}
}

// WithServerLogger configures a logger for the Server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMount serves h under pattern, e.g. "/metrics".
func WithMount(pattern string, h http.Handler) ServerOption {
	return func(s *Server) {
		s.mounts[pattern] = h
	}
}

// SessionView is the JSON representation of a session.
type SessionView struct {
	*domain.Session
	Phase domain.Phase `json:"phase"`
	Busy  bool         `json:"busy"`
}

// StartRequest is the body of POST /sessions and POST /sessions/{id}/start.
type StartRequest struct {
	Targets []domain.Target `json:"targets"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewServer creates a Server over sessions.
func NewServer(sessions Sessions, opts ...ServerOption) *Server {
	s := &Server{
		Sessions: sessions,
		catalog:  domain.NewCatalog(),
		version:  "dev",
		logger:   logging.NewNop(),
		mounts:   make(map[string]http.Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	return s
}

// NewHandler creates the HTTP handler for the session API.
func NewHandler(sessions Sessions, opts ...ServerOption) http.Handler {
	return NewServer(sessions, opts...).Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/targets", s.GetTargets)
	for pattern, h := range s.mounts {
		r.Handle(pattern, h)
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.CreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Post("/start", s.StartSession)
			r.Post("/answer", s.AnswerQuestion)
			r.Post("/back", s.GoBack)
			r.Post("/restart", s.RestartSession)
			r.Get("/trace", s.GetTrace)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "consult-http",
		"version": s.version,
	})
}

// GetTargets handles GET /targets.
func (s *Server) GetTargets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.catalog.Infos())
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// CreateSession handles POST /sessions.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if !s.decode(w, r, &body) {
		return
	}

	id, sess, err := s.Sessions.Create(r.Context(), body.Targets)
	if err != nil {
		if id != "" {
			w.Header().Set("Location", "/sessions/"+id)
		}
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+id)
	s.broadcast(id, nil, sess)
	s.writeJSON(w, http.StatusCreated, s.view(sess))
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(sess))
}

// DeleteSession handles DELETE /sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartSession handles POST /sessions/{id}/start.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.mutate(w, r, func(ctx context.Context, id string) (*domain.Session, error) {
		return s.Sessions.Start(ctx, id, body.Targets)
	})
}

// AnswerQuestion handles POST /sessions/{id}/answer.
// The answer is true, false, null or "unknown".
func (s *Server) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	var body domain.AnswerRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.mutate(w, r, func(ctx context.Context, id string) (*domain.Session, error) {
		return s.Sessions.Answer(ctx, id, body.Question, body.Answer)
	})
}

// GoBack handles POST /sessions/{id}/back.
func (s *Server) GoBack(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, id string) (*domain.Session, error) {
		return s.Sessions.Back(ctx, id)
	})
}

// RestartSession handles POST /sessions/{id}/restart.
func (s *Server) RestartSession(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, id string) (*domain.Session, error) {
		return s.Sessions.Restart(ctx, id)
	})
}

// GetTrace handles GET /sessions/{id}/trace. A failed refresh still returns
// the last known trace, flagged as stale.
func (s *Server) GetTrace(w http.ResponseWriter, r *http.Request) {
	tr, err := s.Sessions.Trace(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, domain.ErrTraceFetchFailed) && tr != nil {
			s.logger.Warn("Serving stale trace", "session_id", chi.URLParam(r, "sessionID"), "err", err)
			s.writeJSON(w, http.StatusOK, traceView{Trace: tr, Stale: true})
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceView{Trace: tr})
}

type traceView struct {
	*session.Trace
	Stale bool `json:"stale"`
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*domain.Session, error)) {
	id := chi.URLParam(r, "sessionID")
	before, err := s.Sessions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := fn(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.broadcast(id, before, sess)
	s.writeJSON(w, http.StatusOK, s.view(sess))
}

func (s *Server) broadcast(id string, before, after *domain.Session) {
	diff := domain.Diff(before, after)
	if diff == nil || diff.IsEmpty() {
		s.logger.Debug("No diff calculated", "session_id", id)
		return
	}
	bytes, err := json.Marshal(diff)
	if err != nil {
		s.logger.Error("Failed to encode session diff", "session_id", id, "err", err)
		return
	}
	s.Streams.Broadcast(id, string(bytes))
}

// SubscribeEvents handles GET /sessions/{id}/events (SSE). The optional
// watch parameter filters diffs by field: phase, question, history,
// answers, conclusions.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.Sessions.Get(r.Context(), sessionID); err != nil {
		s.writeError(w, r, err)
		return
	}

	var watch []string
	if v := r.URL.Query().Get("watch"); v != "" {
		for _, f := range strings.Split(v, ",") {
			watch = append(watch, strings.TrimSpace(f))
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()
	s.logger.Info("SSE: Subscribing to session updates", "session_id", sessionID)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watch) > 0 && !matchesWatch(msg, watch) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func matchesWatch(msg string, watch []string) bool {
	var diff domain.SessionDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range watch {
		switch field {
		case "phase":
			if diff.Phase != nil || diff.Finished != nil {
				return true
			}
		case "question":
			if diff.CurrentQuestion != nil {
				return true
			}
		case "history":
			if diff.History != nil {
				return true
			}
		case "answers":
			if len(diff.Answers) > 0 {
				return true
			}
		case "conclusions":
			if diff.Conclusions != nil || diff.InsufficientInfo != nil {
				return true
			}
		}
	}
	return false
}

func (s *Server) view(sess *domain.Session) SessionView {
	return SessionView{
		Session: sess,
		Phase:   sess.Phase(),
		Busy:    s.Sessions.Busy(sess.ID),
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("Invalid request body", "path", r.URL.Path, "err", err)
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "bad_request"})
		return false
	}
	return true
}

// StatusFor maps domain errors to HTTP status codes and error codes.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidTarget):
		return http.StatusBadRequest, "invalid_target"
	case errors.Is(err, domain.ErrInvalidAnswer):
		return http.StatusBadRequest, "invalid_answer"
	case errors.Is(err, domain.ErrStaleAnswer):
		return http.StatusConflict, "stale_answer"
	case errors.Is(err, domain.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, domain.ErrSessionBusy):
		return http.StatusLocked, "session_busy"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, domain.ErrTraceFetchFailed):
		return http.StatusBadGateway, "trace_fetch_failed"
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	if status >= 500 {
		s.logger.Error("Request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		s.logger.Debug("Request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}
