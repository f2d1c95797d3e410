package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/consult/internal/logging"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/aretw0/consult/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// TargetsURI is the resource listing the consultation targets.
const TargetsURI = "consult://targets"

// Sessions is the session API exposed as tools. *session.Manager implements it.
type Sessions interface {
	Create(ctx context.Context, targets []domain.Target) (string, *domain.Session, error)
	Answer(ctx context.Context, sessionID, question string, value domain.Answer) (*domain.Session, error)
	Back(ctx context.Context, sessionID string) (*domain.Session, error)
	Restart(ctx context.Context, sessionID string) (*domain.Session, error)
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Trace(ctx context.Context, sessionID string) (*session.Trace, error)
}

// ConsultationResponse is the result of every session tool.
type ConsultationResponse struct {
	SessionID       string              `json:"session_id" jsonschema_description:"Identifier to pass to the other tools"`
	Phase           domain.Phase        `json:"phase" jsonschema_description:"idle, awaiting_answer or finished"`
	CurrentQuestion string              `json:"current_question,omitempty" jsonschema_description:"The question to answer next"`
	IsDerivable     bool                `json:"is_derivable,omitempty" jsonschema_description:"The current fact can also be derived by other rules"`
	History         []string            `json:"history" jsonschema_description:"Questions asked so far"`
	Conclusions     []string            `json:"conclusions" jsonschema_description:"Conclusions reached"`
	Caveats         []string            `json:"caveats,omitempty" jsonschema_description:"Conditions answered unknown that were assumed true"`
	TargetResults   map[string][]string `json:"target_results,omitempty" jsonschema_description:"Conclusions per target in multi-target mode"`
	Insufficient    bool                `json:"insufficient_info,omitempty" jsonschema_description:"Finished without a conclusion because of unknown answers"`
}

// TraceResponse is the result of get_trace.
type TraceResponse struct {
	SessionID  string       `json:"session_id"`
	FiredCount int          `json:"fired_count" jsonschema_description:"Number of distinct fired rules"`
	Total      int          `json:"total" jsonschema_description:"Number of rules in the rule base"`
	Rules      []TraceEntry `json:"rules" jsonschema_description:"Relevant rules in rule-base order"`
}

// TraceEntry is one relevant rule.
type TraceEntry struct {
	RuleID     string   `json:"rule_id"`
	State      string   `json:"state" jsonschema_description:"fired, unfireable, evaluating or pending"`
	Conclusion string   `json:"conclusion"`
	Conditions []string `json:"conditions"`
	Focused    bool     `json:"focused,omitempty"`
}

// StartArgs are the arguments of start_consultation.
type StartArgs struct {
	Targets string `json:"targets"`
}

// SessionArgs identify a session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// AnswerArgs are the arguments of answer_question.
type AnswerArgs struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
}

// Server exposes consultations as an MCP server.
type Server struct {
	sessions  Sessions
	catalog   *domain.Catalog
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithCatalog sets the recognized targets.
func WithCatalog(catalog *domain.Catalog) Option {
	return func(s *Server) {
		if catalog != nil {
			s.catalog = catalog
		}
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions Sessions, version string, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		catalog:   domain.NewCatalog(),
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("consult-mcp", strings.TrimSpace(version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	ids := make([]string, 0, len(s.catalog.Targets())+1)
	for _, t := range s.catalog.Targets() {
		ids = append(ids, string(t))
	}
	ids = append(ids, string(domain.TargetAll))

	s.mcpServer.AddTool(mcp.NewTool("start_consultation",
		mcp.WithDescription("Start a visa eligibility consultation and return the first question."),
		mcp.WithString("targets", mcp.Required(),
			mcp.Description("Target id ("+strings.Join(ids, ", ")+"). ALL or every id comma-separated diagnoses all targets at once.")),
		mcp.WithOutputSchema[ConsultationResponse](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("answer_question",
		mcp.WithDescription("Answer the current question of a consultation."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id returned by start_consultation")),
		mcp.WithString("question", mcp.Required(), mcp.Description("The current question, verbatim")),
		mcp.WithString("answer", mcp.Required(), mcp.Enum("yes", "no", "unknown"), mcp.Description("yes, no or unknown")),
		mcp.WithOutputSchema[ConsultationResponse](),
	), mcp.NewStructuredToolHandler(s.handleAnswer))

	s.mcpServer.AddTool(mcp.NewTool("go_back",
		mcp.WithDescription("Return to the previous question."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[ConsultationResponse](),
	), mcp.NewStructuredToolHandler(s.handleBack))

	s.mcpServer.AddTool(mcp.NewTool("restart_consultation",
		mcp.WithDescription("Discard all answers and return to target selection."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[ConsultationResponse](),
	), mcp.NewStructuredToolHandler(s.handleRestart))

	s.mcpServer.AddTool(mcp.NewTool("get_consultation",
		mcp.WithDescription("Get the current state of a consultation."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[ConsultationResponse](),
	), mcp.NewStructuredToolHandler(s.handleGet))

	s.mcpServer.AddTool(mcp.NewTool("get_trace",
		mcp.WithDescription("Explain the reasoning: rules that fired, are being evaluated or can no longer fire."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[TraceResponse](),
	), mcp.NewStructuredToolHandler(s.handleTrace))
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(TargetsURI, "Consultation targets",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.catalog.Infos())
		if err != nil {
			return nil, fmt.Errorf("failed to encode targets: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      TargetsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args StartArgs) (ConsultationResponse, error) {
	var targets []domain.Target
	for _, t := range strings.Split(args.Targets, ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, domain.Target(strings.ToUpper(t)))
		}
	}

	id, sess, err := s.sessions.Create(ctx, targets)
	if err != nil {
		s.logger.Warn("MCP start_consultation failed", "session_id", id, "err", err)
		return ConsultationResponse{}, fmt.Errorf("start failed: %w", err)
	}
	return toResponse(sess), nil
}

func (s *Server) handleAnswer(ctx context.Context, request mcp.CallToolRequest, args AnswerArgs) (ConsultationResponse, error) {
	value, err := domain.ParseAnswer(args.Answer)
	if err != nil {
		return ConsultationResponse{}, err
	}
	sess, err := s.sessions.Answer(ctx, args.SessionID, args.Question, value)
	if err != nil {
		return ConsultationResponse{}, fmt.Errorf("answer failed: %w", err)
	}
	return toResponse(sess), nil
}

func (s *Server) handleBack(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (ConsultationResponse, error) {
	sess, err := s.sessions.Back(ctx, args.SessionID)
	if err != nil {
		return ConsultationResponse{}, fmt.Errorf("back failed: %w", err)
	}
	return toResponse(sess), nil
}

func (s *Server) handleRestart(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (ConsultationResponse, error) {
	sess, err := s.sessions.Restart(ctx, args.SessionID)
	if err != nil {
		return ConsultationResponse{}, fmt.Errorf("restart failed: %w", err)
	}
	return toResponse(sess), nil
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (ConsultationResponse, error) {
	sess, err := s.sessions.Get(ctx, args.SessionID)
	if err != nil {
		return ConsultationResponse{}, err
	}
	return toResponse(sess), nil
}

func (s *Server) handleTrace(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (TraceResponse, error) {
	tr, err := s.sessions.Trace(ctx, args.SessionID)
	if err != nil && tr == nil {
		return TraceResponse{}, fmt.Errorf("trace failed: %w", err)
	}
	if err != nil {
		s.logger.Warn("MCP get_trace: serving stale trace", "session_id", args.SessionID, "err", err)
	}

	resp := TraceResponse{
		SessionID:  args.SessionID,
		FiredCount: tr.Result.FiredCount,
		Total:      tr.Result.Total,
		Rules:      make([]TraceEntry, 0, len(tr.Result.Relevant)),
	}
	for _, e := range tr.Result.Relevant {
		conds := make([]string, len(e.Rule.Conditions))
		for i, c := range e.Rule.Conditions {
			conds[i] = fmt.Sprintf("%s [%s]", c.FactName, c.Status)
		}
		resp.Rules = append(resp.Rules, TraceEntry{
			RuleID:     e.Rule.RuleID,
			State:      e.State.String(),
			Conclusion: e.Rule.Conclusion,
			Conditions: conds,
			Focused:    e.Focused,
		})
	}
	return resp, nil
}

func toResponse(sess *domain.Session) ConsultationResponse {
	resp := ConsultationResponse{
		SessionID:       sess.ID,
		Phase:           sess.Phase(),
		CurrentQuestion: sess.CurrentQuestion,
		IsDerivable:     sess.IsDerivable,
		History:         sess.History,
		Conclusions:     sess.Conclusions,
		Insufficient:    sess.InsufficientInfo,
	}
	for _, g := range sess.Caveats {
		resp.Caveats = append(resp.Caveats,
			fmt.Sprintf("%s: %s", g.Conclusion, strings.Join(g.Conditions, " "+g.Operator.Join()+" ")))
	}
	if len(sess.TargetConclusions) > 0 {
		resp.TargetResults = make(map[string][]string, len(sess.TargetConclusions))
		for t, c := range sess.TargetConclusions {
			resp.TargetResults[string(t)] = c
		}
	}
	return resp
}
