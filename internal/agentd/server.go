package agentd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/deepchat/internal/middleware"
	"github.com/ashureev/deepchat/internal/protocol"
	"github.com/ashureev/deepchat/internal/transport"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Server serves the agent wire protocol over both transports: a websocket
// push channel at /ws and the request/response endpoints. One instance can
// serve many concurrent client sessions.
type Server struct {
	agent  Agent
	logger *slog.Logger
	router chi.Router
}

// New creates a server around the given agent.
func New(agent Agent, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{agent: agent, logger: logger}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Get("/ws", s.handleWS)
	r.Post(transport.RunAgentPath, s.handleRunAgent)
	r.Post(transport.FollowUpResponsePath, s.handleFollowUp)
	r.Post(transport.SubmitEvaluationPath, s.handleSubmitEvaluation)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// pushConn serializes writes to one websocket client.
type pushConn struct {
	conn   *websocket.Conn
	logger *slog.Logger
	mu     sync.Mutex
}

func (c *pushConn) send(ctx context.Context, eventType string, payload any) {
	raw, err := protocol.Encode(eventType, payload)
	if err != nil {
		c.logger.Warn("Failed to encode outbound event", "type", eventType, "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, raw); err != nil {
		c.logger.Debug("Failed to write outbound event", "type", eventType, "error", err)
	}
}

// handleWS runs one push-channel session until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("Failed to accept websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			s.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()
	conn.SetReadLimit(maxRequestBodySize)

	s.logger.Info("Push channel client connected", "remote", r.RemoteAddr)

	ctx := r.Context()
	c := &pushConn{conn: conn, logger: s.logger}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.logger.Info("Push channel client disconnected", "remote", r.RemoteAddr)
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			s.logger.Warn("Discarding malformed client frame", "error", err)
			continue
		}
		s.dispatch(ctx, c, env)
	}
}

func (s *Server) dispatch(ctx context.Context, c *pushConn, env protocol.Envelope) {
	switch env.Type {
	case protocol.EventRunAgent:
		var req protocol.RunRequest
		if err := env.Payload(&req); err != nil {
			s.logger.Warn("Bad run request", "error", err)
			return
		}
		// Turns run concurrently with the read loop so reasoning updates
		// stream while the client socket stays responsive.
		go s.runTurn(ctx, c, req)
	case protocol.EventFollowUpResponse:
		var answer protocol.FollowUpAnswer
		if err := env.Payload(&answer); err != nil {
			s.logger.Warn("Bad follow-up answer", "error", err)
			return
		}
		go s.followUpTurn(ctx, c, answer)
	case protocol.EventSubmitEvaluation:
		var submission protocol.RatingSubmission
		if err := env.Payload(&submission); err != nil {
			s.logger.Warn("Bad rating submission", "error", err)
			return
		}
		s.logger.Info("Evaluation received", "session_id", submission.SessionID, "rating", submission.Rating)
	default:
		s.logger.Debug("Ignoring unknown client event", "type", env.Type)
	}
}

func (s *Server) runTurn(ctx context.Context, c *pushConn, req protocol.RunRequest) {
	reason := func(line string) {
		c.send(ctx, protocol.EventReasoningUpdate, protocol.ReasoningUpdate{Message: line})
	}
	out, err := s.agent.Run(ctx, req, reason)
	if err != nil {
		c.send(ctx, protocol.EventError, protocol.ErrorEvent{SessionID: req.SessionID, Error: err.Error()})
		return
	}
	s.finishTurn(ctx, c, req.SessionID, out)
}

func (s *Server) followUpTurn(ctx context.Context, c *pushConn, answer protocol.FollowUpAnswer) {
	reason := func(line string) {
		c.send(ctx, protocol.EventReasoningUpdate, protocol.ReasoningUpdate{Message: line})
	}
	out, err := s.agent.FollowUp(ctx, answer, reason)
	if err != nil {
		c.send(ctx, protocol.EventError, protocol.ErrorEvent{SessionID: answer.SessionID, Error: err.Error()})
		return
	}
	s.finishTurn(ctx, c, answer.SessionID, out)
}

func (s *Server) finishTurn(ctx context.Context, c *pushConn, sessionID string, out Outcome) {
	switch {
	case out.FollowUpQuestion != "":
		c.send(ctx, protocol.EventFollowUpRequest, protocol.FollowUpRequest{
			SessionID: sessionID,
			Message:   out.FollowUpQuestion,
		})
		return
	case out.PDF != nil:
		c.send(ctx, protocol.EventAgentResponse, protocol.AgentResponse{
			SessionID:   sessionID,
			Assistant:   base64.StdEncoding.EncodeToString(out.PDF),
			ContentType: protocol.ContentTypePDF,
		})
	default:
		c.send(ctx, protocol.EventAgentResponse, protocol.AgentResponse{
			SessionID: sessionID,
			Assistant: out.Assistant,
		})
	}
	if out.RequestEvaluation {
		c.send(ctx, protocol.EventRequestEvaluation, protocol.EvaluationRequest{
			SessionID: sessionID,
			Assistant: out.EvaluationPrompt,
		})
	}
}

// handleRunAgent serves the request/response mode: one reply per call,
// reasoning discarded.
func (s *Server) handleRunAgent(w http.ResponseWriter, r *http.Request) {
	var req protocol.RunRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	out, err := s.agent.Run(r.Context(), req, func(string) {})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeOutcome(w, out)
}

func (s *Server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	var answer protocol.FollowUpAnswer
	if !s.decodeBody(w, r, &answer) {
		return
	}
	out, err := s.agent.FollowUp(r.Context(), answer, func(string) {})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeOutcome(w, out)
}

func (s *Server) handleSubmitEvaluation(w http.ResponseWriter, r *http.Request) {
	var submission protocol.RatingSubmission
	if !s.decodeBody(w, r, &submission) {
		return
	}
	s.logger.Info("Evaluation received", "session_id", submission.SessionID, "rating", submission.Rating)
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "evaluation recorded"})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeOutcome(w http.ResponseWriter, out Outcome) {
	if out.PDF != nil {
		w.Header().Set("Content-Type", protocol.ContentTypePDF)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(out.PDF); err != nil {
			s.logger.Warn("Failed to write PDF reply", "error", err)
		}
		return
	}
	// Request/response mode cannot pause on a clarification; the question
	// is delivered as the answer text instead.
	assistant := out.Assistant
	if out.FollowUpQuestion != "" {
		assistant = out.FollowUpQuestion
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"assistant": assistant})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode JSON reply", "error", err)
	}
}
