// Package server exposes sessions over HTTP: a small JSON API for
// session lifecycle and a WebSocket endpoint for the chat itself.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stagelab/stagechat/pkg/config"
	"github.com/stagelab/stagechat/pkg/eventlog"
	"github.com/stagelab/stagechat/pkg/session"
	"github.com/stagelab/stagechat/pkg/stage"
)

// Server wires session creation and WebSocket attachment. The LLM
// gateways are shared across all sessions so the per-role concurrency
// limits hold process-wide.
type Server struct {
	sim        *config.Simulation
	experiment *config.Experiment
	director   stage.Generator
	performer  stage.Generator
	moderator  stage.Generator
	registry   *session.Registry
	logDir     string
	log        *log.Logger
	upgrader   websocket.Upgrader
}

// Options configures a Server.
type Options struct {
	Sim        *config.Simulation
	Experiment *config.Experiment
	Director   stage.Generator
	Performer  stage.Generator
	Moderator  stage.Generator
	LogDir     string
	Log        *log.Logger
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Sim == nil || opts.Experiment == nil {
		return nil, errors.New("simulation and experiment configs are required")
	}
	if opts.Director == nil || opts.Performer == nil {
		return nil, errors.New("director and performer gateways are required")
	}
	logDir := opts.LogDir
	if logDir == "" {
		logDir = "./data/sessions"
	}
	runLog := opts.Log
	if runLog == nil {
		runLog = log.Default()
	}
	return &Server{
		sim:        opts.Sim,
		experiment: opts.Experiment,
		director:   opts.Director,
		performer:  opts.Performer,
		moderator:  opts.Moderator,
		registry:   session.NewRegistry(),
		logDir:     logDir,
		log:        runLog,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Sessions are joined by id; the id is the capability.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler builds the HTTP mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return s.logRequest(mux)
}

// Shutdown stops every live session.
func (s *Server) Shutdown() {
	s.registry.StopAll("server_shutdown")
}

type createSessionRequest struct {
	UserName string `json:"user_name"`
	Group    string `json:"group"`
}

type createSessionResponse struct {
	SessionID string   `json:"session_id"`
	Group     string   `json:"group"`
	Agents    []string `json:"agents"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"sessions": s.registry.List()})
	case http.MethodPost:
		s.createSession(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.UserName == "" {
		writeError(w, http.StatusBadRequest, errors.New("user_name is required"))
		return
	}
	if req.Group == "" {
		req.Group = "control"
	}
	group, err := s.experiment.Group(req.Group)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	scenario, err := session.LoadScenario(group)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := uuid.NewString()
	logger, err := eventlog.NewJSONLLogger(s.logDir, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("open session log: %w", err))
		return
	}

	sess, err := session.New(session.Config{
		ID:              id,
		UserName:        req.UserName,
		Treatment:       group.Treatment,
		ChatroomContext: s.experiment.ChatroomContext,
		Sim:             s.sim,
		Scenario:        scenario,
		Director:        s.director,
		Performer:       s.performer,
		Moderator:       s.moderator,
		Logger:          logger,
		Log:             s.log,
	})
	if err != nil {
		logger.Close()
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := sess.Start(context.Background()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.registry.Add(sess); err != nil {
		sess.Stop("registration_failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.log.Info("session created", "session", id, "group", req.Group, "user", req.UserName)
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: id,
		Group:     req.Group,
		Agents:    s.sim.AgentNames,
	})
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing session id"))
		return
	}
	sess := s.registry.Get(id)
	if sess == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("session %s not found", id))
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"session_id": id})
	case http.MethodDelete:
		s.registry.Remove(id, "ended_by_client")
		writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "ended": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

// inboundCommand is one client-to-server WebSocket frame.
type inboundCommand struct {
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	ReplyTo    string   `json:"reply_to"`
	QuotedText string   `json:"quoted_text"`
	Mentions   []string `json:"mentions"`
	MessageID  string   `json:"message_id"`
	UserID     string   `json:"user_id"`
	AgentName  string   `json:"agent_name"`
}

// wsConn serializes writes; the session goroutine and the read loop's
// error responses both write to the socket.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("session_id query parameter is required"))
		return
	}
	sess := s.registry.Get(id)
	if sess == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("session %s not found", id))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "session", id, "error", err)
		return
	}
	wc := &wsConn{conn: conn}

	// Attaching replays the visible transcript, so reconnects catch up.
	if err := sess.Attach(func(ev session.OutboundEvent) {
		if err := wc.writeJSON(ev); err != nil {
			s.log.Warn("websocket write failed", "session", id, "error", err)
		}
	}); err != nil {
		s.log.Warn("attach failed", "session", id, "error", err)
		conn.Close()
		return
	}
	s.log.Info("client attached", "session", id)

	defer func() {
		sess.Detach()
		conn.Close()
		s.log.Info("client detached", "session", id)
	}()

	for {
		var cmd inboundCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read failed", "session", id, "error", err)
			}
			return
		}
		if err := s.dispatch(sess, wc, cmd); err != nil {
			wc.writeJSON(session.OutboundEvent{
				Type: "error",
				Data: map[string]any{"error": err.Error(), "command": cmd.Type},
			})
		}
	}
}

func (s *Server) dispatch(sess *session.Session, wc *wsConn, cmd inboundCommand) error {
	switch cmd.Type {
	case "user_message":
		if strings.TrimSpace(cmd.Content) == "" {
			return errors.New("message content must not be empty")
		}
		return sess.HandleUserMessage(cmd.Content, cmd.ReplyTo, cmd.QuotedText, cmd.Mentions)
	case "toggle_like":
		if cmd.MessageID == "" {
			return errors.New("message_id is required")
		}
		_, _, err := sess.ToggleLike(cmd.MessageID, cmd.UserID)
		return err
	case "toggle_report":
		if cmd.MessageID == "" {
			return errors.New("message_id is required")
		}
		verb, err := sess.ToggleReport(cmd.MessageID)
		if err != nil {
			return err
		}
		return wc.writeJSON(session.OutboundEvent{
			Type: "report_update",
			Data: map[string]any{"message_id": cmd.MessageID, "verb": verb},
		})
	case "block_agent":
		if cmd.AgentName == "" {
			return errors.New("agent_name is required")
		}
		return sess.BlockAgent(cmd.AgentName)
	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
