package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/clawinfra/toolclaw/internal/orchestrator"
	"github.com/clawinfra/toolclaw/internal/session"
)

// chatRequest is the body of POST /api/chat and of each WebSocket
// request message.
type chatRequest struct {
	Message      string `json:"message"`
	Model        string `json:"model"`
	SessionID    string `json:"session_id"`
	SystemPrompt string `json:"system_prompt"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Message == "" {
		s.respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, _ := s.sessions.GetOrCreate(req.SessionID)

	if !s.cfg.LLM.Stream {
		s.handleChatJSON(w, r, req, sess)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", sess.ID)

	// SetEscapeHTML(false) keeps non-ASCII model output readable on
	// the wire.
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	emit := func(ev orchestrator.Event) error {
		if _, err := w.Write([]byte("data: ")); err != nil {
			return err
		}
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := s.orch.StreamTurn(r.Context(), sess.ID, req.Message, s.buildSystemPrompt(req.SystemPrompt), s.resolveModel(req.Model), s.selectedSchemas(), emit)
	if err != nil {
		// The client is gone; nothing left to write.
		s.logger.Debug("chat stream aborted", "session_id", sess.ID, "error", err)
	}
}

// handleChatJSON runs the full turn without streaming and returns the
// final assistant reply as a single JSON document.
func (s *Server) handleChatJSON(w http.ResponseWriter, r *http.Request, req chatRequest, sess *session.Session) {
	var turnErr string
	emit := func(ev orchestrator.Event) error {
		if ev.Type == orchestrator.EventError {
			turnErr = ev.Error
		}
		return nil
	}

	err := s.orch.StreamTurn(r.Context(), sess.ID, req.Message, s.buildSystemPrompt(req.SystemPrompt), s.resolveModel(req.Model), s.selectedSchemas(), emit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "chat turn: %v", err)
		return
	}
	if turnErr != "" {
		s.respondError(w, http.StatusInternalServerError, "%s", turnErr)
		return
	}

	var reply string
	msgs := sess.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" && msgs[i].Content != "" {
			reply = msgs[i].Content
			break
		}
	}

	w.Header().Set("X-Session-ID", sess.ID)
	s.respondJSON(w, map[string]any{"response": reply, "session_id": sess.ID})
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	sess, err := s.sessions.Get(body.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "session %s not found", body.SessionID)
		return
	}

	sess.Clear()
	s.logger.Info("session cleared", "session_id", sess.ID)
	s.respondJSON(w, map[string]any{"session_id": sess.ID, "cleared": true})
}

// handleChatWS serves the same event stream over a WebSocket: each
// JSON request message runs one chat turn, events go back as JSON
// messages.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	for {
		var req chatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			return
		}
		if req.Message == "" {
			_ = wsjson.Write(ctx, conn, orchestrator.Event{Type: orchestrator.EventError, Error: "message is required"})
			continue
		}

		sess, _ := s.sessions.GetOrCreate(req.SessionID)
		_ = wsjson.Write(ctx, conn, map[string]string{"type": "session", "session_id": sess.ID})

		emit := func(ev orchestrator.Event) error {
			return wsjson.Write(ctx, conn, ev)
		}
		if err := s.orch.StreamTurn(ctx, sess.ID, req.Message, s.buildSystemPrompt(req.SystemPrompt), s.resolveModel(req.Model), s.selectedSchemas(), emit); err != nil {
			return
		}
	}
}

func (s *Server) resolveModel(model string) string {
	if model != "" {
		return model
	}
	return s.cfg.LLM.DefaultModel
}
