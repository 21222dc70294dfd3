package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// sseEvent is one frame on the chat stream.
type sseEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
	Args    any    `json:"args,omitempty"`
}

// sseWriter serializes events onto one HTTP response. Write errors are
// swallowed: a consumer that went away must not disturb the running turn.
type sseWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
	f  http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, f: f}, true
}

func (s *sseWriter) send(ev sseEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return
	}
	s.f.Flush()
}

func (s *sseWriter) done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.f.Flush()
}

// handleChatSSE runs one turn and streams its progress as server-sent
// events: token deltas, connection status, tool calls and results, then a
// final answer frame and the [DONE] sentinel.
func (s *Server) handleChatSSE(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	as, err := s.sessions.GetOrCreate(r.Context(), sess, s.config(), s.store, s.registry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("initializing agent: %v", err))
		return
	}

	stream, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	if sess.Title == "" {
		sess.Title = generateTitle(req.Content)
		s.store.UpdateSession(context.Background(), sess)
	}

	// The turn runs on its own context: the SSE consumer is an observer,
	// and its disconnect must not abort the turn. Write errors are already
	// swallowed by sseWriter; Cancel stays available for Remove/CloseAll.
	ctx, cancel := context.WithCancel(context.Background())
	as.Cancel = cancel
	defer func() {
		cancel()
		as.Cancel = nil
	}()

	as.Agent.OnToken = func(token string) {
		stream.send(sseEvent{Type: "token", Content: token})
	}
	as.Agent.OnStatus = func(status string) {
		stream.send(sseEvent{Type: "status", Content: status})
	}
	as.Agent.OnToolCall = func(name string, args map[string]any) {
		stream.send(sseEvent{Type: "tool_call", Name: name, Args: args})
	}
	as.Agent.OnToolResult = func(name string, result any) {
		stream.send(sseEvent{Type: "tool_result", Name: name, Args: result})
	}
	defer func() {
		as.Agent.OnToken = nil
		as.Agent.OnStatus = nil
		as.Agent.OnToolCall = nil
		as.Agent.OnToolResult = nil
	}()

	answer, err := as.Agent.Run(ctx, req.Content)

	s.persistTurn(sess.ID, as.Agent)

	if err != nil {
		if ctx.Err() != nil {
			stream.send(sseEvent{Type: "error", Content: "interrupted"})
		} else {
			stream.send(sseEvent{Type: "error", Content: err.Error()})
		}
		stream.done()
		return
	}

	stream.send(sseEvent{Type: "answer", Content: answer})
	stream.done()
}
