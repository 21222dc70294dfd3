package agent

import (
	"sync"

	"github.com/rezamarzban/llama-client/internal/llm"
)

// History is the ordered conversation transcript owned by one agent. It is
// mutated only by appending messages and by Trim; message 0 is always the
// system prompt.
type History struct {
	mu    sync.Mutex
	msgs  []llm.Message
	limit int
}

// NewHistory creates a history seeded with the system prompt. limit bounds
// the number of retained messages after Trim; 0 disables trimming.
func NewHistory(systemPrompt string, limit int) *History {
	return &History{
		msgs:  []llm.Message{llm.SystemMessage(systemPrompt)},
		limit: limit,
	}
}

// Append adds a message to the end of the transcript.
func (h *History) Append(m llm.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, m)
}

// Messages returns a snapshot of the transcript.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]llm.Message(nil), h.msgs...)
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

// SetSystemPrompt replaces message 0.
func (h *History) SetSystemPrompt(prompt string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs[0] = llm.SystemMessage(prompt)
}

// Restore replaces the transcript with a previously saved one (session
// resume). An empty slice is ignored so the system prompt survives.
func (h *History) Restore(msgs []llm.Message) {
	if len(msgs) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append([]llm.Message(nil), msgs...)
}

// Reset clears everything but the system prompt.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = h.msgs[:1]
}

// Trim bounds the transcript to the configured limit: message 0 plus the
// most recent limit-1 messages. The cutoff never leaves a tool-result
// message at the head of the kept window without the assistant message that
// requested it; when it would, the window is widened backward to re-include
// the partner.
func (h *History) Trim() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.limit <= 0 || len(h.msgs) <= h.limit {
		return
	}

	cut := len(h.msgs) - (h.limit - 1)
	for cut > 1 && h.msgs[cut].Role == llm.RoleTool {
		cut--
	}
	if cut <= 1 {
		return
	}

	trimmed := make([]llm.Message, 0, 1+len(h.msgs)-cut)
	trimmed = append(trimmed, h.msgs[0])
	trimmed = append(trimmed, h.msgs[cut:]...)
	h.msgs = trimmed
}
