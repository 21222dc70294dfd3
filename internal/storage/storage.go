package storage

import (
	"context"
	"time"

	"github.com/rezamarzban/llama-client/internal/agent"
	"github.com/rezamarzban/llama-client/internal/llm"
)

// SessionStatus is the lifecycle state of a saved conversation.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// Session is the metadata for a saved conversation.
type Session struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    SessionStatus `json:"status"`
	Model     string        `json:"model"`
	Profile   string        `json:"profile"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SessionListOptions controls filtering and pagination for ListSessions.
type SessionListOptions struct {
	Status SessionStatus
	Limit  int
	Offset int
}

// Store persists sessions, their transcripts, and the tool interaction log.
type Store interface {
	// CreateSession inserts a new session. The caller sets the ID.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession returns a session by ID or unambiguous ID prefix.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions returns sessions ordered by updated_at descending.
	ListSessions(ctx context.Context, opts SessionListOptions) ([]Session, error)

	// UpdateSession updates title, status, and updated_at.
	UpdateSession(ctx context.Context, s *Session) error

	// DeleteSession removes a session and its transcript.
	DeleteSession(ctx context.Context, id string) error

	// SaveMessages replaces the full transcript of a session.
	SaveMessages(ctx context.Context, sessionID string, messages []llm.Message) error

	// LoadMessages returns the transcript of a session in order.
	LoadMessages(ctx context.Context, sessionID string) ([]llm.Message, error)

	// AppendToolLog records one executed tool call for a session.
	AppendToolLog(ctx context.Context, sessionID string, entry agent.ToolInteraction) error

	// ListToolLog returns a session's tool interactions in execution order.
	ListToolLog(ctx context.Context, sessionID string) ([]agent.ToolInteraction, error)

	// ClearToolLog deletes a session's tool interactions.
	ClearToolLog(ctx context.Context, sessionID string) error

	// Close releases resources.
	Close() error
}
