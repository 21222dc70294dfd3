package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rezamarzban/llama-client/internal/agent"
	"github.com/rezamarzban/llama-client/internal/config"
	"github.com/rezamarzban/llama-client/internal/llm"
	"github.com/rezamarzban/llama-client/internal/retry"
	"github.com/rezamarzban/llama-client/internal/storage"
	"github.com/rezamarzban/llama-client/internal/tools"
)

// ActiveSession tracks an in-memory agent for a session.
type ActiveSession struct {
	Agent  *agent.Agent
	Cancel context.CancelFunc // cancels an in-flight turn
	mu     sync.Mutex         // one message at a time per session
}

// SessionManager tracks which sessions have an active Agent in memory.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*ActiveSession
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*ActiveSession),
	}
}

// Get returns an active session if it exists.
func (sm *SessionManager) Get(sessionID string) (*ActiveSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	as, ok := sm.sessions[sessionID]
	return as, ok
}

// GetOrCreate returns an existing active session or builds one: transport,
// agent, profile overrides, and the persisted transcript if the session has
// one.
func (sm *SessionManager) GetOrCreate(
	ctx context.Context,
	sess *storage.Session,
	cfg *config.Config,
	store storage.Store,
	registry *tools.Registry,
) (*ActiveSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if as, ok := sm.sessions[sess.ID]; ok {
		return as, nil
	}

	model := sess.Model
	if model == "" {
		model = cfg.Endpoint.Model
	}

	var profile *agent.Profile
	if sess.Profile != "" {
		profilePath := filepath.Join(cfg.Agent.ProfilesDir, sess.Profile+".yaml")
		p, err := agent.LoadProfile(profilePath)
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}
		profile = p
		if profile.Model != "" {
			model = profile.Model
		}
	}

	opts := agent.Options{
		MaxSteps:     cfg.Agent.MaxSteps,
		HistoryLimit: cfg.Agent.HistoryLimit,
	}
	if profile != nil {
		if profile.SystemPrompt != "" {
			opts.SystemPrompt = profile.SystemPrompt
		}
		if profile.MaxSteps > 0 {
			opts.MaxSteps = profile.MaxSteps
		}
	}

	client := buildClient(cfg, model)
	a := agent.New(client, registry, opts)
	if profile != nil {
		a.FilterTools(profile.Tools)
	}

	messages, err := store.LoadMessages(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	a.History().Restore(messages)

	as := &ActiveSession{Agent: a}
	sm.sessions[sess.ID] = as
	return as, nil
}

// Remove removes an active session and cancels any in-flight work.
func (sm *SessionManager) Remove(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if as, ok := sm.sessions[sessionID]; ok {
		if as.Cancel != nil {
			as.Cancel()
		}
		delete(sm.sessions, sessionID)
	}
}

// CloseAll cancels all active sessions.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, as := range sm.sessions {
		if as.Cancel != nil {
			as.Cancel()
		}
		delete(sm.sessions, id)
	}
}

// buildClient assembles the streaming transport from configuration.
func buildClient(cfg *config.Config, model string) *llm.Client {
	rc := retry.DefaultConfig()
	if cfg.Client.MaxRetries > 0 {
		rc.MaxAttempts = cfg.Client.MaxRetries
	}
	if cfg.Client.BackoffBase > 0 {
		rc.BaseDelay = cfg.Client.BackoffBase
	}

	return llm.NewClient(cfg.Endpoint.URL, cfg.Endpoint.APIKey, model, llm.Options{
		Temperature: cfg.Sampling.Temperature,
		TopP:        cfg.Sampling.TopP,
		MaxTokens:   cfg.Sampling.MaxTokens,
		Timeout:     cfg.Client.Timeout,
		Retry:       rc,
	})
}
