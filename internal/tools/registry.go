package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/rezamarzban/llama-client/internal/llm"
)

// Registry maps tool names to capabilities. It is populated by explicit
// registration at startup; names are advertised to the model in
// registration order.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string
	servers []*MCPConnection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names are rejected; the later registration
// loses so startup wiring mistakes surface immediately.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool with empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// RegisterServer launches an MCP tool server and registers every tool it
// advertises. Disabled servers are skipped silently.
func (r *Registry) RegisterServer(name string, cfg ServerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	conn, err := NewMCPConnection(name, cfg)
	if err != nil {
		return err
	}

	for _, t := range conn.Tools() {
		if err := r.Register(t); err != nil {
			conn.Close()
			return fmt.Errorf("registering tools from %s: %w", name, err)
		}
	}

	r.mu.Lock()
	r.servers = append(r.servers, conn)
	r.mu.Unlock()
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Call resolves and invokes a tool. A panicking tool is converted to an
// error so one bad capability cannot take down the conversation.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (result any, err error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("tool %s panicked: %v", name, rec)
		}
	}()
	return t.Invoke(ctx, args)
}

// Schemas returns the advertised tool definitions in registration order.
func (r *Registry) Schemas() []llm.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// HasTools reports whether anything is registered.
func (r *Registry) HasTools() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order) > 0
}

// Close shuts down all MCP server connections.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.servers {
		conn.Close()
	}
	r.servers = nil
}
