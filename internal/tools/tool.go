package tools

import "context"

// Tool is a named capability the model can invoke: a pure function from a
// JSON object of arguments to a JSON-serializable result. Implementations
// must report failures through the error return, never by panicking
// (panics are recovered by the registry as a safety net).
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// ServerConfig describes an MCP tool server binary to launch at startup.
type ServerConfig struct {
	Binary  string            `mapstructure:"binary"`
	Env     map[string]string `mapstructure:"env"`
	Enabled bool              `mapstructure:"enabled"`
}

// Func adapts a plain function to the Tool interface.
type Func struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunc wraps fn as a Tool.
func NewFunc(name, description string, parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error)) *Func {
	return &Func{name: name, description: description, parameters: parameters, fn: fn}
}

func (f *Func) Name() string               { return f.name }
func (f *Func) Description() string        { return f.description }
func (f *Func) Parameters() map[string]any { return f.parameters }

func (f *Func) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return f.fn(ctx, args)
}
