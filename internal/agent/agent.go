package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/iter"

	"github.com/rezamarzban/llama-client/internal/llm"
	"github.com/rezamarzban/llama-client/internal/tools"
)

const defaultSystemPrompt = `You are an expert helpful assistant.
When the user asks for multiple items, call the tool multiple times in parallel.
For complex problems use tools sequentially if needed.
Always give a final answer after using tools.`

const (
	defaultMaxSteps     = 20
	defaultHistoryLimit = 50
)

// Options configures a new Agent. Zero values fall back to defaults.
type Options struct {
	SystemPrompt string
	MaxSteps     int
	HistoryLimit int
}

// Agent owns one conversation and drives the model/tool loop. One Agent is
// single-turn-at-a-time; independent conversations get independent Agents.
type Agent struct {
	llm      llm.Streamer
	registry *tools.Registry
	history  *History
	audit    *AuditLog
	schemas  []llm.ToolDef
	maxSteps int

	// Observer callbacks. All best-effort: the loop never depends on them.
	OnToken      func(token string)
	OnStatus     func(status string)
	OnToolCall   func(name string, args map[string]any)
	OnToolResult func(name string, result any)
}

// New creates an Agent over the given transport and tool registry.
func New(client llm.Streamer, registry *tools.Registry, opts Options) *Agent {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}

	a := &Agent{
		llm:      client,
		registry: registry,
		history:  NewHistory(opts.SystemPrompt, opts.HistoryLimit),
		audit:    &AuditLog{},
		maxSteps: opts.MaxSteps,
	}
	if registry != nil {
		a.schemas = registry.Schemas()
	}
	return a
}

// FilterTools restricts the advertised tools to the given names.
func (a *Agent) FilterTools(names []string) {
	if len(names) == 0 {
		return
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	var filtered []llm.ToolDef
	for _, def := range a.schemas {
		if allowed[def.Name] {
			filtered = append(filtered, def)
		}
	}
	a.schemas = filtered
}

// History returns the agent's conversation transcript.
func (a *Agent) History() *History { return a.history }

// Audit returns the agent's tool interaction log.
func (a *Agent) Audit() *AuditLog { return a.audit }

// Run executes one full turn: append the user message, then alternate model
// calls and tool executions until the model answers without tool calls or
// the step budget runs out. The step bound is a safety measure against a
// model that never stops requesting tools; hitting it yields an empty
// answer, not an error.
//
// Transport failure past the retry ceiling is folded into an assistant
// message whose content is the error text, so a dead endpoint still
// terminates the turn cleanly.
func (a *Agent) Run(ctx context.Context, userMessage string) (string, error) {
	a.history.Trim()
	a.history.Append(llm.UserMessage(userMessage))

	for step := 0; step < a.maxSteps; step++ {
		h := llm.Handlers{OnToken: a.OnToken}
		if step == 0 {
			// Connection status is only interesting once per turn.
			h.OnStatus = a.OnStatus
		}

		resp, err := a.llm.Stream(ctx, a.history.Messages(), a.schemas, h)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("model call (step %d): %w", step+1, err)
			}
			msg := llm.AssistantMessage("Connection failed: " + err.Error())
			a.history.Append(msg)
			return msg.Content, nil
		}

		msg := resp.Message
		ensureCallIDs(msg.ToolCalls)
		a.history.Append(msg)

		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		a.runToolCalls(ctx, msg.ToolCalls)
	}

	log.Warn().Int("max_steps", a.maxSteps).Msg("step budget exhausted without a final answer")
	return "", nil
}

// toolOutcome pairs a call with its serialized result.
type toolOutcome struct {
	call   llm.ToolCall
	args   map[string]any
	result any
}

// runToolCalls executes every call of one assistant message and appends one
// tool message per call. Execution is concurrent, but results are recorded
// and appended strictly in the original call order: the id, not the order,
// binds a result to its call, and deterministic ordering keeps transcripts
// reproducible.
func (a *Agent) runToolCalls(ctx context.Context, calls []llm.ToolCall) {
	if a.OnToolCall != nil {
		for _, tc := range calls {
			args, _ := parseToolArgs(tc.Arguments)
			a.OnToolCall(tc.Name, args)
		}
	}

	outcomes := iter.Map(calls, func(tc *llm.ToolCall) toolOutcome {
		return a.executeCall(ctx, *tc)
	})

	for _, o := range outcomes {
		a.audit.Record(o.call.Name, o.args, o.result)
		if a.OnToolResult != nil {
			a.OnToolResult(o.call.Name, o.result)
		}

		content, err := json.Marshal(o.result)
		if err != nil {
			content = []byte(`{"error": "unserializable tool result"}`)
		}
		a.history.Append(llm.ToolResultMessage(o.call.ID, o.call.Name, string(content)))
	}
}

// executeCall resolves and runs a single tool call. Every failure mode —
// unparseable arguments, unknown name, tool error, tool panic — degrades to
// a result object carrying an error field; the turn never aborts.
func (a *Agent) executeCall(ctx context.Context, tc llm.ToolCall) toolOutcome {
	args, err := parseToolArgs(tc.Arguments)
	if err != nil {
		args = map[string]any{
			"error": "arguments were not valid JSON",
			"raw":   tc.Arguments,
		}
	}

	if a.registry == nil {
		return toolOutcome{call: tc, args: args, result: map[string]any{"error": "no tools available"}}
	}

	result, err := a.registry.Call(ctx, tc.Name, args)
	if err != nil {
		log.Debug().Str("tool", tc.Name).Err(err).Msg("tool call failed")
		return toolOutcome{call: tc, args: args, result: map[string]any{"error": err.Error()}}
	}
	return toolOutcome{call: tc, args: args, result: result}
}

// ensureCallIDs assigns a fresh unique id to any call the model left
// unidentified; the later tool-result message must reference something
// concrete.
func ensureCallIDs(calls []llm.ToolCall) {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()[:8]
		}
	}
}

// FormatToolCall returns a short human-readable rendering of a tool call
// for display channels.
func FormatToolCall(name string, args map[string]any) string {
	parts := make([]string, 0, len(args))
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}
