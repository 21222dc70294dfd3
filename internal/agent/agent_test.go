package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rezamarzban/llama-client/internal/llm"
	"github.com/rezamarzban/llama-client/internal/tools"
)

// scriptedStreamer returns canned responses in order, repeating the last one
// forever (useful for adversarial always-tool-call models).
type scriptedStreamer struct {
	responses []llm.Response
	errs      []error
	calls     int
}

func (s *scriptedStreamer) Stream(_ context.Context, _ []llm.Message, _ []llm.ToolDef, _ llm.Handlers) (*llm.Response, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	resp := s.responses[idx]
	return &resp, nil
}

func toolCallResponse(id, name, args string) llm.Response {
	return llm.Response{Message: llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: args}},
	}}
}

func textResponse(content string) llm.Response {
	return llm.Response{Message: llm.AssistantMessage(content)}
}

func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	t.Cleanup(r.Close)
	echo := tools.NewFunc("echo", "echoes", map[string]any{"type": "object"},
		func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"echoed": args}, nil
		})
	if err := r.Register(echo); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRunPlainAnswer(t *testing.T) {
	s := &scriptedStreamer{responses: []llm.Response{textResponse("Hello")}}
	a := New(s, echoRegistry(t), Options{})

	answer, err := a.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "Hello" {
		t.Errorf("answer = %q", answer)
	}

	msgs := a.History().Messages()
	if len(msgs) != 3 { // system, user, assistant
		t.Fatalf("history = %d messages, want 3", len(msgs))
	}
	if msgs[2].Role != llm.RoleAssistant || msgs[2].Content != "Hello" {
		t.Errorf("final message = %+v", msgs[2])
	}
}

func TestRunExecutesToolThenAnswers(t *testing.T) {
	s := &scriptedStreamer{responses: []llm.Response{
		toolCallResponse("c1", "echo", `{"query":"x"}`),
		textResponse("found it"),
	}}
	a := New(s, echoRegistry(t), Options{})

	answer, err := a.Run(context.Background(), "find x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "found it" {
		t.Errorf("answer = %q", answer)
	}

	msgs := a.History().Messages()
	// system, user, assistant(tool call), tool result, assistant answer
	if len(msgs) != 5 {
		t.Fatalf("history = %d messages, want 5", len(msgs))
	}
	toolMsg := msgs[3]
	if toolMsg.Role != llm.RoleTool || toolMsg.ToolCallID != "c1" || toolMsg.Name != "echo" {
		t.Errorf("tool message = %+v", toolMsg)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(toolMsg.Content), &result); err != nil {
		t.Fatalf("tool result not JSON: %v", err)
	}
	if _, ok := result["echoed"]; !ok {
		t.Errorf("tool result = %v", result)
	}

	if entries := a.Audit().Entries(); len(entries) != 1 || entries[0].Tool != "echo" {
		t.Errorf("audit = %+v", entries)
	}
}

// An adversarial model that always returns a tool call must stop at the
// step bound: with a bound of 10, call 11 never happens.
func TestRunStepBudget(t *testing.T) {
	s := &scriptedStreamer{responses: []llm.Response{
		toolCallResponse("c1", "echo", `{}`),
	}}
	a := New(s, echoRegistry(t), Options{MaxSteps: 10})

	answer, err := a.Run(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "" {
		t.Errorf("answer = %q, want empty (degraded)", answer)
	}
	if s.calls != 10 {
		t.Errorf("model calls = %d, want exactly 10", s.calls)
	}
}

func TestRunUnknownToolYieldsErrorResult(t *testing.T) {
	s := &scriptedStreamer{responses: []llm.Response{
		toolCallResponse("c1", "no_such_tool", `{}`),
		textResponse("ok"),
	}}
	a := New(s, echoRegistry(t), Options{})

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	toolMsg := a.History().Messages()[3]
	var result map[string]any
	if err := json.Unmarshal([]byte(toolMsg.Content), &result); err != nil {
		t.Fatal(err)
	}
	errText, _ := result["error"].(string)
	if !strings.Contains(errText, "unknown tool") {
		t.Errorf("result = %v, want unknown tool error", result)
	}
}

func TestRunToolFailureYieldsErrorResultAndContinues(t *testing.T) {
	r := tools.NewRegistry()
	t.Cleanup(r.Close)
	failing := tools.NewFunc("fragile", "fails", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("internal fault")
		})
	if err := r.Register(failing); err != nil {
		t.Fatal(err)
	}

	s := &scriptedStreamer{responses: []llm.Response{
		toolCallResponse("c1", "fragile", `{}`),
		textResponse("recovered"),
	}}
	a := New(s, r, Options{})

	answer, err := a.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "recovered" {
		t.Errorf("answer = %q, want recovered (loop must continue)", answer)
	}

	toolMsg := a.History().Messages()[3]
	var result map[string]any
	if err := json.Unmarshal([]byte(toolMsg.Content), &result); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result["error"].(string), "internal fault") {
		t.Errorf("result = %v", result)
	}
	if s.calls != 2 {
		t.Errorf("model calls = %d, want 2", s.calls)
	}
}

func TestRunRepairsTrailingCommaArguments(t *testing.T) {
	var seen map[string]any
	r := tools.NewRegistry()
	t.Cleanup(r.Close)
	capture := tools.NewFunc("capture", "records args", map[string]any{"type": "object"},
		func(_ context.Context, args map[string]any) (any, error) {
			seen = args
			return map[string]any{"ok": true}, nil
		})
	if err := r.Register(capture); err != nil {
		t.Fatal(err)
	}

	s := &scriptedStreamer{responses: []llm.Response{
		toolCallResponse("c1", "capture", `{"query": "x",}`),
		textResponse("done"),
	}}
	a := New(s, r, Options{})

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	if seen == nil || seen["query"] != "x" {
		t.Errorf("tool saw args %v, want repaired {query: x}", seen)
	}
}

func TestRunUnparseableArgumentsDegradeToErrorPayload(t *testing.T) {
	var seen map[string]any
	r := tools.NewRegistry()
	t.Cleanup(r.Close)
	capture := tools.NewFunc("capture", "records args", map[string]any{"type": "object"},
		func(_ context.Context, args map[string]any) (any, error) {
			seen = args
			return map[string]any{"ok": true}, nil
		})
	if err := r.Register(capture); err != nil {
		t.Fatal(err)
	}

	s := &scriptedStreamer{responses: []llm.Response{
		toolCallResponse("c1", "capture", `not json {{{`),
		textResponse("done"),
	}}
	a := New(s, r, Options{})

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	if seen == nil {
		t.Fatal("tool was not invoked")
	}
	if _, ok := seen["error"]; !ok {
		t.Errorf("tool saw args %v, want error payload", seen)
	}
	if seen["raw"] != `not json {{{` {
		t.Errorf("raw = %v", seen["raw"])
	}
}

func TestRunSynthesizesMissingCallIDs(t *testing.T) {
	s := &scriptedStreamer{responses: []llm.Response{
		toolCallResponse("", "echo", `{}`),
		textResponse("done"),
	}}
	a := New(s, echoRegistry(t), Options{})

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}

	msgs := a.History().Messages()
	assistant, toolMsg := msgs[2], msgs[3]
	id := assistant.ToolCalls[0].ID
	if id == "" {
		t.Fatal("missing id was not synthesized")
	}
	if toolMsg.ToolCallID != id {
		t.Errorf("tool message references %q, assistant call id is %q", toolMsg.ToolCallID, id)
	}
}

func TestRunTransportErrorBecomesAnswer(t *testing.T) {
	s := &scriptedStreamer{errs: []error{errors.New("connection refused")}}
	a := New(s, echoRegistry(t), Options{})

	answer, err := a.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Run: %v (transport failure must not surface as error)", err)
	}
	if !strings.Contains(answer, "connection refused") {
		t.Errorf("answer = %q, want the error text", answer)
	}
	if s.calls != 1 {
		t.Errorf("model calls = %d, want 1", s.calls)
	}
}

// Results of multiple tool calls in one message are appended in call order,
// even though execution may overlap.
func TestRunMultipleCallsAppendInCallOrder(t *testing.T) {
	r := tools.NewRegistry()
	t.Cleanup(r.Close)
	slow := tools.NewFunc("slow", "slow tool", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			time.Sleep(30 * time.Millisecond)
			return map[string]any{"who": "slow"}, nil
		})
	fast := tools.NewFunc("fast", "fast tool", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			return map[string]any{"who": "fast"}, nil
		})
	for _, tool := range []tools.Tool{slow, fast} {
		if err := r.Register(tool); err != nil {
			t.Fatal(err)
		}
	}

	s := &scriptedStreamer{responses: []llm.Response{
		{Message: llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "c0", Name: "slow", Arguments: `{}`},
				{ID: "c1", Name: "fast", Arguments: `{}`},
			},
		}},
		textResponse("done"),
	}}
	a := New(s, r, Options{})

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}

	msgs := a.History().Messages()
	// system, user, assistant, tool c0, tool c1, assistant
	if msgs[3].ToolCallID != "c0" || msgs[4].ToolCallID != "c1" {
		t.Errorf("tool results out of call order: %q then %q", msgs[3].ToolCallID, msgs[4].ToolCallID)
	}
}
