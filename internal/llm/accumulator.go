package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// minTokensForRate is the smallest sample worth a tokens/s figure.
const minTokensForRate = 3

// partialCall is a tool call under construction. Every field grows by
// string concatenation only; fragments never overwrite.
type partialCall struct {
	id   string
	name string
	args string
}

// accumulator folds the ordered delta stream into one finished assistant
// message. It survives across transport retries so a reconnect continues
// where the dropped stream left off.
type accumulator struct {
	content strings.Builder

	// calls is addressed by the index field of tool-call deltas. Fragments
	// for a given index arrive in order, but different indices interleave,
	// so the slice grows lazily with placeholders.
	calls []partialCall

	// legacy collects the deprecated function_call channel, which carries
	// no index and at most one call per message.
	legacy partialCall

	tokenCount int
	firstToken time.Time
}

// add folds one delta fragment and returns the text token it carried, if any.
func (a *accumulator) add(d delta) (token string, ok bool) {
	if d.Content != nil {
		if a.firstToken.IsZero() {
			a.firstToken = time.Now()
		}
		a.content.WriteString(*d.Content)
		a.tokenCount++
		token, ok = *d.Content, true
	}

	for _, tc := range d.ToolCalls {
		idx := tc.Index
		if idx < 0 {
			continue
		}
		for len(a.calls) <= idx {
			a.calls = append(a.calls, partialCall{})
		}
		a.calls[idx].id += tc.ID
		a.calls[idx].name += tc.Function.Name
		a.calls[idx].args += tc.Function.Arguments
	}

	if d.FunctionCall != nil {
		a.legacy.name += d.FunctionCall.Name
		a.legacy.args += d.FunctionCall.Arguments
	}

	return token, ok
}

// finish assembles the accumulated fragments into the assistant message and
// the tokens/s metric (0 when below the measurement threshold).
func (a *accumulator) finish() (Message, float64) {
	msg := Message{
		Role:    RoleAssistant,
		Content: strings.TrimSpace(a.content.String()),
	}

	for _, pc := range a.calls {
		if pc.name == "" {
			// An indexed call whose name never materialized is noise.
			continue
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        pc.id,
			Name:      pc.name,
			Arguments: pc.args,
		})
	}

	// Promote a finished legacy call so downstream consumers see one
	// uniform representation.
	if len(msg.ToolCalls) == 0 && a.legacy.name != "" {
		msg.ToolCalls = []ToolCall{{
			ID:        newCallID(),
			Name:      a.legacy.name,
			Arguments: a.legacy.args,
		}}
	}

	if len(msg.ToolCalls) == 0 && msg.Content != "" {
		if calls := recoverInlineCalls(msg.Content); len(calls) > 0 {
			msg.ToolCalls = calls
			msg.Content = ""
		}
	}

	var rate float64
	if a.tokenCount > minTokensForRate && !a.firstToken.IsZero() {
		if elapsed := time.Since(a.firstToken).Seconds(); elapsed > 0 {
			rate = float64(a.tokenCount) / elapsed
		}
	}

	return msg, rate
}

// newCallID synthesizes a tool call identifier for models that omit one.
func newCallID() string {
	return "call_" + uuid.NewString()[:8]
}

var (
	inlineCallMarker = regexp.MustCompile(`\{"type":\s*"function"`)
	inlineCallSplit  = regexp.MustCompile(`;\s*`)
)

// recoverInlineCalls handles models that emit tool-call JSON in the text
// content instead of the structured channel. The content is split into
// `;`-separated JSON objects and each {type, name, arguments} object becomes
// a synthesized call. Strictly best-effort: any parse failure discards the
// whole attempt, and legitimate text containing the marker pattern can
// trigger a futile parse (which then fails and leaves the text alone).
func recoverInlineCalls(content string) []ToolCall {
	if !inlineCallMarker.MatchString(content) {
		return nil
	}

	var calls []ToolCall
	for i, part := range inlineCallSplit.Split(content, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var parsed struct {
			Type      string         `json:"type"`
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(part), &parsed); err != nil {
			return nil
		}
		if parsed.Type != "function" || parsed.Name == "" || parsed.Arguments == nil {
			continue
		}

		args, err := json.Marshal(parsed.Arguments)
		if err != nil {
			return nil
		}
		calls = append(calls, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      parsed.Name,
			Arguments: string(args),
		})
	}
	return calls
}
