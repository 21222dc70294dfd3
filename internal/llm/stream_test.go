package llm

import (
	"strings"
	"testing"
)

func collectFrames(t *testing.T, stream string) []delta {
	t.Helper()
	var got []delta
	if err := readFrames(strings.NewReader(stream), func(d delta) {
		got = append(got, d)
	}); err != nil {
		t.Fatalf("readFrames: %v", err)
	}
	return got
}

func TestReadFramesSkipsNoise(t *testing.T) {
	stream := strings.Join([]string{
		"",                         // blank keep-alive
		": ping",                   // comment keep-alive
		"event: message",           // non-data field
		`data: {"choices":[{"delta":{"content":"hi"}}]}`,
		"data: not json at all",    // corrupt frame
		`data: {"object":"chat.completion.chunk"}`, // no choices
		`data: {"choices":[{"delta":{"content":"!"}}]}`,
		"data: [DONE]",
	}, "\n")

	got := collectFrames(t, stream)
	if len(got) != 2 {
		t.Fatalf("frames = %d, want 2", len(got))
	}
	if *got[0].Content != "hi" || *got[1].Content != "!" {
		t.Errorf("contents = %q, %q", *got[0].Content, *got[1].Content)
	}
}

func TestReadFramesStopsAtDone(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		"data: [DONE]",
		`data: {"choices":[{"delta":{"content":"never"}}]}`,
	}, "\n")

	got := collectFrames(t, stream)
	if len(got) != 1 {
		t.Fatalf("frames = %d, want 1 (nothing after [DONE])", len(got))
	}
}

func TestReadFramesEOFWithoutDone(t *testing.T) {
	// A stream cut off before [DONE] ends without error; the transport
	// decides whether that is a failure.
	got := collectFrames(t, `data: {"choices":[{"delta":{"content":"a"}}]}`)
	if len(got) != 1 {
		t.Fatalf("frames = %d, want 1", len(got))
	}
}

func TestReadFramesToolCallDelta(t *testing.T) {
	stream := `data: {"choices":[{"delta":{"tool_calls":[{"index":1,"id":"c1","function":{"name":"f","arguments":"{"}}]}}]}` + "\ndata: [DONE]"

	got := collectFrames(t, stream)
	if len(got) != 1 {
		t.Fatalf("frames = %d, want 1", len(got))
	}
	tc := got[0].ToolCalls[0]
	if tc.Index != 1 || tc.ID != "c1" || tc.Function.Name != "f" || tc.Function.Arguments != "{" {
		t.Errorf("tool call delta = %+v", tc)
	}
}
