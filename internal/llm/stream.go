package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const (
	dataPrefix  = "data: "
	donePayload = "[DONE]"
)

// readFrames scans the line-delimited event stream and feeds the delta of
// each decoded frame's first choice to fn. Keep-alives, blank lines, corrupt
// JSON, and frames without choices are skipped; the literal [DONE] payload
// ends the stream normally.
func readFrames(r io.Reader, fn func(delta)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if payload == donePayload {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Proxies occasionally split or mangle frames; tolerate.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		fn(chunk.Choices[0].Delta)
	}
	return sc.Err()
}
