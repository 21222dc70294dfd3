package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	fetchBodyLimit    = 50_000
	fetchContentLimit = 8_000
)

var fetchClient = &http.Client{Timeout: 30 * time.Second}

// FetchURL is the builtin fallback tool, registered when no MCP servers are
// configured so the model always has at least one capability.
func FetchURL() Tool {
	return NewFunc(
		"fetch_url",
		"Fetch the raw text content of a URL via HTTP GET. Use this to read a specific page when you already know its address.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The full URL to fetch (e.g. https://example.com/article)",
				},
			},
			"required": []string{"url"},
		},
		fetchURL,
	)
}

func fetchURL(ctx context.Context, args map[string]any) (any, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("'url' argument must be a non-empty string")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "llama-client/0.6")

	resp, err := fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	content := string(body)
	if len(content) > fetchContentLimit {
		content = content[:fetchContentLimit] + "\n... (truncated)"
	}

	return map[string]any{
		"url":     url,
		"content": content,
	}, nil
}
