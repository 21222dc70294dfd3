package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func main() {
	s := server.NewMCPServer("llama-client-web-search", "0.6.0")

	s.AddTool(mcp.Tool{
		Name:        "search_web",
		Description: "Search the web for current information, news, or facts.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			Required: []string{"query"},
		},
	}, handleSearchWeb)

	if err := server.ServeStdio(s); err != nil {
		fmt.Printf("server error: %v\n", err)
	}
}

func getArgs(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}

type searchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link,omitempty"`
	Snippet string `json:"snippet"`
}

func handleSearchWeb(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	query, _ := args["query"].(string)
	if query == "" {
		return errResult("error: 'query' is required"), nil
	}

	apiKey := os.Getenv("SERPAPI_KEY")
	if apiKey == "" {
		return errResult("error: SERPAPI_KEY not set"), nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", apiKey)
	params.Set("engine", "google")

	req, err := http.NewRequestWithContext(ctx, "GET", "https://serpapi.com/search?"+params.Encode(), nil)
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return errResult(fmt.Sprintf("error: search request failed: %v", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errResult(fmt.Sprintf("error reading response: %v", err)), nil
	}
	if resp.StatusCode != http.StatusOK {
		return errResult(fmt.Sprintf("error: SerpAPI returned %d: %s", resp.StatusCode, string(body))), nil
	}

	var parsed struct {
		OrganicResults []searchResult `json:"organic_results"`
		KnowledgeGraph struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"knowledge_graph"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return errResult(fmt.Sprintf("error parsing response: %v", err)), nil
	}

	results := parsed.OrganicResults
	if len(results) > 5 {
		results = results[:5]
	}
	// The knowledge graph often carries the direct answer; surface it first.
	if parsed.KnowledgeGraph.Description != "" {
		title := parsed.KnowledgeGraph.Title
		if title == "" {
			title = "Knowledge Graph"
		}
		results = append([]searchResult{{Title: title, Snippet: parsed.KnowledgeGraph.Description}}, results...)
	}

	if len(results) == 0 {
		return textResult(fmt.Sprintf(`{"message": "No results found for %q"}`, query)), nil
	}

	out, err := json.Marshal(map[string]any{"results": results})
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	return textResult(string(out)), nil
}
