package main

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func main() {
	s := server.NewMCPServer("llama-client-arxiv-search", "0.6.0")

	s.AddTool(mcp.Tool{
		Name:        "search_arxiv",
		Description: "Search arXiv for scientific papers in physics, math, computer science, engineering, etc. Returns title, authors, abstract, PDF link.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query (supports ti:, au:, cat: prefixes)",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Number of papers (max 20)",
					"default":     10,
				},
			},
			Required: []string{"query"},
		},
	}, handleSearchArxiv)

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

// Atom feed structure of the arXiv query API.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Type  string `xml:"type,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

type paper struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Abstract  string   `json:"abstract"`
	AbsURL    string   `json:"abs_url"`
	PDFURL    string   `json:"pdf_url"`
	Published string   `json:"published"`
	ArxivID   string   `json:"arxiv_id"`
}

// maxResultsArg coerces the model-supplied count, which arrives as a float,
// a string, or nothing at all.
func maxResultsArg(args map[string]any) int {
	n := 10
	switch v := args["max_results"].(type) {
	case float64:
		n = int(v)
	case string:
		fmt.Sscanf(v, "%d", &n)
	}
	if n < 1 {
		n = 1
	}
	if n > 20 {
		n = 20
	}
	return n
}

func handleSearchArxiv(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	query, _ := args["query"].(string)
	if query == "" {
		return errResult("error: 'query' is required"), nil
	}
	maxResults := maxResultsArg(args)

	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", maxResults))
	params.Set("sortBy", "relevance")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, "GET", "http://export.arxiv.org/api/query?"+params.Encode(), nil)
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	req.Header.Set("User-Agent", "llama-client/0.6")

	resp, err := httpClient.Do(req)
	if err != nil {
		return errResult(fmt.Sprintf("error: arXiv search failed: %v", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errResult(fmt.Sprintf("error reading response: %v", err)), nil
	}
	if resp.StatusCode != http.StatusOK {
		return errResult(fmt.Sprintf("error: arXiv API returned %d", resp.StatusCode)), nil
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return errResult(fmt.Sprintf("error parsing feed: %v", err)), nil
	}

	papers := make([]paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		p := paper{
			Title:    clampText(e.Title, 320),
			Abstract: clampText(e.Summary, 950),
		}
		for _, a := range e.Authors {
			p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
			if len(p.Authors) == 10 {
				break
			}
		}
		for _, l := range e.Links {
			switch {
			case l.Title == "pdf" || l.Type == "application/pdf":
				p.PDFURL = l.Href
			case l.Type == "text/html":
				p.AbsURL = l.Href
			}
		}
		if p.AbsURL != "" {
			parts := strings.Split(p.AbsURL, "/")
			p.ArxivID = parts[len(parts)-1]
		}
		if len(e.Published) >= 10 {
			p.Published = e.Published[:10]
		}
		papers = append(papers, p)
	}

	out, err := json.Marshal(map[string]any{
		"query":         query,
		"results_found": len(papers),
		"results":       papers,
	})
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	return textResult(string(out)), nil
}

func clampText(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
