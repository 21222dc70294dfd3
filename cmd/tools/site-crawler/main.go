package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/net/html"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func main() {
	s := server.NewMCPServer("llama-client-site-crawler", "0.6.0")

	s.AddTool(mcp.Tool{
		Name:        "scrape_url",
		Description: "Fetch a single web page and extract its readable text.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The page URL",
				},
			},
			Required: []string{"url"},
		},
	}, handleScrapeURL)

	s.AddTool(mcp.Tool{
		Name:        "crawl_website",
		Description: "Crawl a website breadth-first from a starting URL, extracting text from each page. Stays on the starting domain.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The starting URL",
				},
				"max_depth": map[string]any{
					"type":        "integer",
					"description": "Link depth to follow (max 5)",
					"default":     2,
				},
				"max_pages": map[string]any{
					"type":        "integer",
					"description": "Page limit (max 30)",
					"default":     10,
				},
			},
			Required: []string{"url"},
		},
	}, handleCrawlWebsite)

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

func intArg(args map[string]any, key string, def, min, max int) int {
	n := def
	switch v := args[key].(type) {
	case float64:
		n = int(v)
	case string:
		fmt.Sscanf(v, "%d", &n)
	}
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n
}

// fetchPage downloads a page and parses it, returning the document root.
func fetchPage(ctx context.Context, pageURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "llama-client/0.6")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("not an HTML page: %s", ct)
	}

	return html.Parse(io.LimitReader(resp.Body, 1<<20))
}

// extractText walks the parse tree collecting visible text, skipping script
// and style subtrees.
func extractText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
		return
	}
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb)
	}
}

func pageTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := pageTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// extractLinks resolves every anchor href against the page URL.
func extractLinks(n *html.Node, base *url.URL, out *[]string) {
	if n.Type == html.ElementNode && n.Data == "a" {
		for _, attr := range n.Attr {
			if attr.Key != "href" {
				continue
			}
			ref, err := url.Parse(attr.Val)
			if err != nil {
				continue
			}
			resolved := base.ResolveReference(ref)
			if resolved.Scheme == "http" || resolved.Scheme == "https" {
				resolved.Fragment = ""
				*out = append(*out, resolved.String())
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractLinks(c, base, out)
	}
}

type pageResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

func scrapeOne(ctx context.Context, pageURL string, textLimit int) (*pageResult, []string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, err
	}

	doc, err := fetchPage(ctx, pageURL)
	if err != nil {
		return nil, nil, err
	}

	var sb strings.Builder
	extractText(doc, &sb)
	text := sb.String()
	if len(text) > textLimit {
		text = text[:textLimit] + "\n... (truncated)"
	}

	var links []string
	extractLinks(doc, parsed, &links)

	return &pageResult{URL: pageURL, Title: pageTitle(doc), Text: text}, links, nil
}

func handleScrapeURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	pageURL, _ := args["url"].(string)
	if pageURL == "" {
		return errResult("error: 'url' is required"), nil
	}

	page, _, err := scrapeOne(ctx, pageURL, 8000)
	if err != nil {
		return errResult(fmt.Sprintf("error: scraping %s: %v", pageURL, err)), nil
	}

	out, err := json.Marshal(page)
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	return textResult(string(out)), nil
}

func handleCrawlWebsite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	startURL, _ := args["url"].(string)
	if startURL == "" {
		return errResult("error: 'url' is required"), nil
	}
	maxDepth := intArg(args, "max_depth", 2, 1, 5)
	maxPages := intArg(args, "max_pages", 10, 1, 30)

	start, err := url.Parse(startURL)
	if err != nil {
		return errResult(fmt.Sprintf("error: invalid url: %v", err)), nil
	}
	baseDomain := strings.ToLower(start.Hostname())

	type queued struct {
		url   string
		depth int
	}
	queue := []queued{{startURL, 0}}
	visited := map[string]bool{}
	var pages []pageResult

	for len(queue) > 0 && len(pages) < maxPages {
		if ctx.Err() != nil {
			break
		}

		item := queue[0]
		queue = queue[1:]
		if visited[item.url] {
			continue
		}
		visited[item.url] = true

		page, links, err := scrapeOne(ctx, item.url, 4000)
		if err != nil {
			continue
		}
		// Pages with next to no text are navigation shells; skip them but
		// still follow their links.
		if len(strings.TrimSpace(page.Text)) >= 80 {
			pages = append(pages, *page)
		}

		if item.depth >= maxDepth {
			continue
		}
		for _, link := range links {
			u, err := url.Parse(link)
			if err != nil || visited[link] {
				continue
			}
			if strings.ToLower(u.Hostname()) != baseDomain {
				continue
			}
			queue = append(queue, queued{link, item.depth + 1})
		}
	}

	out, err := json.Marshal(map[string]any{
		"start_url":     startURL,
		"pages_crawled": len(pages),
		"pages":         pages,
	})
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	return textResult(string(out)), nil
}
