package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPConnection wraps an mcp-go stdio client for a single tool server
// subprocess.
type MCPConnection struct {
	name   string
	client *client.Client
	tools  []Tool
}

// NewMCPConnection launches the server binary, initializes the protocol,
// and discovers its tools.
func NewMCPConnection(name string, cfg ServerConfig) (*MCPConnection, error) {
	env := append([]string{}, os.Environ()...)
	for k, v := range cfg.Env {
		// Expand ${VAR} references so keys can live in the environment
		// instead of the config file.
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			v = os.Getenv(v[2 : len(v)-1])
		}
		env = append(env, k+"="+v)
	}

	c, err := client.NewStdioMCPClient(cfg.Binary, env)
	if err != nil {
		return nil, fmt.Errorf("starting MCP server %s (%s): %w", name, cfg.Binary, err)
	}

	ctx := context.Background()

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ClientInfo: mcp.Implementation{
				Name:    "llama-client",
				Version: "0.6.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing MCP server %s: %w", name, err)
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("listing tools from %s: %w", name, err)
	}

	conn := &MCPConnection{name: name, client: c}
	for _, t := range listed.Tools {
		conn.tools = append(conn.tools, &mcpTool{conn: conn, def: t})
	}
	return conn, nil
}

// Tools returns the server's tools wrapped for the registry.
func (mc *MCPConnection) Tools() []Tool {
	return mc.tools
}

// Close shuts down the server subprocess.
func (mc *MCPConnection) Close() {
	mc.client.Close()
}

// mcpTool adapts one remote MCP tool to the Tool interface.
type mcpTool struct {
	conn *MCPConnection
	def  mcp.Tool
}

func (t *mcpTool) Name() string        { return t.def.Name }
func (t *mcpTool) Description() string { return t.def.Description }

func (t *mcpTool) Parameters() map[string]any {
	params := map[string]any{"type": t.def.InputSchema.Type}
	if t.def.InputSchema.Properties != nil {
		params["properties"] = t.def.InputSchema.Properties
	}
	if len(t.def.InputSchema.Required) > 0 {
		params["required"] = t.def.InputSchema.Required
	}
	return params
}

func (t *mcpTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	result, err := t.conn.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      t.def.Name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calling tool %s on %s: %w", t.def.Name, t.conn.name, err)
	}

	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		return nil, fmt.Errorf("%s", text)
	}

	// Tool servers usually answer with a JSON document; pass it through
	// structured when they do.
	var structured any
	if err := json.Unmarshal([]byte(text), &structured); err == nil {
		return structured, nil
	}
	return text, nil
}
