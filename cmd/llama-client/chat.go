package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/rezamarzban/llama-client/internal/agent"
	"github.com/rezamarzban/llama-client/internal/config"
	"github.com/rezamarzban/llama-client/internal/llm"
	"github.com/rezamarzban/llama-client/internal/retry"
	"github.com/rezamarzban/llama-client/internal/storage"
	"github.com/rezamarzban/llama-client/internal/tools"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive conversation. The assistant can call tools while
answering.

Examples:
  llama-client chat
  llama-client chat --model qwen2.5-32b
  llama-client chat --profile researcher`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// buildRegistry starts the configured MCP tool servers. When none are
// configured (or all fail), the builtin URL fetcher keeps the assistant
// able to reach the web.
func buildRegistry(cfg *config.Config, warn func(format string, a ...any)) *tools.Registry {
	registry := tools.NewRegistry()

	for name, toolCfg := range cfg.Tools {
		if err := registry.RegisterServer(name, toolCfg); err != nil {
			warn("Warning: failed to start tool server %s: %v\n", name, err)
		}
	}

	if !registry.HasTools() {
		registry.Register(tools.FetchURL())
	}
	return registry
}

func buildClient(cfg *config.Config, model string) *llm.Client {
	rc := retry.DefaultConfig()
	if cfg.Client.MaxRetries > 0 {
		rc.MaxAttempts = cfg.Client.MaxRetries
	}
	if cfg.Client.BackoffBase > 0 {
		rc.BaseDelay = cfg.Client.BackoffBase
	}

	return llm.NewClient(cfg.Endpoint.URL, cfg.Endpoint.APIKey, model, llm.Options{
		Temperature: cfg.Sampling.Temperature,
		TopP:        cfg.Sampling.TopP,
		MaxTokens:   cfg.Sampling.MaxTokens,
		Timeout:     cfg.Client.Timeout,
		Retry:       rc,
	})
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	var profile *agent.Profile
	if profileFlag != "" {
		profilePath := filepath.Join(cfg.Agent.ProfilesDir, profileFlag+".yaml")
		profile, err = agent.LoadProfile(profilePath)
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
	}

	model := modelFlag
	if model == "" {
		if profile != nil && profile.Model != "" {
			model = profile.Model
		} else {
			model = cfg.Endpoint.Model
		}
	}

	opts := agent.Options{
		MaxSteps:     cfg.Agent.MaxSteps,
		HistoryLimit: cfg.Agent.HistoryLimit,
	}
	if profile != nil {
		if profile.SystemPrompt != "" {
			opts.SystemPrompt = profile.SystemPrompt
		}
		if profile.MaxSteps > 0 {
			opts.MaxSteps = profile.MaxSteps
		}
	}

	fmt.Printf("llama-client - interactive chat\n")
	if profile != nil {
		fmt.Printf("Profile: %s\n", profile.Name)
	}
	fmt.Printf("Endpoint: %s | Model: %s\n", cfg.Endpoint.URL, model)

	registry := buildRegistry(cfg, func(format string, a ...any) {
		fmt.Printf(format, a...)
	})
	defer registry.Close()

	fmt.Printf("Tools: %s\n", strings.Join(registry.Names(), ", "))
	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	a := agent.New(buildClient(cfg, model), registry, opts)
	if profile != nil {
		a.FilterTools(profile.Tools)
	}

	// When resuming, the transcript comes from storage and goes back to it
	// after every turn.
	var store storage.Store
	var sess *storage.Session
	if resumeID != "" {
		store, err = openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		sess, err = store.GetSession(context.Background(), resumeID)
		if err != nil {
			return err
		}
		msgs, err := store.LoadMessages(context.Background(), sess.ID)
		if err != nil {
			return err
		}
		a.History().Restore(msgs)
		fmt.Printf("Resumed session %s (%d messages)\n\n", sess.ID[:8], len(msgs))
	}

	a.OnToken = func(token string) {
		fmt.Print(token)
	}
	a.OnStatus = func(status string) {
		fmt.Printf("\033[90m%s\033[0m\n", status)
	}
	a.OnToolCall = func(name string, callArgs map[string]any) {
		fmt.Printf("\n  \033[33m⚡ Tool: %s\033[0m\n", agent.FormatToolCall(name, callArgs))
	}
	a.OnToolResult = func(name string, result any) {
		rendered, err := json.MarshalIndent(result, "  ", "  ")
		if err != nil {
			return
		}
		lines := strings.Split(string(rendered), "\n")
		preview := lines
		if len(preview) > 8 {
			preview = preview[:8]
		}
		for _, line := range preview {
			fmt.Printf("  \033[90m│ %s\033[0m\n", line)
		}
		if len(lines) > 8 {
			fmt.Printf("  \033[90m│ ... (%d more lines)\033[0m\n", len(lines)-8)
		}
		fmt.Println()
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36myou>\033[0m ",
		HistoryFile:     filepath.Join(os.TempDir(), "llama_client_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Ctrl+C cancels the in-flight request, not the whole program.
	var reqCancel context.CancelFunc
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if reqCancel != nil {
				reqCancel()
			}
		}
	}()

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if handleCommand(input, a, registry) {
				continue
			}
		}

		reqCtx, cancel := context.WithCancel(context.Background())
		reqCancel = cancel

		fmt.Printf("\n\033[32massistant>\033[0m ")
		answer, err := a.Run(reqCtx, input)
		wasInterrupted := reqCtx.Err() != nil
		cancel()
		reqCancel = nil

		if store != nil {
			persistCtx := context.Background()
			if saveErr := store.SaveMessages(persistCtx, sess.ID, a.History().Messages()); saveErr != nil {
				fmt.Printf("\n\033[31msaving session: %s\033[0m\n", saveErr)
			}
			for _, entry := range a.Audit().Entries() {
				store.AppendToolLog(persistCtx, sess.ID, entry)
			}
			a.Audit().Clear()
			store.UpdateSession(persistCtx, sess)
		}

		if err != nil {
			if wasInterrupted {
				fmt.Println("\n(interrupted)")
				continue
			}
			fmt.Printf("\n\033[31merror: %s\033[0m\n\n", err)
			continue
		}
		if answer == "" {
			fmt.Println("\n(no final answer)")
		}

		fmt.Printf("\n\n")
	}
}

func handleCommand(input string, a *agent.Agent, registry *tools.Registry) bool {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		os.Exit(0)
	case "/reset":
		a.History().Reset()
		a.Audit().Clear()
		fmt.Println("Conversation reset.")
		fmt.Println()
	case "/history":
		data, err := json.MarshalIndent(a.History().Messages(), "", "  ")
		if err == nil {
			fmt.Println(string(data))
		}
		fmt.Println()
	case "/tools":
		for _, def := range registry.Schemas() {
			fmt.Printf("  %s - %s\n", def.Name, def.Description)
		}
		fmt.Println()
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help     - Show this help")
		fmt.Println("  /reset    - Clear conversation history")
		fmt.Println("  /history  - Show raw conversation history (JSON)")
		fmt.Println("  /tools    - List available tools")
		fmt.Println("  /quit     - Exit")
		fmt.Println()
	default:
		fmt.Printf("Unknown command: %s (try /help)\n\n", input)
	}
	return true
}
