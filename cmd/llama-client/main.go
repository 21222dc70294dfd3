package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	modelFlag   string
	profileFlag string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "llama-client",
	Short: "llama-client - streaming chat client for OpenAI-compatible endpoints",
	Long: `llama-client is a turn-based chat client for OpenAI-compatible streaming
endpoints: a local llama.cpp server, OpenAI, DeepSeek, Groq, or anything
speaking the same protocol.

The agent streams tokens as they arrive, executes tool calls through MCP
servers, and persists conversations in SQLite.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if verboseFlag {
			level = zerolog.DebugLevel
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model to use (overrides config)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Agent profile to use (e.g. default, researcher)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
