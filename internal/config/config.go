package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rezamarzban/llama-client/internal/tools"
)

// EndpointConfig identifies the chat-completions endpoint and model.
type EndpointConfig struct {
	URL    string `mapstructure:"url"`
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"api_key"`
}

// SamplingConfig holds the generation parameters sent on every request.
type SamplingConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ClientConfig tunes the streaming transport.
type ClientConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type AgentConfig struct {
	MaxSteps     int    `mapstructure:"max_steps"`
	HistoryLimit int    `mapstructure:"history_limit"`
	ProfilesDir  string `mapstructure:"profiles_dir"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type Config struct {
	Endpoint EndpointConfig                `mapstructure:"endpoint"`
	Sampling SamplingConfig                `mapstructure:"sampling"`
	Client   ClientConfig                  `mapstructure:"client"`
	Agent    AgentConfig                   `mapstructure:"agent"`
	Server   ServerConfig                  `mapstructure:"server"`
	Storage  StorageConfig                 `mapstructure:"storage"`
	Tools    map[string]tools.ServerConfig `mapstructure:"tools"`
}

// Load reads llama-client.yaml from the working directory or ~/.llama-client.
// A missing file is not an error; defaults cover a local llama.cpp server.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("llama-client")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.llama-client")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Endpoint.URL = NormalizeEndpoint(cfg.Endpoint.URL)
	// Tool server env entries are expanded at spawn time; only the API key
	// needs resolving here.
	cfg.Endpoint.APIKey = expandEnv(cfg.Endpoint.APIKey)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint.model", "local-model")
	v.SetDefault("sampling.temperature", 0.7)
	v.SetDefault("sampling.top_p", 0.95)
	v.SetDefault("sampling.max_tokens", 4096)
	v.SetDefault("client.max_retries", 3)
	v.SetDefault("client.backoff_base", 1500*time.Millisecond)
	v.SetDefault("client.timeout", 10*time.Minute)
	v.SetDefault("agent.max_steps", 20)
	v.SetDefault("agent.history_limit", 50)
	v.SetDefault("server.port", 8000)
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".llama-client", "sessions.db"))
}

// NormalizeEndpoint turns a base URL into the full chat-completions URL.
// Users typically configure just the /v1 base; an empty value targets a
// local llama.cpp server on the default port.
func NormalizeEndpoint(url string) string {
	if url == "" {
		return "http://127.0.0.1:8080/v1/chat/completions"
	}
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	switch {
	case strings.HasSuffix(url, "/chat/completions"):
	case strings.HasSuffix(url, "/v1"):
		url += "/chat/completions"
	case strings.Contains(url, "/v1/"):
		url += "/chat/completions"
	default:
		url += "/v1/chat/completions"
	}
	return url
}

// expandEnv resolves a ${VAR} placeholder against the environment. Anything
// else passes through untouched.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

// Updates carries the subset of settings adjustable at runtime. Nil fields
// are left alone.
type Updates struct {
	URL         *string  `json:"api_url"`
	Model       *string  `json:"model"`
	APIKey      *string  `json:"api_key"`
	Temperature *float64 `json:"temperature"`
	TopP        *float64 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
}

// WithUpdates returns a copy of the config with the given fields replaced.
// The receiver is never mutated and nothing is persisted.
func (c Config) WithUpdates(u Updates) Config {
	if u.URL != nil {
		c.Endpoint.URL = NormalizeEndpoint(*u.URL)
	}
	if u.Model != nil {
		c.Endpoint.Model = *u.Model
	}
	if u.APIKey != nil {
		c.Endpoint.APIKey = *u.APIKey
	}
	if u.Temperature != nil {
		c.Sampling.Temperature = *u.Temperature
	}
	if u.TopP != nil {
		c.Sampling.TopP = *u.TopP
	}
	if u.MaxTokens != nil {
		c.Sampling.MaxTokens = *u.MaxTokens
	}
	return c
}
