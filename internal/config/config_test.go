package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "http://127.0.0.1:8080/v1/chat/completions"},
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"https://api.groq.com/openai/v1", "https://api.groq.com/openai/v1/chat/completions"},
		{"https://api.deepseek.com/v1/chat/completions", "https://api.deepseek.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"  https://api.x.ai/v1  ", "https://api.x.ai/v1/chat/completions"},
		{"https://example.com/v1/beta", "https://example.com/v1/beta/chat/completions"},
	}
	for _, tt := range tests {
		if got := NormalizeEndpoint(tt.in); got != tt.want {
			t.Errorf("NormalizeEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("LLAMA_TEST_KEY", "sk-secret")

	if got := expandEnv("${LLAMA_TEST_KEY}"); got != "sk-secret" {
		t.Errorf("expandEnv placeholder = %q", got)
	}
	if got := expandEnv("literal-key"); got != "literal-key" {
		t.Errorf("expandEnv literal = %q", got)
	}
	if got := expandEnv(""); got != "" {
		t.Errorf("expandEnv empty = %q", got)
	}
}

func TestWithUpdatesReplacesOnlyGivenFields(t *testing.T) {
	base := Config{
		Endpoint: EndpointConfig{URL: "http://127.0.0.1:8080/v1/chat/completions", Model: "local-model"},
		Sampling: SamplingConfig{Temperature: 0.7, TopP: 0.95, MaxTokens: 4096},
	}

	model := "qwen2.5"
	temp := 0.2
	updated := base.WithUpdates(Updates{Model: &model, Temperature: &temp})

	if updated.Endpoint.Model != "qwen2.5" || updated.Sampling.Temperature != 0.2 {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Sampling.TopP != 0.95 || updated.Endpoint.URL != base.Endpoint.URL {
		t.Errorf("untouched fields changed: %+v", updated)
	}
	if base.Endpoint.Model != "local-model" || base.Sampling.Temperature != 0.7 {
		t.Errorf("receiver was mutated: %+v", base)
	}
}

func TestWithUpdatesNormalizesURL(t *testing.T) {
	url := "https://api.openai.com/v1"
	updated := Config{}.WithUpdates(Updates{URL: &url})

	if updated.Endpoint.URL != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("URL = %q", updated.Endpoint.URL)
	}
}

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load without config file: %v", err)
	}
	if cfg.Endpoint.URL != "http://127.0.0.1:8080/v1/chat/completions" {
		t.Errorf("URL = %q", cfg.Endpoint.URL)
	}
	if cfg.Sampling.MaxTokens != 4096 || cfg.Agent.MaxSteps != 20 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Client.MaxRetries != 3 {
		t.Errorf("max retries = %d", cfg.Client.MaxRetries)
	}
}

func TestLoadReadsFileAndExpandsKey(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("MY_API_KEY", "sk-live")

	yaml := `
endpoint:
  url: https://api.openai.com/v1
  model: gpt-4o-mini
  api_key: ${MY_API_KEY}
sampling:
  temperature: 0.3
tools:
  web-search:
    binary: ./bin/web-search
    enabled: true
    env:
      SERPAPI_KEY: ${MY_API_KEY}
`
	if err := os.WriteFile(filepath.Join(dir, "llama-client.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Endpoint.URL != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("URL = %q, want normalized", cfg.Endpoint.URL)
	}
	if cfg.Endpoint.APIKey != "sk-live" {
		t.Errorf("APIKey = %q, want expanded", cfg.Endpoint.APIKey)
	}
	if cfg.Sampling.Temperature != 0.3 {
		t.Errorf("temperature = %v", cfg.Sampling.Temperature)
	}
	if cfg.Sampling.TopP != 0.95 {
		t.Errorf("top_p = %v, defaults must survive a partial file", cfg.Sampling.TopP)
	}
	ws, ok := cfg.Tools["web-search"]
	if !ok || !ws.Enabled || ws.Binary != "./bin/web-search" {
		t.Fatalf("tools = %+v", cfg.Tools)
	}
}
