package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func echoTool(name string) Tool {
	return NewFunc(name, "echoes its arguments", map[string]any{"type": "object"},
		func(_ context.Context, args map[string]any) (any, error) {
			return args, nil
		})
}

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	if r.HasTools() {
		t.Fatal("empty registry should not have tools")
	}
	if got := r.Schemas(); len(got) != 0 {
		t.Fatalf("Schemas() = %d, want 0", len(got))
	}

	_, err := r.Call(context.Background(), "nonexistent", nil)
	if err == nil {
		t.Fatal("Call on empty registry should return error")
	}
	if !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("error = %v, want unknown tool", err)
	}
}

func TestRegistryRegisterAndCall(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	result, err := r.Call(context.Background(), "echo", map[string]any{"x": 1.0})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	args, ok := result.(map[string]any)
	if !ok || args["x"] != 1.0 {
		t.Errorf("result = %v", result)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(echoTool("echo")); err == nil {
		t.Fatal("duplicate Register should error")
	}
}

func TestRegistrySchemasOrdered(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	for _, name := range []string{"search_web", "scrape_url", "search_arxiv"} {
		if err := r.Register(echoTool(name)); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}

	defs := r.Schemas()
	want := []string{"search_web", "scrape_url", "search_arxiv"}
	for i, def := range defs {
		if def.Name != want[i] {
			t.Errorf("Schemas()[%d] = %q, want %q", i, def.Name, want[i])
		}
	}
}

func TestRegistryCallRecoversPanic(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	panicky := NewFunc("boom", "always panics", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			panic("kaboom")
		})
	if err := r.Register(panicky); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := r.Call(context.Background(), "boom", nil)
	if err == nil {
		t.Fatal("panicking tool must surface as error")
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("error = %v, want panic message", err)
	}
}

func TestRegistryCallPropagatesToolError(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	failing := NewFunc("fail", "always fails", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("no results")
		})
	if err := r.Register(failing); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := r.Call(context.Background(), "fail", nil)
	if err == nil || err.Error() != "no results" {
		t.Errorf("err = %v, want no results", err)
	}
}

func TestRegisterServerSkipsDisabled(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	err := r.RegisterServer("disabled", ServerConfig{
		Binary:  "/nonexistent/binary",
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("disabled server should not error: %v", err)
	}
	if r.HasTools() {
		t.Fatal("disabled server should not register tools")
	}
}

func TestRegisterServerBadBinary(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	err := r.RegisterServer("bad", ServerConfig{
		Binary:  "/nonexistent/binary",
		Enabled: true,
	})
	if err == nil {
		t.Fatal("missing binary should error")
	}
}
