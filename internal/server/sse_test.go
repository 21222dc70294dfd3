package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rezamarzban/llama-client/internal/llm"
	"github.com/rezamarzban/llama-client/internal/storage"
	"github.com/rezamarzban/llama-client/internal/tools"
)

// A consumer hanging up on the SSE stream is only an observer going away:
// the turn keeps running and the completed transcript gets persisted.
func TestChatSSECompletesTurnAfterDisconnect(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		for _, tok := range []string{"Hello", " there", " friend"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", tok)
			f.Flush()
			time.Sleep(100 * time.Millisecond)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	store := testSQLite(t)
	registry := tools.NewRegistry()
	t.Cleanup(registry.Close)

	cfg := testConfig()
	cfg.Endpoint.URL = upstream.URL
	srv := New(cfg, store, registry)

	api := httptest.NewServer(srv.router)
	defer api.Close()

	resp, err := http.Post(api.URL+"/api/sessions", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	var sess storage.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	chat, err := http.Post(api.URL+"/api/sessions/"+sess.ID+"/chat", "application/json",
		strings.NewReader(`{"content": "hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	// Read the first frame, then hang up mid-turn.
	buf := make([]byte, 64)
	if _, err := chat.Body.Read(buf); err != nil {
		t.Fatal(err)
	}
	chat.Body.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		msgs, err := store.LoadMessages(context.Background(), sess.ID)
		if err == nil && len(msgs) == 3 &&
			msgs[2].Role == llm.RoleAssistant && msgs[2].Content == "Hello there friend" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("transcript after disconnect = %+v (err = %v)", msgs, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
