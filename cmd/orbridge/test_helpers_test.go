package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"orbridge/internal/config"
)

const testAPIKey = "sk-or-v1-cli-test-key"

// fakeOpenRouter serves the catalog, key and chat completion endpoints.
type fakeOpenRouter struct {
	mu          sync.Mutex
	chatStatus  int
	chatBody    string
	chats       []map[string]any
	keyRejected bool
}

func (f *fakeOpenRouter) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[
			{"id":"openai/gpt-4o-mini","name":"OpenAI: GPT-4o-mini","context_length":128000,
			 "architecture":{"input_modalities":["text","image"]},"supported_parameters":["response_format"]},
			{"id":"meta-llama/llama-3-8b-instruct","name":"Meta: Llama 3 8B Instruct","context_length":8192,
			 "architecture":{"input_modalities":["text"]}}
		]}`)
	})
	mux.HandleFunc("GET /api/v1/key", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		rejected := f.keyRejected
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if rejected || r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"No auth credentials found","code":401}}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":{"label":"sk-or-v1-cli...key","usage":1.25,"limit":null,"is_free_tier":true}}`)
	})
	mux.HandleFunc("POST /api/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		f.chats = append(f.chats, payload)
		status, body := f.chatStatus, f.chatBody
		f.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	return mux
}

func (f *fakeOpenRouter) reply(content string) {
	encoded, _ := json.Marshal(content)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatStatus = http.StatusOK
	f.chatBody = `{"model":"openai/gpt-4o-mini","choices":[{"message":{"role":"assistant","content":` + string(encoded) + `},"finish_reason":"stop"}]}`
}

func (f *fakeOpenRouter) fail(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatStatus = status
	f.chatBody = body
}

func (f *fakeOpenRouter) rejectKeys() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyRejected = true
}

func (f *fakeOpenRouter) lastChat(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chats) == 0 {
		t.Fatal("expected a chat completion request")
	}
	return f.chats[len(f.chats)-1]
}

type cliTestEnv struct {
	baseDir    string
	configPath string
	upstream   *fakeOpenRouter
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("ORBRIDGE_API_TOKEN", "")

	upstream := &fakeOpenRouter{}
	upstream.reply("ok")
	server := httptest.NewServer(upstream.handler())
	t.Cleanup(server.Close)

	configPath := filepath.Join(base, "orbridge.toml")
	content := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"

[openrouter]
api_key = %q
base_url = %q

[dispatch]
capacity_retry_delays = []
rate_limit_retry_delays = []

[logging]
level = "error"
`, filepath.Join(base, "state"), filepath.Join(base, "logs"), testAPIKey, server.URL+"/api/v1")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{baseDir: base, configPath: configPath, upstream: upstream}
}

func loadTestConfig(t *testing.T, env *cliTestEnv) *config.Config {
	t.Helper()
	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
