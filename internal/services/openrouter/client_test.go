package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestChatCompletionSendsHeadersAndParts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "Home Assistant" {
			t.Fatalf("unexpected X-Title %q", got)
		}
		if got := r.Header.Get("HTTP-Referer"); got != "https://example.com" {
			t.Fatalf("unexpected HTTP-Referer %q", got)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "demo/vision" {
			t.Fatalf("unexpected model %q", req.Model)
		}
		parts := req.Messages[0].Content.Parts
		if len(parts) != 2 || parts[0].Type != PartText || parts[1].ImageURL == nil {
			t.Fatalf("unexpected parts %+v", parts)
		}
		if parts[1].ImageURL.Detail != DetailHigh {
			t.Fatalf("unexpected detail %q", parts[1].ImageURL.Detail)
		}
		payload := map[string]any{
			"id": "gen-1",
			"choices": []any{
				map[string]any{
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": "  a cat on the porch\n"},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Referer: "https://example.com", Title: "Home Assistant"})
	resp, err := client.ChatCompletion(context.Background(), ChatRequest{
		Model: "demo/vision",
		Messages: []Message{{
			Role:    RoleUser,
			Content: PartsContent(TextPart("describe"), ImagePart("data:image/jpeg;base64,AAAA", DetailHigh)),
		}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion returned error: %v", err)
	}
	text, finish := resp.Content()
	if text != "  a cat on the porch\n" {
		t.Fatalf("expected verbatim content, got %q", text)
	}
	if finish != "stop" {
		t.Fatalf("unexpected finish reason %q", finish)
	}
}

func TestChatCompletionStatusErrorParsesMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"Provider returned error","code":503,"metadata":{"provider_name":"Chutes","raw":"model overloaded"}}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
	_, err := client.ChatCompletion(context.Background(), ChatRequest{Model: "demo"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T %v", err, err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", statusErr.StatusCode)
	}
	if statusErr.ProviderName() != "Chutes" {
		t.Fatalf("unexpected provider %q", statusErr.ProviderName())
	}
	if statusErr.Code() != "503" {
		t.Fatalf("unexpected code %q", statusErr.Code())
	}
	if statusErr.Detail() != "Provider returned error (model overloaded)" {
		t.Fatalf("unexpected detail %q", statusErr.Detail())
	}
	if statusErr.RetryAfter != 7*time.Second {
		t.Fatalf("unexpected retry-after %s", statusErr.RetryAfter)
	}
}

func TestChatCompletionStatusErrorWithoutErrorObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream\n\nexploded"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
	_, err := client.ChatCompletion(context.Background(), ChatRequest{Model: "demo"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.ProviderName() != "" {
		t.Fatalf("expected no provider, got %q", statusErr.ProviderName())
	}
	if statusErr.Detail() != "upstream exploded" {
		t.Fatalf("unexpected detail %q", statusErr.Detail())
	}
}

func TestChatCompletionEmbeddedErrorUsesCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit exceeded","code":429}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
	_, err := client.ChatCompletion(context.Background(), ChatRequest{Model: "demo"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", statusErr.StatusCode)
	}
}

func TestChatCompletionTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: baseURL})
	_, err := client.ChatCompletion(context.Background(), ChatRequest{Model: "demo"})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T %v", err, err)
	}
}

func TestChatCompletionRequiresModel(t *testing.T) {
	client := NewClient(Config{APIKey: "test"})
	if _, err := client.ChatCompletion(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestResponseContentFallbacks(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"delta", `{"choices":[{"delta":{"content":"from delta"}}]}`, "from delta"},
		{"legacy text", `{"choices":[{"text":"legacy"}]}`, "legacy"},
		{"tool call", `{"choices":[{"finish_reason":"tool_calls","message":{"content":"","tool_calls":[{"type":"function","function":{"name":"f","arguments":"{\"a\":1}"}}]}}]}`, `{"a":1}`},
		{"whitespace kept", `{"choices":[{"message":{"content":"  \n"},"delta":{"content":"other"}}]}`, "  \n"},
		{"empty", `{"choices":[{"message":{"content":""}}]}`, ""},
	}
	for _, tc := range cases {
		var resp ChatResponse
		if err := json.Unmarshal([]byte(tc.body), &resp); err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		got, _ := resp.Content()
		if got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestListModelsSupportsImages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[
			{"id":"a/vision","name":"Vision","architecture":{"input_modalities":["text","image"]},"supported_parameters":["structured_outputs"]},
			{"id":"b/legacy","name":"Legacy","architecture":{"modality":"text+image->text"}},
			{"id":"c/text","name":"Text","architecture":{"modality":"text->text","input_modalities":["text"]}}
		]}`))
	}))
	defer server.Close()

	models, err := NewClient(Config{BaseURL: server.URL}).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels returned error: %v", err)
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %d", len(models))
	}
	want := []bool{true, true, false}
	for i, model := range models {
		if model.SupportsImages() != want[i] {
			t.Fatalf("%s: SupportsImages=%v", model.ID, model.SupportsImages())
		}
	}
	if !models[0].SupportsStructuredOutput() || models[2].SupportsStructuredOutput() {
		t.Fatal("unexpected structured output support flags")
	}
}

func TestCheckKeyUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"No auth credentials found","code":401}}`))
	}))
	defer server.Close()

	_, err := NewClient(Config{APIKey: "bad", BaseURL: server.URL}).CheckKey(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if !strings.Contains(err.Error(), "No auth credentials found") {
		t.Fatalf("expected upstream message in error, got %v", err)
	}
}

func TestContentMarshalsTextOrParts(t *testing.T) {
	text, err := json.Marshal(TextContent("hello"))
	if err != nil || string(text) != `"hello"` {
		t.Fatalf("unexpected text encoding %s (%v)", text, err)
	}
	parts, err := json.Marshal(PartsContent(TextPart("hi")))
	if err != nil || string(parts) != `[{"type":"text","text":"hi"}]` {
		t.Fatalf("unexpected parts encoding %s (%v)", parts, err)
	}
	var decoded Content
	if err := json.Unmarshal([]byte(`{"bad":true}`), &decoded); err == nil {
		t.Fatal("expected object content to be rejected")
	}
}

func TestRawStringHandlesObjects(t *testing.T) {
	apiErr := &APIError{Metadata: &ErrorMetadata{Raw: json.RawMessage(`{ "detail" : "busy" }`)}}
	if got := apiErr.RawString(); got != `{"detail":"busy"}` {
		t.Fatalf("unexpected raw string %q", got)
	}
}
