package openrouter

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"strings"
)

// Content part types and the image detail hint used for vision requests.
const (
	PartText      = "text"
	PartImageURL  = "image_url"
	DetailHigh    = "high"
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	ResponseFormatJSONSchema = "json_schema"
)

// ChatRequest is the chat completion request body.
type ChatRequest struct {
	Model          string               `json:"model"`
	Messages       []Message            `json:"messages"`
	ResponseFormat *ResponseFormat      `json:"response_format,omitempty"`
	Provider       *ProviderPreferences `json:"provider,omitempty"`
	User           string               `json:"user,omitempty"`
}

// Message is a single chat message. Content is either plain text or a list of parts.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content holds either a text string or multimodal parts. Parts take precedence
// when non-nil.
type Content struct {
	Text  string
	Parts []ContentPart
}

// TextContent builds string content.
func TextContent(text string) Content {
	return Content{Text: text}
}

// PartsContent builds multimodal content.
func PartsContent(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{Parts: parts}
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*c = Content{}
		return nil
	case trimmed[0] == '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*c = Content{Text: text}
		return nil
	case trimmed[0] == '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		*c = Content{Parts: parts}
		return nil
	default:
		return errors.New("content must be a string or an array of parts")
	}
}

// ContentPart is a text or image_url content part.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart builds an image content part with the given URL and detail hint.
func ImagePart(url, detail string) ContentPart {
	return ContentPart{Type: PartImageURL, ImageURL: &ImageURL{URL: url, Detail: detail}}
}

// ResponseFormat requests structured output.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema names a strict output schema.
type JSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// ProviderPreferences steers OpenRouter's provider routing.
type ProviderPreferences struct {
	RequireParameters bool `json:"require_parameters,omitempty"`
}

// ChatResponse is the chat completion response body.
type ChatResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   *Usage    `json:"usage,omitempty"`
	Error   *APIError `json:"error,omitempty"`

	Raw []byte `json:"-"`
}

// Choice is one completion choice.
type Choice struct {
	Message ResponseMessage `json:"message"`
	// Some providers mistakenly return the streaming schema (delta) even when
	// stream=false, so tolerate it as a fallback.
	Delta ResponseMessage `json:"delta"`
	// Legacy "text" field (completion-style responses).
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// ResponseMessage is the assistant message inside a choice.
type ResponseMessage struct {
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	ToolCalls    []ToolCall    `json:"tool_calls"`
	FunctionCall *FunctionCall `json:"function_call"`
	Refusal      string        `json:"refusal"`
}

// ToolCall is a function tool call emitted by the model.
type ToolCall struct {
	Type     string       `json:"type"`
	ID       string       `json:"id"`
	Index    int          `json:"index"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries a function name and its JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage reports token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Content returns the reply text and the first finish reason. Message content
// is preferred, then delta content, the legacy text field, and finally function
// or tool-call arguments. The text is returned verbatim.
func (r *ChatResponse) Content() (string, string) {
	if r == nil {
		return "", ""
	}
	var finishReason string
	for _, choice := range r.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if content := firstSet(
			choice.Message.Content,
			choice.Delta.Content,
			choice.Text,
		); content != "" {
			return content, finishReason
		}
		if args := firstNonEmpty(
			functionCallArguments(choice.Message.FunctionCall),
			functionCallArguments(choice.Delta.FunctionCall),
		); args != "" {
			return args, finishReason
		}
		if args := firstNonEmpty(
			toolCallArguments(choice.Message.ToolCalls),
			toolCallArguments(choice.Delta.ToolCalls),
		); args != "" {
			return args, finishReason
		}
	}
	return "", finishReason
}

// Refusal returns the first refusal message, if any.
func (r *ChatResponse) Refusal() string {
	if r == nil {
		return ""
	}
	for _, choice := range r.Choices {
		if refusal := firstSet(choice.Message.Refusal, choice.Delta.Refusal); refusal != "" {
			return refusal
		}
	}
	return ""
}

func functionCallArguments(fc *FunctionCall) string {
	if fc == nil {
		return ""
	}
	return fc.Arguments
}

func toolCallArguments(calls []ToolCall) string {
	for _, call := range calls {
		if strings.TrimSpace(call.Function.Arguments) != "" {
			return call.Function.Arguments
		}
	}
	return ""
}

// firstSet returns the first non-empty value unchanged; whitespace counts.
func firstSet(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// Model describes a catalog entry returned by the models endpoint.
type Model struct {
	ID                  string       `json:"id"`
	Name                string       `json:"name"`
	Description         string       `json:"description"`
	ContextLength       int          `json:"context_length"`
	Architecture        Architecture `json:"architecture"`
	Pricing             Pricing      `json:"pricing"`
	SupportedParameters []string     `json:"supported_parameters"`
}

// Architecture lists a model's modalities.
type Architecture struct {
	Modality         string   `json:"modality"`
	InputModalities  []string `json:"input_modalities"`
	OutputModalities []string `json:"output_modalities"`
}

// Pricing lists per-token prices as decimal strings.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
	Image      string `json:"image"`
}

// SupportsImages reports whether the model accepts image input.
func (m Model) SupportsImages() bool {
	if slices.Contains(m.Architecture.InputModalities, "image") {
		return true
	}
	inputs, _, _ := strings.Cut(m.Architecture.Modality, "->")
	return strings.Contains(inputs, "image")
}

// SupportsStructuredOutput reports whether the model honours json_schema response formats.
func (m Model) SupportsStructuredOutput() bool {
	return slices.Contains(m.SupportedParameters, "structured_outputs") ||
		slices.Contains(m.SupportedParameters, "response_format")
}

// KeyInfo describes the API key returned by the key endpoint.
type KeyInfo struct {
	Label      string   `json:"label"`
	Usage      float64  `json:"usage"`
	Limit      *float64 `json:"limit"`
	IsFreeTier bool     `json:"is_free_tier"`
}
