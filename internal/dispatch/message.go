package dispatch

import (
	"encoding/base64"
	"strings"

	"orbridge/internal/attachment"
	"orbridge/internal/services/openrouter"
)

// DataURI encodes a resolved attachment as an inline data URI.
func DataURI(image attachment.Resolved) string {
	mimeType := strings.TrimSpace(image.MIMEType)
	if mimeType == "" {
		mimeType = attachment.DefaultMIMEType
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
}

// BuildMessages assembles the chat request for one dispatch. The same inputs
// always produce the same request. The new user message carries one text part
// followed by one image part per resolved attachment, in order.
func BuildMessages(target Target, req Request, images []attachment.Resolved) (openrouter.ChatRequest, error) {
	text := req.Instructions
	chat := openrouter.ChatRequest{
		Model: target.Model,
		User:  target.User,
	}

	if req.Schema != nil {
		mode, _ := ParseSchemaMode(string(target.SchemaMode))
		switch mode {
		case SchemaInstructions:
			suffix, err := req.Schema.instructionSuffix()
			if err != nil {
				return openrouter.ChatRequest{}, err
			}
			text += suffix
		default:
			chat.ResponseFormat = &openrouter.ResponseFormat{
				Type: openrouter.ResponseFormatJSONSchema,
				JSONSchema: &openrouter.JSONSchema{
					Name:   schemaName(req.Schema.Name),
					Strict: true,
					Schema: req.Schema.JSONSchema(),
				},
			}
			chat.Provider = &openrouter.ProviderPreferences{RequireParameters: true}
		}
	}

	messages := make([]openrouter.Message, 0, len(req.History)+2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openrouter.Message{Role: openrouter.RoleSystem, Content: openrouter.TextContent(system)})
	}
	for _, turn := range req.History {
		messages = append(messages, turn.message())
	}

	parts := make([]openrouter.ContentPart, 0, len(images)+1)
	parts = append(parts, openrouter.TextPart(text))
	for _, image := range images {
		parts = append(parts, openrouter.ImagePart(DataURI(image), openrouter.DetailHigh))
	}
	messages = append(messages, openrouter.Message{Role: openrouter.RoleUser, Content: openrouter.PartsContent(parts...)})
	chat.Messages = messages
	return chat, nil
}

// schemaName coerces a task name into the [a-zA-Z0-9_-] alphabet the
// json_schema name accepts.
func schemaName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "response"
	}
	out := b.String()
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}
