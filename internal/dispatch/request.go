package dispatch

import (
	"orbridge/internal/attachment"
	"orbridge/internal/services/openrouter"
)

// SchemaMode selects how structured output is requested from the provider.
type SchemaMode string

const (
	// SchemaResponseFormat attaches a strict json_schema response format.
	SchemaResponseFormat SchemaMode = "response_format"
	// SchemaInstructions appends the schema to the prompt text instead, for
	// models without structured output support.
	SchemaInstructions SchemaMode = "instructions"
)

// ParseSchemaMode normalizes a configured mode, defaulting to SchemaResponseFormat.
func ParseSchemaMode(value string) (SchemaMode, bool) {
	switch SchemaMode(value) {
	case "", SchemaResponseFormat:
		return SchemaResponseFormat, true
	case SchemaInstructions:
		return SchemaInstructions, true
	default:
		return SchemaResponseFormat, false
	}
}

// Target carries the externally owned settings for one dispatch: the model to
// call, the end-user identifier forwarded upstream, and the schema mode.
type Target struct {
	Model      string
	User       string
	SchemaMode SchemaMode
}

// Turn is a prior exchange replayed ahead of the new instructions.
type Turn struct {
	Role string
	Text string
}

// Request is one dispatch input. It is not modified by the dispatcher.
type Request struct {
	Instructions string
	Attachments  []attachment.Attachment
	Schema       *Schema
	// System is an optional system prompt.
	System string
	// History holds prior turns (conversation entities only).
	History []Turn
}

func (t Turn) message() openrouter.Message {
	role := t.Role
	if role != openrouter.RoleAssistant && role != openrouter.RoleSystem {
		role = openrouter.RoleUser
	}
	return openrouter.Message{Role: role, Content: openrouter.TextContent(t.Text)}
}
