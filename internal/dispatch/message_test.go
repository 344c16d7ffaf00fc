package dispatch

import (
	"encoding/base64"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"orbridge/internal/attachment"
	"orbridge/internal/services/openrouter"
)

func TestBuildMessagesTextOnly(t *testing.T) {
	chat, err := BuildMessages(Target{Model: "m"}, Request{Instructions: "Summarize the day"}, nil)
	if err != nil {
		t.Fatalf("BuildMessages returned error: %v", err)
	}
	if len(chat.Messages) != 1 {
		t.Fatalf("expected one message, got %d", len(chat.Messages))
	}
	parts := chat.Messages[0].Content.Parts
	if len(parts) != 1 || parts[0].Type != openrouter.PartText || parts[0].Text != "Summarize the day" {
		t.Fatalf("unexpected parts: %#v", parts)
	}
	if chat.ResponseFormat != nil || chat.Provider != nil {
		t.Fatalf("expected no structured output settings")
	}
}

func TestBuildMessagesImagePartsInOrder(t *testing.T) {
	images := []attachment.Resolved{
		{Data: []byte("first"), MIMEType: "image/png"},
		{Data: []byte("second"), MIMEType: ""},
	}
	chat, err := BuildMessages(Target{Model: "m"}, Request{Instructions: "Compare"}, images)
	if err != nil {
		t.Fatalf("BuildMessages returned error: %v", err)
	}
	parts := chat.Messages[0].Content.Parts
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	want := []string{
		"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("first")),
		"data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("second")),
	}
	for i, part := range parts[1:] {
		if part.Type != openrouter.PartImageURL || part.ImageURL == nil {
			t.Fatalf("part %d is not an image: %#v", i, part)
		}
		if part.ImageURL.URL != want[i] || part.ImageURL.Detail != openrouter.DetailHigh {
			t.Fatalf("part %d = %#v", i, part.ImageURL)
		}
	}
}

func TestBuildMessagesIsDeterministic(t *testing.T) {
	req := Request{
		Instructions: "Report",
		System:       "You are terse.",
		History:      []Turn{{Role: "user", Text: "hi"}, {Role: "assistant", Text: "hello"}},
		Schema:       &Schema{Name: "report", Fields: []Field{{Name: "b", Type: TypeString}, {Name: "a", Type: TypeInteger, Required: true}}},
	}
	images := []attachment.Resolved{{Data: []byte{1, 2, 3}, MIMEType: "image/webp"}}
	first, err := BuildMessages(Target{Model: "m", User: "u"}, req, images)
	if err != nil {
		t.Fatalf("BuildMessages returned error: %v", err)
	}
	second, _ := BuildMessages(Target{Model: "m", User: "u"}, req, images)
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("BuildMessages is not deterministic:\n%s\n%s", a, b)
	}
	if len(first.Messages) != 4 || first.Messages[0].Role != openrouter.RoleSystem || first.Messages[2].Role != openrouter.RoleAssistant {
		t.Fatalf("unexpected message layout: %s", a)
	}
}

func TestBuildMessagesInstructionsMode(t *testing.T) {
	req := Request{
		Instructions: "Count the cars",
		Schema:       &Schema{Name: "cars", Fields: []Field{{Name: "count", Type: TypeInteger, Required: true}}},
	}
	chat, err := BuildMessages(Target{Model: "m", SchemaMode: SchemaInstructions}, req, nil)
	if err != nil {
		t.Fatalf("BuildMessages returned error: %v", err)
	}
	if chat.ResponseFormat != nil {
		t.Fatalf("instructions mode must not send response_format")
	}
	text := chat.Messages[0].Content.Parts[0].Text
	if !strings.HasPrefix(text, "Count the cars\n\n") || !strings.Contains(text, `"count":{"type":"integer"}`) {
		t.Fatalf("schema block missing from text: %q", text)
	}
}

func TestJSONSchemaMakesOptionalFieldsNullable(t *testing.T) {
	minimum := 0.0
	schema := Schema{Name: "s", Fields: []Field{
		{Name: "label", Type: TypeString, Required: true, Description: "What it is"},
		{Name: "mood", Type: TypeString, Enum: []string{"calm", "busy"}},
		{Name: "count", Type: TypeInteger, Minimum: &minimum},
		{Name: "detail", Type: TypeObject, Required: true, Fields: []Field{
			{Name: "color", Type: TypeString},
		}},
		{Name: "tags", Type: TypeArray, Required: true, Items: &Field{Type: TypeString}},
	}}
	got := schema.JSONSchema()
	if !reflect.DeepEqual(got["required"], []string{"label", "detail", "tags", "mood", "count"}) {
		t.Fatalf("required = %#v", got["required"])
	}
	if got["additionalProperties"] != false {
		t.Fatalf("expected additionalProperties=false")
	}
	props := got["properties"].(map[string]any)
	mood := props["mood"].(map[string]any)
	if !reflect.DeepEqual(mood["type"], []any{"string", "null"}) || !reflect.DeepEqual(mood["enum"], []any{"calm", "busy", nil}) {
		t.Fatalf("mood not nullable: %#v", mood)
	}
	count := props["count"].(map[string]any)
	if count["minimum"] != 0.0 {
		t.Fatalf("minimum lost: %#v", count)
	}
	label := props["label"].(map[string]any)
	if label["type"] != "string" || label["description"] != "What it is" {
		t.Fatalf("label changed: %#v", label)
	}
	detail := props["detail"].(map[string]any)
	color := detail["properties"].(map[string]any)["color"].(map[string]any)
	if !reflect.DeepEqual(color["type"], []any{"string", "null"}) {
		t.Fatalf("nested optional field not nullable: %#v", color)
	}
	tags := props["tags"].(map[string]any)
	if tags["type"] != "array" || tags["items"].(map[string]any)["type"] != "string" {
		t.Fatalf("unexpected array schema: %#v", tags)
	}
}

func TestParseSchema(t *testing.T) {
	raw := []byte(`{
		"plate": {"description": "License plate", "required": true},
		"speed": {"type": "number", "minimum": 0, "maximum": 300},
		"owner": {"type": "object", "properties": {"name": {"type": "string"}}},
		"colors": {"type": "array", "items": {"type": "string", "enum": ["red", "blue"]}}
	}`)
	schema, err := ParseSchema("car report", raw)
	if err != nil {
		t.Fatalf("ParseSchema returned error: %v", err)
	}
	names := make([]string, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		names = append(names, field.Name)
	}
	if !reflect.DeepEqual(names, []string{"colors", "owner", "plate", "speed"}) {
		t.Fatalf("fields = %v", names)
	}
	if schema.Fields[2].Type != TypeString || !schema.Fields[2].Required {
		t.Fatalf("plate = %#v", schema.Fields[2])
	}
	if schema.Fields[0].Items == nil || len(schema.Fields[0].Items.Enum) != 2 {
		t.Fatalf("colors items = %#v", schema.Fields[0].Items)
	}
	if len(schema.Fields[1].Fields) != 1 || schema.Fields[1].Fields[0].Name != "name" {
		t.Fatalf("owner fields = %#v", schema.Fields[1].Fields)
	}
}

func TestParseSchemaRejectsInvalid(t *testing.T) {
	for _, raw := range []string{`{}`, `[]`, `{"a": {"type": "date"}}`, `{"a": {"type": "number", "minimum": 5, "maximum": 1}}`} {
		if _, err := ParseSchema("x", []byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestSchemaName(t *testing.T) {
	tests := map[string]string{
		"":                "response",
		"camera summary":  "camera_summary",
		"ai_task.porch":   "ai_task_porch",
		"héllo/world":     "hlloworld",
		"!!!":             "response",
		"plain-name_2024": "plain-name_2024",
	}
	for in, want := range tests {
		if got := schemaName(in); got != want {
			t.Fatalf("schemaName(%q) = %q, want %q", in, got, want)
		}
	}
}
