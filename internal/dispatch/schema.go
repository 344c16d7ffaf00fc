package dispatch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FieldType is a JSON schema primitive type.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// Schema describes the structured output a caller expects.
type Schema struct {
	Name   string
	Fields []Field
}

// Field describes one output field. Items applies to arrays and Fields to objects.
type Field struct {
	Name        string
	Description string
	Type        FieldType
	Required    bool
	Enum        []string
	Minimum     *float64
	Maximum     *float64
	Items       *Field
	Fields      []Field
}

type fieldDef struct {
	Description string              `json:"description"`
	Type        string              `json:"type"`
	Required    bool                `json:"required"`
	Enum        []string            `json:"enum"`
	Minimum     *float64            `json:"minimum"`
	Maximum     *float64            `json:"maximum"`
	Items       *fieldDef           `json:"items"`
	Properties  map[string]fieldDef `json:"properties"`
}

// ParseSchema decodes the field-name keyed description
// {"field": {"description", "type", "required", "enum", "minimum", "maximum",
// "items", "properties"}} into a Schema. Fields are ordered by name.
func ParseSchema(name string, data []byte) (*Schema, error) {
	var defs map[string]fieldDef
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("parse schema: no fields defined")
	}
	fields, err := fieldsFromDefs(defs, "")
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "response"
	}
	return &Schema{Name: name, Fields: fields}, nil
}

func fieldsFromDefs(defs map[string]fieldDef, prefix string) ([]Field, error) {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		field, err := fieldFromDef(name, defs[name], prefix+name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func fieldFromDef(name string, def fieldDef, path string) (Field, error) {
	field := Field{
		Name:        name,
		Description: strings.TrimSpace(def.Description),
		Type:        FieldType(strings.ToLower(strings.TrimSpace(def.Type))),
		Required:    def.Required,
		Enum:        def.Enum,
		Minimum:     def.Minimum,
		Maximum:     def.Maximum,
	}
	if field.Type == "" {
		field.Type = TypeString
	}
	switch field.Type {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean:
	case TypeArray:
		items := fieldDef{Type: string(TypeString)}
		if def.Items != nil {
			items = *def.Items
		}
		item, err := fieldFromDef("", items, path+"[]")
		if err != nil {
			return Field{}, err
		}
		field.Items = &item
	case TypeObject:
		nested, err := fieldsFromDefs(def.Properties, path+".")
		if err != nil {
			return Field{}, err
		}
		field.Fields = nested
	default:
		return Field{}, fmt.Errorf("parse schema: field %s: unsupported type %q", path, def.Type)
	}
	if field.Minimum != nil && field.Maximum != nil && *field.Minimum > *field.Maximum {
		return Field{}, fmt.Errorf("parse schema: field %s: minimum exceeds maximum", path)
	}
	return field, nil
}

// JSONSchema renders the schema as a strict JSON schema object. Optional fields
// become nullable and are listed as required, since strict mode demands every
// property be required.
func (s Schema) JSONSchema() map[string]any {
	return objectSchema(s.Fields)
}

func objectSchema(fields []Field) map[string]any {
	properties := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, field := range fields {
		if field.Required {
			required = append(required, field.Name)
		}
	}
	for _, field := range fields {
		prop := fieldSchema(field)
		if !field.Required {
			makeNullable(prop)
			required = append(required, field.Name)
		}
		properties[field.Name] = prop
	}
	return map[string]any{
		"type":                 string(TypeObject),
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func fieldSchema(field Field) map[string]any {
	var prop map[string]any
	switch field.Type {
	case TypeObject:
		prop = objectSchema(field.Fields)
	case TypeArray:
		items := map[string]any{"type": string(TypeString)}
		if field.Items != nil {
			items = fieldSchema(*field.Items)
		}
		prop = map[string]any{"type": string(TypeArray), "items": items}
	default:
		prop = map[string]any{"type": string(field.Type)}
	}
	if field.Description != "" {
		prop["description"] = field.Description
	}
	if len(field.Enum) > 0 {
		enum := make([]any, 0, len(field.Enum))
		for _, value := range field.Enum {
			enum = append(enum, value)
		}
		prop["enum"] = enum
	}
	if field.Minimum != nil {
		prop["minimum"] = *field.Minimum
	}
	if field.Maximum != nil {
		prop["maximum"] = *field.Maximum
	}
	return prop
}

func makeNullable(prop map[string]any) {
	prop["type"] = []any{prop["type"], "null"}
	if enum, ok := prop["enum"].([]any); ok {
		prop["enum"] = append(enum, nil)
	}
}

// instructionSuffix renders the schema as a prompt addendum for SchemaInstructions mode.
func (s Schema) instructionSuffix() (string, error) {
	encoded, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	return "\n\nRespond only with a JSON object that conforms to this JSON schema. " +
		"Do not wrap it in code fences or add commentary.\n" + string(encoded), nil
}
