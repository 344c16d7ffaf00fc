package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	StartedAt    string `json:"startedAt,omitempty"`
	DatabasePath string `json:"databasePath"`
	LockFilePath string `json:"lockFilePath"`
	Entries      int    `json:"entries"`
	Entities     int    `json:"entities"`
}

// Entity describes an AI task or conversation entity.
type Entity struct {
	EntityID   string `json:"entityId"`
	Domain     string `json:"domain"`
	Title      string `json:"title"`
	Model      string `json:"model"`
	EntryID    string `json:"entryId"`
	EntryTitle string `json:"entryTitle"`
}

// EntityListResponse wraps the loaded entities.
type EntityListResponse struct {
	Entities []Entity `json:"entities"`
}

// Attachment is an image reference in a generate-data request. Data is
// base64 or a data URI. Fields is probed the same way as host media objects.
type Attachment struct {
	Data     string         `json:"data,omitempty"`
	Path     string         `json:"path,omitempty"`
	MIMEType string         `json:"mimeType,omitempty"`
	Name     string         `json:"name,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// GenerateDataRequest is the body of POST /api/ai_task/{entity}/generate_data.
// Structure uses the field-map form {"field": {"type": ..., "required": ...}}.
type GenerateDataRequest struct {
	TaskName       string          `json:"taskName"`
	Instructions   string          `json:"instructions"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	Structure      json.RawMessage `json:"structure,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
}

// GenerateDataResponse carries the task result. Data is a string or a JSON value.
type GenerateDataResponse struct {
	ConversationID string `json:"conversationId"`
	Data           any    `json:"data"`
	Structured     bool   `json:"structured"`
	Model          string `json:"model,omitempty"`
	Attempts       int    `json:"attempts"`
	Refused        bool   `json:"refused,omitempty"`
}

// ProcessRequest is the body of POST /api/conversation/{entity}/process.
type ProcessRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ProcessResponse carries the assistant reply.
type ProcessResponse struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	Model          string `json:"model,omitempty"`
}

// ErrorResponse is returned for every non-2xx API response.
type ErrorResponse struct {
	Error             string `json:"error"`
	Kind              string `json:"kind,omitempty"`
	Provider          string `json:"provider,omitempty"`
	Code              string `json:"code,omitempty"`
	UpstreamStatus    int    `json:"upstreamStatus,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}
