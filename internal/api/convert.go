package api

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"orbridge/internal/attachment"
	"orbridge/internal/dispatch"
	"orbridge/internal/entity"
	"orbridge/internal/services"
)

// FromEntityInfo converts a registry entry to its API representation.
func FromEntityInfo(info entity.Info) Entity {
	return Entity{
		EntityID:   info.ID,
		Domain:     info.Domain,
		Title:      info.Title,
		Model:      info.Model,
		EntryID:    info.EntryID,
		EntryTitle: info.EntryTitle,
	}
}

// FromEntityInfos converts a slice, preserving order.
func FromEntityInfos(infos []entity.Info) []Entity {
	out := make([]Entity, 0, len(infos))
	for _, info := range infos {
		out = append(out, FromEntityInfo(info))
	}
	return out
}

// FormatTime renders a timestamp for API payloads; zero times render empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ConvertOptions controls request conversion.
type ConvertOptions struct {
	// AllowPaths permits attachments that reference local files.
	AllowPaths bool
}

// ToTask converts a generate-data request into an entity task.
func ToTask(req GenerateDataRequest, opts ConvertOptions) (entity.Task, error) {
	task := entity.Task{
		Name:           strings.TrimSpace(req.TaskName),
		Instructions:   req.Instructions,
		ConversationID: strings.TrimSpace(req.ConversationID),
	}
	for i, att := range req.Attachments {
		converted, err := toAttachment(att, opts)
		if err != nil {
			return entity.Task{}, services.Wrap(services.ErrValidation, "api", "convert request",
				fmt.Sprintf("attachment %d: %v", i, err), nil)
		}
		task.Attachments = append(task.Attachments, converted)
	}
	if raw := bytes.TrimSpace(req.Structure); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		schema, err := dispatch.ParseSchema(task.Name, raw)
		if err != nil {
			return entity.Task{}, services.Wrap(services.ErrValidation, "api", "convert request", "invalid structure", err)
		}
		task.Structure = schema
	}
	return task, nil
}

func toAttachment(att Attachment, opts ConvertOptions) (attachment.Attachment, error) {
	fields := attachment.Map{}
	maps.Copy(fields, att.Fields)
	if data := strings.TrimSpace(att.Data); data != "" {
		fields["content"] = data
	}
	path := strings.TrimSpace(att.Path)
	if !opts.AllowPaths && (path != "" || hasPathField(fields)) {
		return attachment.Attachment{}, errors.New("file paths are not accepted")
	}
	out := attachment.Attachment{
		Path:     path,
		MIMEType: strings.TrimSpace(att.MIMEType),
		Name:     strings.TrimSpace(att.Name),
	}
	if len(fields) > 0 {
		out.Fields = fields
	}
	return out, nil
}

func hasPathField(fields attachment.Map) bool {
	for _, name := range []string{"file_path", "path"} {
		if value, ok := fields[name].(string); ok && strings.TrimSpace(value) != "" {
			return true
		}
	}
	return false
}

// FromGenData converts an AI task result.
func FromGenData(result entity.GenDataResult) GenerateDataResponse {
	return GenerateDataResponse{
		ConversationID: result.ConversationID,
		Data:           result.Data,
		Structured:     result.Structured,
		Model:          result.Model,
		Attempts:       result.Attempts,
		Refused:        result.Refused,
	}
}

// FromConversation converts a conversation reply.
func FromConversation(resp entity.Response) ProcessResponse {
	return ProcessResponse{ConversationID: resp.ConversationID, Text: resp.Text, Model: resp.Model}
}

// ErrorFrom maps an error to the HTTP status and payload the API answers with.
func ErrorFrom(err error) (int, ErrorResponse) {
	status := dispatch.HTTPStatus(err)
	payload := ErrorResponse{Error: err.Error()}
	var dispatchErr *dispatch.Error
	if errors.As(err, &dispatchErr) {
		payload.Error = dispatchErr.Message
		payload.Kind = string(dispatchErr.Kind)
		payload.Provider = dispatchErr.Provider
		payload.Code = dispatchErr.Code
		payload.UpstreamStatus = dispatchErr.Status
		if dispatchErr.RetryAfter > 0 {
			payload.RetryAfterSeconds = int((dispatchErr.RetryAfter + time.Second - 1) / time.Second)
		}
	}
	return status, payload
}
