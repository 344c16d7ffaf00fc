package entity

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"orbridge/internal/attachment"
	"orbridge/internal/dispatch"
	"orbridge/internal/logging"
	"orbridge/internal/services"
)

const defaultTaskName = "AI Task"

// Task is one generate-data request.
type Task struct {
	Name         string
	Instructions string
	Attachments  []attachment.Attachment
	// Structure, when set, asks for a JSON value matching the schema.
	Structure *dispatch.Schema
	// ConversationID is echoed back; a new one is generated when empty.
	ConversationID string
}

// GenDataResult is the outcome of a generate-data task. Data is a string for
// free text (including the raw-text fallback) or the decoded JSON value.
type GenDataResult struct {
	ConversationID string
	Data           any
	Structured     bool
	Model          string
	Attempts       int
	Refused        bool
}

// AITask generates text or structured data with one configured model.
type AITask struct {
	info       Info
	prompt     string
	dispatcher *dispatch.Dispatcher
	schemaMode dispatch.SchemaMode
	logger     *slog.Logger
}

// Info describes the entity.
func (t *AITask) Info() Info { return t.info }

// GenerateData dispatches the task and interprets the reply.
func (t *AITask) GenerateData(ctx context.Context, task Task) (GenDataResult, error) {
	instructions := strings.TrimSpace(task.Instructions)
	if instructions == "" {
		return GenDataResult{}, services.Wrap(services.ErrValidation, "ai_task", "generate data", "instructions are required", nil)
	}
	conversationID := strings.TrimSpace(task.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	ctx = services.WithEntityID(ctx, t.info.ID)
	ctx = services.WithConversationID(ctx, conversationID)

	var schema *dispatch.Schema
	if task.Structure != nil {
		copied := *task.Structure
		if strings.TrimSpace(copied.Name) == "" {
			copied.Name = firstNonEmpty(task.Name, defaultTaskName)
		}
		schema = &copied
	}

	result, err := t.dispatcher.Dispatch(ctx,
		dispatch.Target{Model: t.info.Model, User: conversationID, SchemaMode: t.schemaMode},
		dispatch.Request{
			Instructions: instructions,
			Attachments:  task.Attachments,
			Schema:       schema,
			System:       t.prompt,
		},
	)
	if err != nil {
		return GenDataResult{}, err
	}
	logging.WithContext(ctx, t.logger).Debug("generate data completed",
		logging.Bool("structured", result.Kind == dispatch.ResultStructured),
		logging.Int("attempts", result.Attempts),
	)
	return GenDataResult{
		ConversationID: conversationID,
		Data:           result.Data(),
		Structured:     result.Kind == dispatch.ResultStructured,
		Model:          result.Model,
		Attempts:       result.Attempts,
		Refused:        result.Refused,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
