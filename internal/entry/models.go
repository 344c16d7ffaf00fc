package entry

import (
	"fmt"
	"strings"
	"time"
)

// SubentryType distinguishes AI task subentries from conversation subentries.
type SubentryType string

const (
	TypeAITask       SubentryType = "ai_task_data"
	TypeConversation SubentryType = "conversation"
)

// ParseSubentryType accepts the stored names plus the short CLI aliases.
func ParseSubentryType(value string) (SubentryType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(TypeAITask), "ai_task", "task":
		return TypeAITask, nil
	case string(TypeConversation), "chat":
		return TypeConversation, nil
	default:
		return "", fmt.Errorf("unknown subentry type %q (want ai_task_data or conversation)", value)
	}
}

// Domain returns the entity domain a subentry type is exposed under.
func (t SubentryType) Domain() string {
	if t == TypeConversation {
		return "conversation"
	}
	return "ai_task"
}

// Entry is one OpenRouter account: an API key plus the subentries using it.
type Entry struct {
	ID         string
	Title      string
	APIKey     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Subentries []Subentry
}

// Subentry binds a model (and optional system prompt) to an entity.
type Subentry struct {
	ID        string
	EntryID   string
	Type      SubentryType
	Title     string
	Model     string
	Prompt    string
	CreatedAt time.Time
}
