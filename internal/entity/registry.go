package entity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"orbridge/internal/attachment"
	"orbridge/internal/dispatch"
	"orbridge/internal/entry"
	"orbridge/internal/logging"
	"orbridge/internal/services"
)

// Domain names used in entity ids.
const (
	DomainAITask       = "ai_task"
	DomainConversation = "conversation"
)

// Info describes a loaded entity.
type Info struct {
	ID         string
	Domain     string
	Title      string
	Model      string
	EntryID    string
	EntryTitle string
	SubentryID string
}

// EntrySource lists stored config entries.
type EntrySource interface {
	ListEntries(ctx context.Context) ([]entry.Entry, error)
}

// ClientFactory builds the completion client for one config entry.
type ClientFactory func(apiKey string) dispatch.Completer

// Settings carries the shared knobs applied to every entity.
type Settings struct {
	NewClient          ClientFactory
	SchemaMode         dispatch.SchemaMode
	Policy             *dispatch.Policy
	MaxAttachmentBytes int64
	MaxTurns           int
	IdleTimeout        time.Duration
	Sleeper            func(time.Duration)
	Logger             *slog.Logger
}

// Registry holds the entities built from config entries.
type Registry struct {
	settings Settings
	logger   *slog.Logger

	mu            sync.RWMutex
	tasks         map[string]*AITask
	conversations map[string]*Conversation
}

// NewRegistry constructs an empty registry.
func NewRegistry(settings Settings) *Registry {
	logger := settings.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		settings:      settings,
		logger:        logging.NewComponentLogger(logger, "entity"),
		tasks:         map[string]*AITask{},
		conversations: map[string]*Conversation{},
	}
}

// Load replaces the registry contents with entities built from source.
// Conversation chat logs are discarded.
func (r *Registry) Load(ctx context.Context, source EntrySource) error {
	if r.settings.NewClient == nil {
		return services.Wrap(services.ErrConfiguration, "entity", "load", "client factory is not configured", nil)
	}
	entries, err := source.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	tasks := map[string]*AITask{}
	conversations := map[string]*Conversation{}
	used := map[string]bool{}
	for _, e := range entries {
		d := r.newDispatcher(e.APIKey)
		for _, sub := range e.Subentries {
			domain := sub.Type.Domain()
			info := Info{
				ID:         uniqueID(used, domain+"."+entry.Slug(sub.Title)),
				Domain:     domain,
				Title:      sub.Title,
				Model:      sub.Model,
				EntryID:    e.ID,
				EntryTitle: e.Title,
				SubentryID: sub.ID,
			}
			switch sub.Type {
			case entry.TypeAITask:
				tasks[info.ID] = &AITask{
					info:       info,
					prompt:     sub.Prompt,
					dispatcher: d,
					schemaMode: r.settings.SchemaMode,
					logger:     r.logger.With(logging.String(logging.FieldEntityID, info.ID)),
				}
			case entry.TypeConversation:
				conversations[info.ID] = &Conversation{
					info:       info,
					prompt:     sub.Prompt,
					dispatcher: d,
					logs:       newChatLogs(r.settings.MaxTurns, r.settings.IdleTimeout),
					logger:     r.logger.With(logging.String(logging.FieldEntityID, info.ID)),
				}
			default:
				logging.WarnWithContext(r.logger, "skipping subentry with unknown type", "subentry_skipped",
					logging.String("subentry_id", sub.ID),
					logging.String("subentry_type", string(sub.Type)),
					logging.String(logging.FieldErrorHint, "remove and re-add the subentry"),
					logging.String(logging.FieldImpact, "entity is not available"),
				)
			}
		}
	}

	r.mu.Lock()
	r.tasks = tasks
	r.conversations = conversations
	r.mu.Unlock()

	r.logger.Info("entities loaded",
		logging.Int("entries", len(entries)),
		logging.Int("ai_tasks", len(tasks)),
		logging.Int("conversations", len(conversations)),
	)
	return nil
}

func (r *Registry) newDispatcher(apiKey string) *dispatch.Dispatcher {
	opts := []dispatch.Option{dispatch.WithLogger(r.settings.Logger)}
	if r.settings.MaxAttachmentBytes > 0 {
		opts = append(opts, dispatch.WithResolver(attachment.NewResolver(attachment.WithMaxBytes(r.settings.MaxAttachmentBytes))))
	}
	if r.settings.Policy != nil {
		opts = append(opts, dispatch.WithPolicy(*r.settings.Policy))
	}
	if r.settings.Sleeper != nil {
		opts = append(opts, dispatch.WithSleeper(r.settings.Sleeper))
	}
	return dispatch.New(r.settings.NewClient(apiKey), opts...)
}

// AITask returns the AI task entity with the given id.
func (r *Registry) AITask(id string) (*AITask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[normalizeID(DomainAITask, id)]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "entity", "lookup", fmt.Sprintf("ai task %q not found", id), nil)
	}
	return task, nil
}

// Conversation returns the conversation entity with the given id.
func (r *Registry) Conversation(id string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.conversations[normalizeID(DomainConversation, id)]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "entity", "lookup", fmt.Sprintf("conversation %q not found", id), nil)
	}
	return conv, nil
}

// Entities lists every loaded entity sorted by id.
func (r *Registry) Entities() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.tasks)+len(r.conversations))
	for _, task := range r.tasks {
		infos = append(infos, task.info)
	}
	for _, conv := range r.conversations {
		infos = append(infos, conv.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// normalizeID accepts either the full entity id or the bare slug.
func normalizeID(domain, id string) string {
	prefix := domain + "."
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		return id
	}
	return prefix + id
}

func uniqueID(used map[string]bool, base string) string {
	id := base
	for n := 2; used[id]; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	used[id] = true
	return id
}
