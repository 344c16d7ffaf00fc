package entity

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"orbridge/internal/dispatch"
	"orbridge/internal/logging"
	"orbridge/internal/services"
	"orbridge/internal/services/openrouter"
)

// Input is one user utterance for a conversation entity.
type Input struct {
	Text           string
	ConversationID string
}

// Response is the assistant reply to an Input.
type Response struct {
	ConversationID string
	Text           string
	Model          string
}

// Conversation is a chat agent that keeps a bounded in-memory log per
// conversation id.
type Conversation struct {
	info       Info
	prompt     string
	dispatcher *dispatch.Dispatcher
	logs       *chatLogs
	logger     *slog.Logger
}

// Info describes the entity.
func (c *Conversation) Info() Info { return c.info }

// Process sends the utterance with the conversation's history and records the
// exchange once a reply arrives. Failed turns are not recorded.
func (c *Conversation) Process(ctx context.Context, in Input) (Response, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Response{}, services.Wrap(services.ErrValidation, "conversation", "process", "text is required", nil)
	}
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	ctx = services.WithEntityID(ctx, c.info.ID)
	ctx = services.WithConversationID(ctx, conversationID)

	release, err := c.logs.acquire(ctx, conversationID)
	if err != nil {
		return Response{}, err
	}
	defer release()

	history := c.logs.history(conversationID)
	result, err := c.dispatcher.Dispatch(ctx,
		dispatch.Target{Model: c.info.Model, User: conversationID},
		dispatch.Request{Instructions: text, System: c.prompt, History: history},
	)
	if err != nil {
		return Response{}, err
	}
	c.logs.record(conversationID,
		dispatch.Turn{Role: openrouter.RoleUser, Text: text},
		dispatch.Turn{Role: openrouter.RoleAssistant, Text: result.Text},
	)
	logging.WithContext(ctx, c.logger).Debug("conversation turn recorded", logging.Int("history_turns", len(history)+2))
	return Response{ConversationID: conversationID, Text: result.Text, Model: result.Model}, nil
}

// Forget drops the chat log for a conversation id.
func (c *Conversation) Forget(conversationID string) {
	c.logs.forget(conversationID)
}

type chatLog struct {
	turns    []dispatch.Turn
	lastUsed time.Time
}

// chatLogs holds per-conversation history. Each log keeps at most maxTurns
// exchanges and is dropped after idle time without use.
//
// Turns on one conversation id run one at a time so each exchange sees the
// previous one in its history.
type chatLogs struct {
	mu       sync.Mutex
	logs     map[string]*chatLog
	turns    map[string]*turnLock
	maxTurns int
	idle     time.Duration
	now      func() time.Time
}

type turnLock struct {
	sem  chan struct{}
	refs int
}

func newChatLogs(maxTurns int, idle time.Duration) *chatLogs {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &chatLogs{
		logs:     map[string]*chatLog{},
		turns:    map[string]*turnLock{},
		maxTurns: maxTurns,
		idle:     idle,
		now:      time.Now,
	}
}

// acquire waits until no other turn on id is in flight. The returned func
// releases the turn.
func (l *chatLogs) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.turns[id]
	if !ok {
		lock = &turnLock{sem: make(chan struct{}, 1)}
		l.turns[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
		return func() {
			<-lock.sem
			l.unref(id, lock)
		}, nil
	case <-ctx.Done():
		l.unref(id, lock)
		return nil, ctx.Err()
	}
}

func (l *chatLogs) unref(id string, lock *turnLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.turns, id)
	}
}

func (l *chatLogs) history(id string) []dispatch.Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked()
	log, ok := l.logs[id]
	if !ok {
		return nil
	}
	log.lastUsed = l.now()
	return append([]dispatch.Turn(nil), log.turns...)
}

func (l *chatLogs) record(id string, turns ...dispatch.Turn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	log, ok := l.logs[id]
	if !ok {
		log = &chatLog{}
		l.logs[id] = log
	}
	log.turns = append(log.turns, turns...)
	if limit := l.maxTurns * 2; len(log.turns) > limit {
		log.turns = append([]dispatch.Turn(nil), log.turns[len(log.turns)-limit:]...)
	}
	log.lastUsed = l.now()
}

func (l *chatLogs) forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.logs, id)
}

func (l *chatLogs) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.logs)
}

func (l *chatLogs) expireLocked() {
	if l.idle <= 0 {
		return
	}
	cutoff := l.now().Add(-l.idle)
	for id, log := range l.logs {
		if log.lastUsed.Before(cutoff) {
			delete(l.logs, id)
		}
	}
}
