package entity

import (
	"context"
	"errors"
	"testing"
	"time"

	"orbridge/internal/dispatch"
)

func TestChatLogsKeepLatestExchanges(t *testing.T) {
	logs := newChatLogs(2, 0)
	for _, text := range []string{"a", "b", "c"} {
		logs.record("c1",
			dispatch.Turn{Role: "user", Text: text},
			dispatch.Turn{Role: "assistant", Text: text + "!"},
		)
	}
	history := logs.history("c1")
	if len(history) != 4 || history[0].Text != "b" || history[3].Text != "c!" {
		t.Fatalf("unexpected history: %#v", history)
	}

	history[0].Text = "changed"
	if logs.history("c1")[0].Text != "b" {
		t.Fatalf("history must be a copy")
	}
}

func TestChatLogsExpireIdleConversations(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	logs := newChatLogs(5, 30*time.Minute)
	logs.now = func() time.Time { return now }

	logs.record("old", dispatch.Turn{Role: "user", Text: "hi"})
	now = now.Add(20 * time.Minute)
	logs.record("fresh", dispatch.Turn{Role: "user", Text: "hi"})
	now = now.Add(15 * time.Minute)

	if got := logs.history("old"); got != nil {
		t.Fatalf("expected idle conversation to expire, got %#v", got)
	}
	if got := logs.history("fresh"); len(got) != 1 {
		t.Fatalf("expected fresh conversation to survive, got %#v", got)
	}
	if logs.size() != 1 {
		t.Fatalf("expected one log, got %d", logs.size())
	}

	logs.forget("fresh")
	if logs.size() != 0 {
		t.Fatalf("forget did not drop the log")
	}
}

func TestChatLogsAcquireSerializesOneConversation(t *testing.T) {
	logs := newChatLogs(2, 0)
	release, err := logs.acquire(context.Background(), "c1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	other, err := logs.acquire(context.Background(), "c2")
	if err != nil {
		t.Fatalf("other conversations must not wait: %v", err)
	}
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := logs.acquire(ctx, "c1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second turn to wait until its context expired, got %v", err)
	}

	release()
	again, err := logs.acquire(context.Background(), "c1")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()

	logs.mu.Lock()
	defer logs.mu.Unlock()
	if len(logs.turns) != 0 {
		t.Fatalf("expected turn locks to be dropped, got %d", len(logs.turns))
	}
}
