// ABOUTME: Tests for the history store: message round-trips, duplicate-id
// ABOUTME: insertion safety, and run lifecycle records.
package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/2389-research/pulse/chat"
	"github.com/2389-research/pulse/wire"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndListMessages(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	user := chat.Message{
		ID: "m1", ConversationID: "c1", Role: chat.RoleUser,
		Content: "List my contexts", CreatedAt: base,
	}
	assistant := chat.Message{
		ID: "m2", ConversationID: "c1", Role: chat.RoleAssistant,
		Content: "Here are your contexts",
		ToolCalls: []chat.ToolCall{
			{ID: "t1", Name: "sql_query", Status: chat.ToolDone, Summary: "3 rows"},
		},
		Usage:     &wire.Usage{InputTokens: 5, OutputTokens: 9},
		CreatedAt: base.Add(2 * time.Second),
	}

	for _, msg := range []chat.Message{user, assistant} {
		if err := s.SaveMessage(msg); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.ListMessages("c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Content != "List my contexts" || got[1].Content != "Here are your contexts" {
		t.Errorf("order or content wrong: %+v", got)
	}
	if len(got[1].ToolCalls) != 1 || got[1].ToolCalls[0].Summary != "3 rows" {
		t.Errorf("tool calls lost: %+v", got[1].ToolCalls)
	}
	if got[1].Usage == nil || got[1].Usage.OutputTokens != 9 {
		t.Errorf("usage lost: %+v", got[1].Usage)
	}
}

func TestDuplicateMessageIDIgnored(t *testing.T) {
	s := openTestStore(t)
	msg := chat.Message{ID: "m1", ConversationID: "c1", Role: chat.RoleUser, Content: "one", CreatedAt: time.Now()}

	if err := s.SaveMessage(msg); err != nil {
		t.Fatal(err)
	}
	msg.Content = "replayed"
	if err := s.SaveMessage(msg); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListMessages("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "one" {
		t.Errorf("replay overwrote the original: %+v", got)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	if err := s.RecordRunStart("run-1", "extraction", start); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordRunStart("an-1", "analysis", start.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishRun("run-1", "done", "", start.Add(30*time.Second)); err != nil {
		t.Fatal(err)
	}

	runs, err := s.ListRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	// Most recent first.
	if runs[0].ID != "an-1" || runs[0].Status != "running" {
		t.Errorf("runs[0] = %+v", runs[0])
	}
	if runs[1].ID != "run-1" || runs[1].Status != "done" || runs[1].FinishedAt == nil {
		t.Errorf("runs[1] = %+v", runs[1])
	}
}
