// ABOUTME: SQLite-backed store for finalized chat messages and pipeline run records.
// ABOUTME: The dashboard reloads conversation history from here; live streams never touch it.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/2389-research/pulse/chat"
	"github.com/2389-research/pulse/wire"
)

// RunRecord is one persisted pipeline run.
type RunRecord struct {
	ID         string
	Kind       string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Store persists finalized messages and run outcomes. Messages are immutable
// rows: they are inserted once at finalization and never updated.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at the given path and ensures
// the schema is current.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			usage_input INTEGER,
			usage_output INTEGER,
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveMessage inserts a finalized message. Duplicate ids are ignored, which
// keeps replayed finalizations harmless.
func (s *Store) SaveMessage(msg chat.Message) error {
	var toolCalls any
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = string(data)
	}

	var usageIn, usageOut any
	if msg.Usage != nil {
		usageIn = msg.Usage.InputTokens
		usageOut = msg.Usage.OutputTokens
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO messages
			(id, conversation_id, role, content, tool_calls, usage_input, usage_output, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content,
		toolCalls, usageIn, usageOut, msg.Error, msg.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns a conversation's messages in creation order.
func (s *Store) ListMessages(conversationID string) ([]chat.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, role, content, tool_calls, usage_input, usage_output, error, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var (
			msg       chat.Message
			role      string
			toolCalls sql.NullString
			usageIn   sql.NullInt64
			usageOut  sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content,
			&toolCalls, &usageIn, &usageOut, &msg.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = chat.Role(role)
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		if usageIn.Valid || usageOut.Valid {
			msg.Usage = &wire.Usage{
				InputTokens:  int(usageIn.Int64),
				OutputTokens: int(usageOut.Int64),
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			msg.CreatedAt = t
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// RecordRunStart inserts a new run in the running state.
func (s *Store) RecordRunStart(id, kind string, startedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO runs (id, kind, status, error, started_at, finished_at)
		VALUES (?, ?, 'running', '', ?, NULL)`,
		id, kind, startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal status.
func (s *Store) FinishRun(id, status, errText string, finishedAt time.Time) error {
	_, err := s.db.Exec(`
		UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errText, finishedAt.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// ListRuns returns all runs, most recent first.
func (s *Store) ListRuns() ([]RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, status, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec        RunRecord
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Status, &rec.Error, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			rec.StartedAt = t
		}
		if finishedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
				rec.FinishedAt = &t
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
