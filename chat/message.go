// ABOUTME: Immutable chat message and tool-call types for the streaming chat machine.
// ABOUTME: Messages are materialized once (user on send, assistant on finalize) and never mutated.
package chat

import (
	"time"

	"github.com/2389-research/pulse/wire"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolStatus is the lifecycle state of a tool invocation. Transitions are
// monotone: preparing -> running -> done|error, never backward.
type ToolStatus string

const (
	ToolPreparing ToolStatus = "preparing"
	ToolRunning   ToolStatus = "running"
	ToolDone      ToolStatus = "done"
	ToolError     ToolStatus = "error"
)

// toolRank orders tool statuses so later events can never regress one.
func toolRank(s ToolStatus) int {
	switch s {
	case ToolPreparing:
		return 0
	case ToolRunning:
		return 1
	case ToolDone, ToolError:
		return 2
	default:
		return -1
	}
}

// ToolCall tracks one server-announced sub-operation within an assistant
// turn. Scoped to the in-flight turn and cleared when the turn finalizes.
type ToolCall struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Status  ToolStatus `json:"status"`
	Display string     `json:"display,omitempty"`
	Summary string     `json:"summary,omitempty"`
}

// Message is one finalized chat message. Immutable once created: assistant
// messages are built exactly once from the accumulated stream buffer.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Role           Role        `json:"role"`
	Content        string      `json:"content"`
	ToolCalls      []ToolCall  `json:"tool_calls,omitempty"`
	Usage          *wire.Usage `json:"usage,omitempty"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
