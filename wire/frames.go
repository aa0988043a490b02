// ABOUTME: Wire-level frame types for the chat and pipeline streaming channels.
// ABOUTME: Defines the inbound tagged union, outbound client frames, and JSON encode/decode helpers.
package wire

import "encoding/json"

// Channel identifies a logical stream. Exactly one live connection exists
// per channel per session.
type Channel string

const (
	ChannelChat     Channel = "chat"
	ChannelPipeline Channel = "pipeline"
)

// Usage reports token consumption for a completed assistant turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolCallData is the tool-call shape carried by a terminal chat_end frame.
// The local tool-call tracking in the chat machine is richer; this is the
// server's summary view.
type ToolCallData struct {
	ID      string `json:"tool_id"`
	Name    string `json:"tool"`
	Status  string `json:"status,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Frame is a decoded inbound server frame. The union is discriminated by
// Type, falling back to Channel for pipeline broadcasts that use the older
// field name. Unused fields are zero; consumers switch on Discriminant.
type Frame struct {
	Type    string `json:"type,omitempty"`
	Channel string `json:"channel,omitempty"`

	// Chat stream fields.
	Text           string         `json:"text,omitempty"`
	Tool           string         `json:"tool,omitempty"`
	ToolID         string         `json:"tool_id,omitempty"`
	Display        string         `json:"display,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Usage          *Usage         `json:"usage,omitempty"`
	ToolCalls      []ToolCallData `json:"tool_calls,omitempty"`
	Message        string         `json:"message,omitempty"`

	// Pipeline progress fields.
	Phase   string          `json:"phase,omitempty"`
	Status  string          `json:"status,omitempty"`
	Detail  string          `json:"detail,omitempty"`
	Error   string          `json:"error,omitempty"`
	Current int             `json:"current,omitempty"`
	Total   int             `json:"total,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Discriminant returns the field that classifies this frame: Type when set,
// otherwise Channel.
func (f *Frame) Discriminant() string {
	if f.Type != "" {
		return f.Type
	}
	return f.Channel
}

// Parse decodes a raw inbound frame. Malformed frames return ok=false and
// are expected under network corruption; callers drop them silently.
func Parse(raw []byte) (Frame, bool) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, false
	}
	return f, true
}

// ChatMessage is the client frame that starts an assistant turn.
type ChatMessage struct {
	Type           string `json:"type"`
	Content        string `json:"content"`
	ConversationID string `json:"conversation_id,omitempty"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	OrgID          string `json:"org_id"`
}

// NewChatMessage builds a chat_message frame.
func NewChatMessage(content, conversationID, provider, model, orgID string) ChatMessage {
	return ChatMessage{
		Type:           "chat_message",
		Content:        content,
		ConversationID: conversationID,
		Provider:       provider,
		Model:          model,
		OrgID:          orgID,
	}
}

// Cancel is the client frame requesting cooperative cancellation of the
// in-flight assistant turn.
type Cancel struct {
	Type string `json:"type"`
}

// NewCancel builds a cancel frame.
func NewCancel() Cancel {
	return Cancel{Type: "cancel"}
}

// Ping is the client keep-alive frame. The server answers with pong.
type Ping struct {
	Type string `json:"type"`
}

// NewPing builds a keep-alive frame.
func NewPing() Ping {
	return Ping{Type: "ping"}
}

// Encode marshals an outbound frame to its wire form.
func Encode(frame any) ([]byte, error) {
	return json.Marshal(frame)
}
