// ABOUTME: Event router parsing inbound frames, classifying them by discriminant,
// ABOUTME: and dispatching each to exactly one reducer with terminal-event normalization.
package route

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/2389-research/pulse/chat"
	"github.com/2389-research/pulse/progress"
	"github.com/2389-research/pulse/wire"
)

// TerminalHook observes normalized terminal pipeline events, e.g. to persist
// run outcomes. Called after the entry is appended.
type TerminalHook func(pipeline string, entry progress.Entry)

// Router classifies inbound frames and forwards each to the chat machine or
// the matching pipeline's progress log. Malformed and unknown frames are
// dropped silently; corruption is expected and must not break the stream.
type Router struct {
	machine    *chat.Machine
	logs       map[string]*progress.Log
	onTerminal TerminalHook
	verbose    atomic.Bool
}

// New creates a Router dispatching to the given chat machine and per-pipeline
// progress logs.
func New(machine *chat.Machine, logs map[string]*progress.Log) *Router {
	return &Router{machine: machine, logs: logs}
}

// SetTerminalHook registers an observer for terminal pipeline events.
func (r *Router) SetTerminalHook(hook TerminalHook) {
	r.onTerminal = hook
}

// SetVerbose enables drop logging for diagnostics. Safe to toggle while the
// read pumps are routing frames.
func (r *Router) SetVerbose(v bool) {
	r.verbose.Store(v)
}

// Route parses and dispatches one raw frame from the given channel. It never
// returns an error: failures surface as state, not as exceptions into the
// transport layer.
func (r *Router) Route(channel wire.Channel, raw []byte) {
	frame, ok := wire.Parse(raw)
	if !ok {
		if r.verbose.Load() {
			log.Printf("route: dropping malformed frame on %s", channel)
		}
		return
	}

	kind, pipeline := wire.Classify(&frame)
	switch kind {
	case wire.KindPong:
		// Keep-alive, ignore.

	case wire.KindChat:
		r.routeChat(&frame)

	case wire.KindPipelineProgress:
		r.appendProgress(pipeline, progress.Entry{
			Phase:   frame.Phase,
			Status:  progress.Status(frame.Status),
			Detail:  frame.Detail,
			Error:   frame.Error,
			Current: frame.Current,
			Total:   frame.Total,
		}, false)

	case wire.KindPipelineComplete:
		// Terminal meta-events are normalized into synthetic entries so the
		// reducer only ever sees one event shape.
		r.appendProgress(pipeline, progress.Entry{
			Phase:  progress.PhaseComplete,
			Status: progress.StatusDone,
			Detail: frame.Detail,
		}, true)

	case wire.KindPipelineFailed:
		r.appendProgress(pipeline, progress.Entry{
			Phase:  progress.PhaseError,
			Status: progress.StatusFailed,
			Detail: frame.Detail,
			Error:  frame.Error,
		}, true)

	case wire.KindPipelineCancelled:
		r.appendProgress(pipeline, progress.Entry{
			Phase:  progress.PhaseCancelled,
			Status: progress.StatusCancelled,
			Detail: frame.Detail,
		}, true)

	default:
		if r.verbose.Load() {
			log.Printf("route: dropping unknown frame %q on %s", frame.Discriminant(), channel)
		}
	}
}

// routeChat forwards a chat-stream frame to the state machine.
func (r *Router) routeChat(frame *wire.Frame) {
	switch frame.Type {
	case "chat_chunk":
		r.machine.AppendChunk(frame.Text)
	case "tool_preparing":
		r.machine.ToolPreparingEvent(frame.ToolID, frame.Tool, frame.Display)
	case "tool_start":
		r.machine.ToolStartEvent(frame.ToolID, frame.Tool, frame.Display)
	case "tool_end":
		r.machine.ToolEndEvent(frame.ToolID, frame.Summary)
	case "chat_end":
		r.machine.Finish(frame.ConversationID, frame.Usage, frame.ToolCalls, "")
	case "error":
		// Server-reported errors take the same terminal path as a normal
		// completion so the turn always reaches a stable state.
		r.machine.Finish(frame.ConversationID, frame.Usage, frame.ToolCalls, frame.Message)
	}
}

// appendProgress appends to the pipeline's log when one is registered.
func (r *Router) appendProgress(pipeline string, entry progress.Entry, terminal bool) {
	l, ok := r.logs[pipeline]
	if !ok {
		if r.verbose.Load() {
			log.Printf("route: no progress log for pipeline %q", pipeline)
		}
		return
	}
	entry.At = time.Now()
	l.Append(entry)
	if terminal && r.onTerminal != nil {
		r.onTerminal(pipeline, entry)
	}
}
