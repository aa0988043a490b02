// ABOUTME: Frame classification for the event router, splitting the discriminant
// ABOUTME: into chat events, per-kind pipeline events, keep-alives, and unknowns.
package wire

import "strings"

// Kind is the coarse classification of an inbound frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindPong
	KindChat
	KindPipelineProgress
	KindPipelineComplete
	KindPipelineFailed
	KindPipelineCancelled
)

// Pipeline kinds recognized in frame discriminants, e.g. "extraction_progress"
// or "analysis_complete".
const (
	PipelineExtraction    = "extraction"
	PipelineAnalysis      = "analysis"
	PipelineGeneration    = "generation"
	PipelineContextEngine = "context_engine"
)

// pipelineKinds enumerates the recognized pipeline prefixes. Longer names
// first so "context_engine_complete" is not split at the wrong underscore.
var pipelineKinds = []string{
	PipelineContextEngine,
	PipelineExtraction,
	PipelineGeneration,
	PipelineAnalysis,
}

// chatTypes are the frame types handled by the chat stream state machine.
var chatTypes = map[string]bool{
	"chat_chunk":     true,
	"tool_preparing": true,
	"tool_start":     true,
	"tool_end":       true,
	"chat_end":       true,
	"error":          true,
}

// Classify maps a frame discriminant to its kind. For pipeline frames the
// second return value names the pipeline (extraction, analysis, generation,
// context_engine); for all other kinds it is empty.
func Classify(f *Frame) (Kind, string) {
	d := f.Discriminant()
	if d == "" {
		return KindUnknown, ""
	}
	if d == "pong" {
		return KindPong, ""
	}
	if chatTypes[d] {
		return KindChat, ""
	}

	for _, kind := range pipelineKinds {
		if !strings.HasPrefix(d, kind+"_") {
			continue
		}
		switch d[len(kind)+1:] {
		case "progress":
			return KindPipelineProgress, kind
		case "complete":
			return KindPipelineComplete, kind
		case "failed":
			return KindPipelineFailed, kind
		case "cancelled":
			return KindPipelineCancelled, kind
		}
	}

	return KindUnknown, ""
}
