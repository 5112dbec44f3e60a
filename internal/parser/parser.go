package parser

import "github.com/llmrelay/llmrelay/internal/jsonval"

// Parser is one stage of the response-transform pipeline. It is stateless
// and safe to share read-only across concurrent requests; per-request state
// (used only on the streaming path) is created fresh via NewState for every
// upstream connection and owned by the caller for that connection's
// lifetime (spec.md §3, "Parser pipelines are stateless and shared
// read-only").
type Parser interface {
	Name() string

	// ApplyBuffered transforms a fully-decoded JSON response body in place
	// (by returning a possibly-new Value) and reports whether anything
	// changed, so callers can skip re-encoding an untouched body.
	ApplyBuffered(ctx Context, body jsonval.Value) (jsonval.Value, bool, error)

	// NewState returns fresh per-connection state for the streaming path.
	NewState() State
}

// State is one parser's per-connection streaming state. It tracks, per
// choice index, whatever is needed to restart cleanly across arbitrary SSE
// event boundaries (spec.md §4.2's restartability requirement).
type State interface {
	// ApplyEvent transforms one decoded SSE data event in place, returning
	// whether it changed anything.
	ApplyEvent(ctx Context, event jsonval.Value) (bool, error)

	// Finalize flushes any residual buffered state (e.g. an unterminated
	// tag) as zero or more synthesized trailing events. Each returned event
	// carries only its "choices" (those the state has content for); the
	// caller's envelope-merge step fills in the id/model/object/created
	// fields.
	Finalize(ctx Context) ([]jsonval.Value, error)
}

// choices extracts the "choices" array of a chat-completion-shaped body as
// a slice of Values, skipping any entry that isn't itself an object.
func choices(body jsonval.Value) []jsonval.Value {
	raw, ok := jsonval.Array(body, "choices")
	if !ok {
		return nil
	}
	out := make([]jsonval.Value, 0, len(raw))
	for _, c := range raw {
		if obj, ok := c.(jsonval.Value); ok {
			out = append(out, obj)
		} else {
			out = append(out, nil)
		}
	}
	return out
}

func choiceIndex(choice jsonval.Value, fallback int) int {
	if choice == nil {
		return fallback
	}
	if f, ok := choice["index"].(float64); ok {
		return int(f)
	}
	return fallback
}
