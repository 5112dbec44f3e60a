package parser

import (
	"strings"

	"github.com/llmrelay/llmrelay/internal/jsonval"
)

// Pipeline is an ordered chain of Parsers applied to one response, buffered
// or streamed. Per spec.md §4.3's ordering rule, a pipeline containing both
// parse_tags and reasoning_swap always runs parse_tags first regardless of
// configured order; Build enforces this and reports when it had to reorder.
type Pipeline struct {
	parsers []Parser
	paths   []string // path substrings this pipeline applies to; empty = all paths
}

// New builds a Pipeline from already-ordered parsers (used directly by
// tests and by Build).
func New(parsers ...Parser) *Pipeline {
	return &Pipeline{parsers: parsers}
}

// Applies reports whether this pipeline's configured path filter matches
// ctx.Path. An empty filter matches every path.
func (p *Pipeline) Applies(path string) bool {
	if len(p.paths) == 0 {
		return true
	}
	for _, prefix := range p.paths {
		if strings.Contains(path, prefix) {
			return true
		}
	}
	return false
}

// ApplyBuffered decodes raw as a JSON object and runs every parser over it
// in order. If raw does not decode to a JSON object, it is returned
// unchanged (spec.md §4.3, "if body is a JSON object, apply parsers").
func (p *Pipeline) ApplyBuffered(ctx Context, raw []byte) ([]byte, bool, error) {
	body, ok := jsonval.Decode(raw)
	if !ok {
		return raw, false, nil
	}
	anyChanged := false
	for _, parser := range p.parsers {
		updated, changed, err := parser.ApplyBuffered(ctx, body)
		if err != nil {
			return raw, false, err
		}
		if changed {
			body = updated
			anyChanged = true
		}
	}
	if !anyChanged {
		return raw, false, nil
	}
	out, err := jsonval.Encode(body)
	if err != nil {
		return raw, false, err
	}
	return out, true, nil
}

// Session is a live streaming pipeline instance: one per parser's State,
// plus the carried envelope fields (id, model, object, created) that
// synthesized finalisation events inherit. The latest usage is recorded in
// the envelope too, but is not copied onto synthesized events.
type Session struct {
	pipeline *Pipeline
	ctx      Context
	states   []State
	envelope jsonval.Value
}

// NewSession starts a streaming pipeline instance for one upstream
// connection. Per-request parser state lives for the session's lifetime and
// is never shared (spec.md §3).
func (p *Pipeline) NewSession(ctx Context) *Session {
	states := make([]State, len(p.parsers))
	for i, parser := range p.parsers {
		states[i] = parser.NewState()
	}
	return &Session{pipeline: p, ctx: ctx, states: states, envelope: jsonval.Value{}}
}

var envelopeFields = []string{"id", "model", "object", "created"}

func (s *Session) updateEnvelope(event jsonval.Value) {
	for _, f := range envelopeFields {
		if v, ok := event[f]; ok {
			s.envelope[f] = v
		}
	}
	if usage, ok := event["usage"]; ok {
		s.envelope["usage"] = usage
	}
}

func (s *Session) applyEnvelope(event jsonval.Value) {
	for k, v := range s.envelope {
		if k == "usage" {
			continue // usage is never copied onto synthesized events
		}
		if _, present := event[k]; !present {
			event[k] = v
		}
	}
}

// FeedEvent runs one decoded SSE data event through every parser in order
// and returns the (possibly unchanged) re-encoded bytes of the transformed
// event. A [DONE] event or one with no "choices" array passes through
// unexamined.
func (s *Session) FeedEvent(raw []byte) ([]byte, error) {
	event, ok := jsonval.Decode(raw)
	if !ok {
		return raw, nil
	}
	s.updateEnvelope(event)
	for i := range s.pipeline.parsers {
		if _, err := s.states[i].ApplyEvent(s.ctx, event); err != nil {
			return raw, err
		}
	}
	return jsonval.Encode(event)
}

// Finalize flushes every parser's residual state as additional SSE data
// events (already encoded, envelope-merged), to be emitted before the
// stream's [DONE]/close.
func (s *Session) Finalize() ([][]byte, error) {
	var out [][]byte
	for i := range s.pipeline.parsers {
		events, err := s.states[i].Finalize(s.ctx)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			s.applyEnvelope(ev)
			encoded, err := jsonval.Encode(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, encoded)
		}
	}
	return out, nil
}
