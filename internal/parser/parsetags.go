package parser

import (
	"encoding/json"
	"sort"

	"github.com/llmrelay/llmrelay/internal/jsonval"
	"github.com/llmrelay/llmrelay/internal/tagscan"
)

// ParseTags extracts <think>…</think> reasoning and <tool_call>…</tool_call>
// invocations embedded in raw assistant content, per spec.md §4.3. It never
// overwrites a reasoning_content the upstream already supplied (spec.md P6,
// parser idempotence).
type ParseTags struct {
	// K2 selects the "<|tool_call_begin|>..." marker dialect instead of the
	// canonical <tool_call> tag, per spec.md §4.2's K2 variant.
	K2 bool
}

func (p ParseTags) Name() string { return "parse_tags" }

func (p ParseTags) newScanner() tagScanner {
	if p.K2 {
		return tagscan.NewK2()
	}
	return tagscan.New()
}

// tagScanner is the shape shared by tagscan.Scanner and tagscan.K2Scanner,
// so ParseTags can be dialect-agnostic.
type tagScanner interface {
	Feed(string) tagscan.Result
	Flush() tagscan.Result
}

func (p ParseTags) ApplyBuffered(ctx Context, body jsonval.Value) (jsonval.Value, bool, error) {
	cs := choices(body)
	if len(cs) == 0 {
		return body, false, nil
	}
	changed := false
	for _, choice := range cs {
		if choice == nil {
			continue
		}
		msg, ok := jsonval.Object(choice, "message")
		if !ok {
			continue
		}
		if jsonval.String(msg, "role") != "assistant" {
			continue
		}
		content, ok := msg["content"].(string)
		if !ok {
			continue
		}

		scanner := p.newScanner()
		res := scanner.Feed(content)
		flushed := scanner.Flush()
		res.Content += flushed.Content
		res.Reasoning += flushed.Reasoning
		res.ToolCalls = append(res.ToolCalls, flushed.ToolCalls...)

		if len(res.ToolCalls) == 0 && res.Reasoning == "" {
			// Nothing to extract; content is byte-identical to the source so
			// re-running ApplyBuffered on an already-parsed response is a
			// no-op (spec.md P6).
			continue
		}

		if res.Reasoning != "" && !jsonval.Has(msg, "reasoning_content") {
			msg["reasoning_content"] = res.Reasoning
		}

		if len(res.ToolCalls) > 0 {
			calls := make([]any, 0, len(res.ToolCalls))
			for i, tc := range res.ToolCalls {
				calls = append(calls, buildToolCall(tc, i))
			}
			msg["tool_calls"] = calls

			reason := jsonval.String(choice, "finish_reason")
			if reason == "" || reason == "stop" {
				choice["finish_reason"] = "tool_calls"
			}
		}

		if res.Content == "" {
			msg["content"] = nil
		} else {
			msg["content"] = res.Content
		}
		changed = true
	}
	return body, changed, nil
}

func buildToolCall(tc tagscan.ToolCall, index int) jsonval.Value {
	argsJSON, err := json.Marshal(tc.Arguments)
	if err != nil {
		argsJSON = []byte("{}")
	}
	return jsonval.Value{
		"id":   syntheticToolCallID(index),
		"type": "function",
		"function": jsonval.Value{
			"name":      tc.Name,
			"arguments": string(argsJSON),
		},
		"index": float64(index),
	}
}

func syntheticToolCallID(index int) string {
	const hex = "0123456789abcdef"
	// Deterministic, collision-free-enough-per-response id; the real
	// upstream id (when present) is never produced here since these tool
	// calls only exist because the upstream inlined them as text.
	b := []byte("call_xxxxxxxx")
	n := index
	for i := len(b) - 1; i >= len(b)-8; i-- {
		b[i] = hex[n&0xf]
		n >>= 4
	}
	return string(b)
}

// NewState returns a fresh per-connection ParseTags streaming state.
func (p ParseTags) NewState() State {
	return &parseTagsState{k2: p.K2, scanners: map[int]tagScanner{}}
}

type parseTagsState struct {
	k2          bool
	scanners    map[int]tagScanner
	sawToolCall map[int]bool
}

func (s *parseTagsState) scannerFor(idx int) tagScanner {
	if sc, ok := s.scanners[idx]; ok {
		return sc
	}
	var sc tagScanner
	if s.k2 {
		sc = tagscan.NewK2()
	} else {
		sc = tagscan.New()
	}
	s.scanners[idx] = sc
	return sc
}

func (s *parseTagsState) markToolCall(idx int) {
	if s.sawToolCall == nil {
		s.sawToolCall = map[int]bool{}
	}
	s.sawToolCall[idx] = true
}

func (s *parseTagsState) ApplyEvent(ctx Context, event jsonval.Value) (bool, error) {
	cs := choices(event)
	if len(cs) == 0 {
		return false, nil
	}
	changed := false
	for i, choice := range cs {
		if choice == nil {
			continue
		}
		idx := choiceIndex(choice, i)
		delta, ok := jsonval.Object(choice, "delta")
		if !ok {
			continue
		}
		content, hasContent := delta["content"].(string)
		var res tagscan.Result
		if hasContent {
			res = s.scannerFor(idx).Feed(content)
		}
		if len(res.ToolCalls) > 0 {
			calls := make([]any, 0, len(res.ToolCalls))
			for j, tc := range res.ToolCalls {
				calls = append(calls, buildToolCall(tc, j))
			}
			delta["tool_calls"] = calls
			s.markToolCall(idx)
			changed = true
		}
		if res.Reasoning != "" {
			delta["reasoning_content"] = res.Reasoning
			changed = true
		}
		if hasContent {
			delta["content"] = res.Content
			changed = true
		}

		if s.sawToolCall[idx] {
			if reason := jsonval.String(choice, "finish_reason"); reason == "stop" {
				choice["finish_reason"] = "tool_calls"
				changed = true
			}
		}
	}
	return changed, nil
}

func (s *parseTagsState) Finalize(ctx Context) ([]jsonval.Value, error) {
	indices := make([]int, 0, len(s.scanners))
	for idx := range s.scanners {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var events []jsonval.Value
	for _, idx := range indices {
		res := s.scanners[idx].Flush()
		if res.Content == "" && res.Reasoning == "" && len(res.ToolCalls) == 0 {
			continue
		}
		delta := jsonval.Value{}
		if res.Content != "" {
			delta["content"] = res.Content
		}
		if res.Reasoning != "" {
			delta["reasoning_content"] = res.Reasoning
		}
		if len(res.ToolCalls) > 0 {
			calls := make([]any, 0, len(res.ToolCalls))
			for j, tc := range res.ToolCalls {
				calls = append(calls, buildToolCall(tc, j))
			}
			delta["tool_calls"] = calls
			s.markToolCall(idx)
		}
		events = append(events, jsonval.Value{
			"choices": []any{jsonval.Value{"index": float64(idx), "delta": delta}},
		})
	}
	return events, nil
}
