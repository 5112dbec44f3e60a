package parser

import (
	"sort"

	"github.com/llmrelay/llmrelay/internal/jsonval"
)

// SwapMode selects which direction ReasoningSwap moves reasoning content.
type SwapMode string

const (
	// ReasoningToContent wraps reasoning_content in <think>...</think> and
	// prepends it to the message content.
	ReasoningToContent SwapMode = "reasoning_to_content"
	// ContentToReasoning extracts the first <think> block out of content
	// into reasoning_content.
	ContentToReasoning SwapMode = "content_to_reasoning"
	// Auto decides per choice based on whichever field shows up first.
	Auto SwapMode = "auto"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// ReasoningSwap moves reasoning between a parallel reasoning_content field
// and inline <think> markers in content, per spec.md §4.3.
type ReasoningSwap struct {
	Mode SwapMode
}

func (r ReasoningSwap) Name() string { return "reasoning_swap" }

func (r ReasoningSwap) ApplyBuffered(ctx Context, body jsonval.Value) (jsonval.Value, bool, error) {
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
		mode := r.Mode
		content, _ := msg["content"].(string)
		reasoning, hasReasoning := msg["reasoning_content"].(string)

		if mode == Auto {
			switch {
			case hasReasoning && reasoning != "":
				mode = ReasoningToContent
			case containsThinkOpen(content):
				mode = ContentToReasoning
			default:
				continue
			}
		}

		switch mode {
		case ReasoningToContent:
			if !hasReasoning || reasoning == "" {
				continue
			}
			msg["content"] = thinkOpen + reasoning + thinkClose + content
			delete(msg, "reasoning_content")
			changed = true
		case ContentToReasoning:
			extracted, rest, ok := extractFirstThinkBlock(content)
			if !ok {
				continue
			}
			if !jsonval.Has(msg, "reasoning_content") {
				msg["reasoning_content"] = extracted
			}
			msg["content"] = rest
			changed = true
		}
	}
	return body, changed, nil
}

func containsThinkOpen(s string) bool {
	return indexOf(s, thinkOpen) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// extractFirstThinkBlock pulls the first <think>...</think> block out of
// text, returning the reasoning body and the remaining content with the
// block removed. ok is false if no complete block is present.
func extractFirstThinkBlock(text string) (reasoning, rest string, ok bool) {
	start := indexOf(text, thinkOpen)
	if start == -1 {
		return "", text, false
	}
	bodyStart := start + len(thinkOpen)
	end := indexOf(text[bodyStart:], thinkClose)
	if end == -1 {
		return "", text, false
	}
	end += bodyStart
	reasoning = text[bodyStart:end]
	rest = text[:start] + text[end+len(thinkClose):]
	return reasoning, rest, true
}

// NewState returns fresh per-connection ReasoningSwap streaming state.
func (r ReasoningSwap) NewState() State {
	return &reasoningSwapState{mode: r.Mode, choices: map[int]*reasoningChoiceState{}}
}

type reasoningChoiceState struct {
	mode            SwapMode
	decided         bool
	insideReasoning bool
	// content_to_reasoning carry buffer, for a <think> split across chunks.
	carry      string
	inThink    bool
}

type reasoningSwapState struct {
	mode    SwapMode
	choices map[int]*reasoningChoiceState
}

func (s *reasoningSwapState) stateFor(idx int) *reasoningChoiceState {
	if cs, ok := s.choices[idx]; ok {
		return cs
	}
	cs := &reasoningChoiceState{mode: s.mode}
	s.choices[idx] = cs
	return cs
}

func (s *reasoningSwapState) ApplyEvent(ctx Context, event jsonval.Value) (bool, error) {
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
		cstate := s.stateFor(idx)
		content, hasContent := delta["content"].(string)
		reasoning, hasReasoning := delta["reasoning_content"].(string)

		if !cstate.decided {
			switch cstate.mode {
			case Auto:
				switch {
				case hasReasoning:
					cstate.mode = ReasoningToContent
					cstate.decided = true
				case hasContent:
					cstate.mode = ContentToReasoning
					cstate.decided = true
				}
			default:
				cstate.decided = true
			}
		}

		switch cstate.mode {
		case ReasoningToContent:
			if hasReasoning {
				if !cstate.insideReasoning {
					delta["content"] = thinkOpen + reasoning
					cstate.insideReasoning = true
				} else {
					delta["content"] = reasoning
				}
				delete(delta, "reasoning_content")
				changed = true
			} else if hasContent && cstate.insideReasoning {
				delta["content"] = thinkClose + content
				cstate.insideReasoning = false
				changed = true
			}
		case ContentToReasoning:
			if hasContent {
				cstate.carry += content
				emitted, reasoningOut, inThink := scanThinkIncremental(cstate.carry, cstate.inThink)
				cstate.carry = ""
				cstate.inThink = inThink
				if reasoningOut != "" {
					delta["reasoning_content"] = reasoningOut
					changed = true
				}
				delta["content"] = emitted
				changed = true
			}
		}
	}
	return changed, nil
}

// scanThinkIncremental is a minimal single-tag incremental scanner used only
// by the streaming content_to_reasoning direction: text outside <think> is
// content, text inside is reasoning, and a tag split across the chunk
// boundary is never emitted prematurely (mirrors tagscan's carry-buffer
// discipline for a single tag pair).
func scanThinkIncremental(buf string, inThink bool) (content, reasoning string, stillInThink bool) {
	for len(buf) > 0 {
		if !inThink {
			idx := indexOf(buf, thinkOpen)
			if idx == -1 {
				if couldBeThinkPrefix(buf, thinkOpen) {
					return content, reasoning, false
				}
				content += buf
				return content, reasoning, false
			}
			content += buf[:idx]
			buf = buf[idx+len(thinkOpen):]
			inThink = true
			continue
		}
		idx := indexOf(buf, thinkClose)
		if idx == -1 {
			if couldBeThinkPrefix(buf, thinkClose) {
				return content, reasoning, true
			}
			reasoning += buf
			return content, reasoning, true
		}
		reasoning += buf[:idx]
		buf = buf[idx+len(thinkClose):]
		inThink = false
	}
	return content, reasoning, inThink
}

func couldBeThinkPrefix(buf, tag string) bool {
	return len(buf) < len(tag) && tag[:len(buf)] == buf
}

func (s *reasoningSwapState) Finalize(ctx Context) ([]jsonval.Value, error) {
	indices := make([]int, 0, len(s.choices))
	for idx := range s.choices {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var events []jsonval.Value
	for _, idx := range indices {
		cstate := s.choices[idx]
		if cstate.mode == ReasoningToContent && cstate.insideReasoning {
			events = append(events, jsonval.Value{
				"choices": []any{jsonval.Value{
					"index": float64(idx),
					"delta": jsonval.Value{"content": thinkClose},
				}},
			})
			cstate.insideReasoning = false
		}
	}
	return events, nil
}
