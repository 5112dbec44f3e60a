package tagscan

import (
	"encoding/json"
	"strings"
)

// K2Scanner is the marker-token variant of Scanner used by backends that
// emit tool calls inside a "<|tool_calls_section_begin|>...
// <|tool_calls_section_end|>" section, where each call is delimited by
// "<|tool_call_begin|>"/"<|tool_call_end|>" and its single JSON argument
// payload follows "<|tool_call_argument_begin|>". Reasoning is still
// delimited by the ordinary <think>/</think> markers; only the tool-call
// encoding differs from Scanner.
type K2Scanner struct {
	thinkOpen, thinkClose   string
	sectionOpen, sectionEnd string
	callOpen, callEnd       string
	argBegin                string

	mode mode
	buf  string

	inSection bool
	callBuf   string
	callName  string
}

const (
	k2SectionOpen = "<|tool_calls_section_begin|>"
	k2SectionEnd  = "<|tool_calls_section_end|>"
	k2CallOpen    = "<|tool_call_begin|>"
	k2CallEnd     = "<|tool_call_end|>"
	k2ArgBegin    = "<|tool_call_argument_begin|>"
)

// NewK2 returns a Scanner-compatible scanner for the K2 marker dialect.
func NewK2() *K2Scanner {
	return &K2Scanner{
		thinkOpen:   "<think>",
		thinkClose:  "</think>",
		sectionOpen: k2SectionOpen,
		sectionEnd:  k2SectionEnd,
		callOpen:    k2CallOpen,
		callEnd:     k2CallEnd,
		argBegin:    k2ArgBegin,
	}
}

// couldBePrefix mirrors Scanner.couldBePrefix against this dialect's marker
// vocabulary so a marker split across a chunk boundary is held back.
func (s *K2Scanner) couldBePrefix(buf string) bool {
	candidates := []string{s.thinkOpen, s.thinkClose, s.sectionOpen}
	if s.inSection {
		candidates = append(candidates, s.callOpen, s.sectionEnd)
	}
	for _, tag := range candidates {
		if len(buf) < len(tag) && strings.HasPrefix(tag, buf) {
			return true
		}
	}
	return false
}

// Feed behaves like Scanner.Feed but recognises the K2 marker tokens.
func (s *K2Scanner) Feed(text string) Result {
	if text == "" {
		return Result{}
	}
	s.buf += text

	var content, reasoning strings.Builder
	var calls []ToolCall

	for len(s.buf) > 0 {
		switch s.mode {
		case modeText:
			idx := strings.IndexByte(s.buf, '<')
			if idx == -1 {
				content.WriteString(s.buf)
				s.buf = ""
				break
			}
			if idx > 0 {
				content.WriteString(s.buf[:idx])
				s.buf = s.buf[idx:]
			}
			if strings.HasPrefix(s.buf, s.thinkOpen) {
				s.buf = s.buf[len(s.thinkOpen):]
				s.mode = modeThink
				continue
			}
			if !s.inSection && strings.HasPrefix(s.buf, s.sectionOpen) {
				s.buf = s.buf[len(s.sectionOpen):]
				s.inSection = true
				continue
			}
			if s.inSection && strings.HasPrefix(s.buf, s.sectionEnd) {
				s.buf = s.buf[len(s.sectionEnd):]
				s.inSection = false
				continue
			}
			if s.inSection && strings.HasPrefix(s.buf, s.callOpen) {
				s.buf = s.buf[len(s.callOpen):]
				s.callBuf, s.callName = "", ""
				s.mode = modeTool
				continue
			}
			if s.couldBePrefix(s.buf) {
				goto outOfInput
			}
			content.WriteByte(s.buf[0])
			s.buf = s.buf[1:]
			continue

		case modeThink:
			idx := strings.Index(s.buf, s.thinkClose)
			if idx == -1 {
				head, tail := splitTailPrefix(s.buf, s.thinkClose)
				if head != "" {
					reasoning.WriteString(head)
				}
				s.buf = tail
				goto outOfInput
			}
			reasoning.WriteString(s.buf[:idx])
			s.buf = s.buf[idx+len(s.thinkClose):]
			s.mode = modeText
			continue

		case modeTool:
			idx := strings.Index(s.buf, s.callEnd)
			if idx == -1 {
				head, tail := splitTailPrefix(s.buf, s.callEnd)
				if head != "" {
					s.callBuf += head
				}
				s.buf = tail
				goto outOfInput
			}
			s.callBuf += s.buf[:idx]
			s.buf = s.buf[idx+len(s.callEnd):]
			if call, ok := parseK2Call(s.callBuf, s.argBegin); ok {
				calls = append(calls, call)
			}
			s.callBuf = ""
			s.mode = modeText
			continue
		}
	}
outOfInput:

	return Result{Content: content.String(), Reasoning: reasoning.String(), ToolCalls: calls}
}

// Flush mirrors Scanner.Flush for the K2 dialect.
func (s *K2Scanner) Flush() Result {
	var out Result
	switch s.mode {
	case modeText:
		out.Content = s.buf
	case modeThink:
		out.Reasoning = s.buf
	case modeTool:
		out.Content = s.callOpen + s.callBuf + s.buf
	}
	s.buf, s.callBuf = "", ""
	s.mode = modeText
	s.inSection = false
	return out
}

// parseK2Call splits a call body on the argument marker: everything before
// is the function name, everything after is a single JSON argument value.
func parseK2Call(body, argBegin string) (ToolCall, bool) {
	idx := strings.Index(body, argBegin)
	var name, argText string
	if idx == -1 {
		name = strings.TrimSpace(body)
	} else {
		name = strings.TrimSpace(body[:idx])
		argText = strings.TrimSpace(body[idx+len(argBegin):])
	}
	if name == "" {
		return ToolCall{}, false
	}
	args := map[string]any{}
	if argText != "" {
		var decoded any
		if err := json.Unmarshal([]byte(argText), &decoded); err == nil {
			if obj, ok := decoded.(map[string]any); ok {
				args = obj
			} else {
				args["value"] = decoded
			}
		}
	}
	return ToolCall{Name: name, Arguments: args}, true
}
