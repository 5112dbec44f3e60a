// Package sse implements the Server-Sent-Events wire codec used between the
// proxy and both its upstreams and its clients: splitting a byte stream into
// events on the blank-line separator, pulling "data:" lines into a joined
// payload, and carrying every other line through untouched.
package sse

import (
	"bytes"
	"strings"
)

// Event is one decoded SSE event. Data is nil when the event carried no
// data line at all (as opposed to an empty one), so callers can tell the
// two apart. Other holds every non-"data:" line verbatim, in order.
type Event struct {
	Data  []byte
	Other []string
}

// IsDone reports whether this event is the chat-completions stream
// terminator, "data: [DONE]".
func (e Event) IsDone() bool {
	return e.Data != nil && string(bytes.TrimSpace(e.Data)) == "[DONE]"
}

// Decoder splits a byte stream into Events, buffering a partial trailing
// event between Feed calls so callers can hand it arbitrarily-sized chunks
// as they arrive off the wire.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the internal buffer and returns every complete event
// it now contains. Incomplete trailing bytes remain buffered for the next
// Feed or Flush call.
func (d *Decoder) Feed(chunk []byte) []Event {
	if len(chunk) == 0 {
		return nil
	}
	d.buf = append(d.buf, chunk...)
	return d.drain()
}

// drain extracts complete events from the buffer, normalising CRLF/CR event
// separators to LF before splitting on the blank line.
func (d *Decoder) drain() []Event {
	var events []Event
	for {
		idx, sepLen := findSeparator(d.buf)
		if idx < 0 {
			return events
		}
		raw := d.buf[:idx]
		d.buf = d.buf[idx+sepLen:]
		events = append(events, parseEvent(raw))
	}
}

// findSeparator locates the earliest event separator ("\n\n", "\r\n\r\n", or
// "\r\r") in buf and returns its start index and length.
func findSeparator(buf []byte) (int, int) {
	best, bestLen := -1, 0
	for _, sep := range [][]byte{[]byte("\r\n\r\n"), []byte("\n\n"), []byte("\r\r")} {
		if i := bytes.Index(buf, sep); i >= 0 && (best < 0 || i < best) {
			best, bestLen = i, len(sep)
		}
	}
	return best, bestLen
}

// Flush returns whatever trailing bytes remain buffered, parsed as a final
// (possibly unterminated) event, so an upstream that never sends a closing
// blank line does not lose its tail. The buffer is cleared.
func (d *Decoder) Flush() (Event, bool) {
	if len(d.buf) == 0 {
		return Event{}, false
	}
	raw := d.buf
	d.buf = nil
	return parseEvent(raw), true
}

func parseEvent(raw []byte) Event {
	lines := splitLines(raw)
	var dataLines []string
	var other []string
	hasData := false
	for _, line := range lines {
		normalized := strings.TrimRight(line, "\r")
		if strings.HasPrefix(normalized, "data:") {
			hasData = true
			payload := normalized[len("data:"):]
			payload = strings.TrimPrefix(payload, " ")
			dataLines = append(dataLines, payload)
			continue
		}
		other = append(other, normalized)
	}
	var data []byte
	if hasData {
		data = []byte(strings.Join(dataLines, "\n"))
	}
	return Event{Data: data, Other: other}
}

func splitLines(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// Encode inverts Decoder: it serializes an Event back to wire bytes, emitting
// every "other" line first, then the data payload split on "\n" and each
// piece re-prefixed with "data: ", terminated by a blank line.
func Encode(e Event) []byte {
	var buf bytes.Buffer
	for _, line := range e.Other {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if e.Data != nil {
		parts := strings.Split(string(e.Data), "\n")
		for _, part := range parts {
			buf.WriteString("data: ")
			buf.WriteString(part)
			buf.WriteByte('\n')
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// EncodeData is a convenience wrapper for the common case of emitting a pure
// JSON data event with no other lines.
func EncodeData(data []byte) []byte {
	return Encode(Event{Data: data})
}
