package sse

import (
	"bytes"
	"testing"
)

func TestDecoder_SplitsOnBlankLine(t *testing.T) {
	d := NewDecoder()
	events := d.Feed([]byte("data: {\"a\":1}\n\ndata: {\"a\":2}\n\n"))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if string(events[0].Data) != `{"a":1}` || string(events[1].Data) != `{"a":2}` {
		t.Fatalf("unexpected data: %+v", events)
	}
}

func TestDecoder_MultilineDataJoinedWithNewline(t *testing.T) {
	d := NewDecoder()
	events := d.Feed([]byte("data: line1\ndata: line2\n\n"))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if string(events[0].Data) != "line1\nline2" {
		t.Fatalf("unexpected joined data: %q", events[0].Data)
	}
}

func TestDecoder_OtherLinesPreservedVerbatim(t *testing.T) {
	d := NewDecoder()
	events := d.Feed([]byte("event: ping\n: heartbeat\ndata: {}\n\n"))
	if len(events) != 1 {
		t.Fatalf("expected 1 event")
	}
	e := events[0]
	if len(e.Other) != 2 || e.Other[0] != "event: ping" || e.Other[1] != ": heartbeat" {
		t.Fatalf("unexpected other lines: %+v", e.Other)
	}
}

func TestDecoder_NoDataLineYieldsNilData(t *testing.T) {
	d := NewDecoder()
	events := d.Feed([]byte("event: ping\n\n"))
	if events[0].Data != nil {
		t.Fatalf("expected nil data, got %q", events[0].Data)
	}
}

func TestDecoder_PartialEventBufferedAcrossFeeds(t *testing.T) {
	d := NewDecoder()
	if events := d.Feed([]byte("data: {\"a\":")); len(events) != 0 {
		t.Fatalf("expected no events yet, got %d", len(events))
	}
	events := d.Feed([]byte("1}\n\n"))
	if len(events) != 1 || string(events[0].Data) != `{"a":1}` {
		t.Fatalf("unexpected result after completing event: %+v", events)
	}
}

func TestDecoder_FlushSurfacesUnterminatedTail(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("data: complete\n\ndata: dangling"))
	ev, ok := d.Flush()
	if !ok {
		t.Fatalf("expected flush to surface remainder")
	}
	if string(ev.Data) != "dangling" {
		t.Fatalf("unexpected flushed data: %q", ev.Data)
	}
	if _, ok := d.Flush(); ok {
		t.Fatalf("second flush should report nothing remaining")
	}
}

func TestDecoder_ZeroByteFeedIsNoOp(t *testing.T) {
	d := NewDecoder()
	if events := d.Feed(nil); events != nil {
		t.Fatalf("expected nil for zero-byte feed")
	}
}

func TestEncodeDecode_RoundTripIsIdentity(t *testing.T) {
	e := Event{Data: []byte(`{"a":1}`), Other: []string{"event: message"}}
	wire := Encode(e)

	d := NewDecoder()
	events := d.Feed(wire)
	if len(events) != 1 {
		t.Fatalf("expected 1 event after round trip, got %d", len(events))
	}
	got := events[0]
	if !bytes.Equal(got.Data, e.Data) {
		t.Fatalf("data mismatch: %q != %q", got.Data, e.Data)
	}
	if len(got.Other) != 1 || got.Other[0] != e.Other[0] {
		t.Fatalf("other-lines mismatch: %+v", got.Other)
	}
}

func TestEvent_IsDone(t *testing.T) {
	if !(Event{Data: []byte("[DONE]")}).IsDone() {
		t.Fatalf("expected [DONE] to be detected")
	}
	if (Event{Data: []byte(`{"a":1}`)}).IsDone() {
		t.Fatalf("did not expect ordinary payload to be done")
	}
	if (Event{}).IsDone() {
		t.Fatalf("nil-data event must not be done")
	}
}

func TestDecoder_DoneBeforeAnyDataIsForwardedUnchanged(t *testing.T) {
	d := NewDecoder()
	events := d.Feed([]byte("data: [DONE]\n\n"))
	if len(events) != 1 || !events[0].IsDone() {
		t.Fatalf("expected a lone [DONE] event, got %+v", events)
	}
}
