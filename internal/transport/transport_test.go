package transport

import (
	"bytes"
	"io"
	"testing"
)

type fakeFlusher struct {
	buf      bytes.Buffer
	flushes  int
}

func (f *fakeFlusher) Write(p []byte) (int, error) { return f.buf.Write(p) }
func (f *fakeFlusher) Flush()                       { f.flushes++ }

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func TestDetectInlineError_FindsGenericErrorShape(t *testing.T) {
	data := []byte("data: {\"error\":{\"message\":\"boom\",\"type\":\"rate_limit\"}}\n\n")
	perr, ok := DetectInlineError(data)
	if !ok {
		t.Fatal("expected error detected")
	}
	if perr.Message != "boom" || perr.Type != "rate_limit" {
		t.Fatalf("unexpected peeked error: %+v", perr)
	}
}

func TestDetectInlineError_FindsMiniMaxStyleShape(t *testing.T) {
	data := []byte("data: {\"type\":\"error\",\"error\":\"quota exceeded\"}\n\n")
	perr, ok := DetectInlineError(data)
	if !ok {
		t.Fatal("expected error detected")
	}
	if perr.Message != "quota exceeded" {
		t.Fatalf("unexpected message: %q", perr.Message)
	}
}

func TestDetectInlineError_NoErrorInOrdinaryChunk(t *testing.T) {
	data := []byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n")
	_, ok := DetectInlineError(data)
	if ok {
		t.Fatal("expected no error detected in ordinary chunk")
	}
}

func TestDetectInlineError_IgnoresDoneMarker(t *testing.T) {
	data := []byte("data: [DONE]\n\n")
	_, ok := DetectInlineError(data)
	if ok {
		t.Fatal("expected [DONE] not treated as error")
	}
}

func TestRelay_RunRelaysOrdinaryStreamWithoutError(t *testing.T) {
	body := "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\ndata: [DONE]\n\n"
	up := nopCloser{bytes.NewBufferString(body)}
	dst := &fakeFlusher{}

	r := NewRelay(up, dst, nil, 16)
	perr, err := r.Run()
	if err != nil {
		t.Fatal(err)
	}
	if perr != nil {
		t.Fatalf("expected no inline error, got %+v", perr)
	}
	if !bytes.Contains(dst.buf.Bytes(), []byte("[DONE]")) {
		t.Fatalf("expected DONE relayed, got %q", dst.buf.String())
	}
	if dst.flushes == 0 {
		t.Fatal("expected at least one flush")
	}
}

func TestRelay_RunDetectsInlineErrorBeforeRelaying(t *testing.T) {
	body := "data: {\"error\":{\"message\":\"boom\",\"type\":\"server_error\"}}\n\n"
	up := nopCloser{bytes.NewBufferString(body)}
	dst := &fakeFlusher{}

	r := NewRelay(up, dst, nil, 4096)
	perr, err := r.Run()
	if err != nil {
		t.Fatal(err)
	}
	if perr == nil {
		t.Fatal("expected inline error detected")
	}
	if dst.buf.Len() != 0 {
		t.Fatalf("expected nothing written to client before error detected, got %q", dst.buf.String())
	}
}

func TestRelay_CloseIsIdempotent(t *testing.T) {
	up := nopCloser{bytes.NewBufferString("")}
	dst := &fakeFlusher{}
	r := NewRelay(up, dst, nil, 16)
	r.Close()
	r.Close()
}
