package transport

import (
	"bufio"
	"io"
	"net/http"
	"sync"

	"github.com/llmrelay/llmrelay/internal/parser"
	"github.com/llmrelay/llmrelay/internal/sse"
)

// Flusher is the minimal surface Relay needs from an http.ResponseWriter to
// push bytes to the client as they arrive.
type Flusher interface {
	io.Writer
	Flush()
}

// Relay streams one upstream SSE body to a client, running every event
// through a parser.Session first, after peeking the opening bytes for an
// inline error (spec.md §4.5). Close is safe to call multiple times or
// concurrently with Run returning; only the first call has any effect,
// guaranteeing the upstream body is read and closed exactly once per
// connection.
type Relay struct {
	upstream  io.ReadCloser
	dst       Flusher
	session   *parser.Session
	peekBytes int
	closeOnce sync.Once

	// OnCommit, if set, is called exactly once, right after the peek
	// window clears and before the first byte is written to dst — the
	// caller's chance to write response status/headers at the point the
	// response is actually committed to the client.
	OnCommit func()
}

// NewRelay builds a Relay. peekBytes of zero uses DefaultPeekBufferSize.
func NewRelay(upstream io.ReadCloser, dst Flusher, session *parser.Session, peekBytes int) *Relay {
	if peekBytes <= 0 {
		peekBytes = DefaultPeekBufferSize
	}
	return &Relay{upstream: upstream, dst: dst, session: session, peekBytes: peekBytes}
}

// Close releases the upstream body. Safe to call more than once.
func (r *Relay) Close() {
	r.closeOnce.Do(func() {
		r.upstream.Close()
	})
}

// Run reads the upstream body, buffering up to peekBytes before the first
// write so an inline error can be detected and returned instead of
// committing a partial 200 response to the client. The peek waits until
// peekBytes are buffered or the stream ends. After that, every byte is
// decoded as SSE, run through session, re-encoded, and flushed
// immediately. Run always closes the upstream body before returning.
func (r *Relay) Run() (*PeekedError, error) {
	defer r.Close()

	reader := bufio.NewReaderSize(r.upstream, r.peekBytes)
	peek, _ := reader.Peek(r.peekBytes)
	if perr, found := DetectInlineError(peek); found {
		return &perr, nil
	}

	if r.OnCommit != nil {
		r.OnCommit()
	}

	dec := sse.NewDecoder()
	buf := make([]byte, 32*1024)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if werr := r.decodeAndForward(dec, buf[:n]); werr != nil {
				return nil, werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if ev, ok := dec.Flush(); ok {
		if werr := r.forwardEvent(ev); werr != nil {
			return nil, werr
		}
	}
	for _, tail := range r.finalizeSession() {
		if _, err := r.dst.Write(sse.EncodeData(tail)); err != nil {
			return nil, err
		}
	}
	r.dst.Flush()
	return nil, nil
}

func (r *Relay) decodeAndForward(dec *sse.Decoder, chunk []byte) error {
	for _, ev := range dec.Feed(chunk) {
		if err := r.forwardEvent(ev); err != nil {
			return err
		}
	}
	r.dst.Flush()
	return nil
}

func (r *Relay) forwardEvent(ev sse.Event) error {
	if ev.IsDone() {
		for _, tail := range r.finalizeSession() {
			if _, err := r.dst.Write(sse.EncodeData(tail)); err != nil {
				return err
			}
		}
	}
	if ev.IsDone() || r.session == nil {
		_, err := r.dst.Write(sse.Encode(ev))
		return err
	}
	out, err := r.session.FeedEvent(ev.Data)
	if err != nil {
		return err
	}
	ev.Data = out
	_, err = r.dst.Write(sse.Encode(ev))
	return err
}

func (r *Relay) finalizeSession() [][]byte {
	if r.session == nil {
		return nil
	}
	tails, err := r.session.Finalize()
	if err != nil {
		return nil
	}
	return tails
}

// ResponseFlusher adapts an http.ResponseWriter (which may or may not
// implement http.Flusher) to the Flusher interface; Flush is a no-op if the
// underlying writer doesn't support it.
type ResponseFlusher struct {
	W http.ResponseWriter
}

func (f ResponseFlusher) Write(p []byte) (int, error) { return f.W.Write(p) }
func (f ResponseFlusher) Flush() {
	if fl, ok := f.W.(http.Flusher); ok {
		fl.Flush()
	}
}
