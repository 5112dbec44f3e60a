// Package router builds a backend's fallback chain and drives the
// retry/backoff loop across it, handing each attempt off to a caller
// function supplied by the transport layer (spec.md §4.4).
package router

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/llmrelay/llmrelay/internal/registry"
)

// Default backoff bounds: the delay before a retry starts at
// DefaultRetryDelay and doubles on each subsequent retry, capped at
// MaxRetryDelay.
const (
	DefaultRetryDelay = 250 * time.Millisecond
	MaxRetryDelay     = 2 * time.Second
)

// CallFunc performs one attempt against backend b and returns either a
// result, a *RetryableError (router will retry per NumRetries/backoff), or
// any other error (treated as fatal and surfaced immediately).
type CallFunc[T any] func(ctx context.Context, b *registry.Backend, attempt int) (T, error)

// Logger receives structured observability of retry/fallback decisions.
// cmd/llmrelay supplies a zap-backed implementation; nil is a valid no-op.
type Logger interface {
	RetryAttempt(backend string, attempt int, reason string, delay time.Duration)
	FallbackToNext(from, to string, reason string)
}

// Router drives the fallback chain for one logical request.
type Router struct {
	registry   *registry.Registry
	numRetries int
	logger     Logger
}

// Options configures a Router.
type Options struct {
	// NumRetries is how many attempts are made against a single backend
	// before falling through to the next in its chain. Values below 1 are
	// floored to 1, matching the original's `max(1, int(...))` guard.
	NumRetries int
	Logger     Logger
}

// New builds a Router over reg.
func New(reg *registry.Registry, opts Options) *Router {
	n := opts.NumRetries
	if n < 1 {
		n = 1
	}
	return &Router{registry: reg, numRetries: n, logger: opts.Logger}
}

// ErrAllBackendsExhausted is wrapped into the error returned once every
// backend in the chain has exhausted its retries.
type ErrAllBackendsExhausted struct {
	Primary string
	Last    error
}

func (e *ErrAllBackendsExhausted) Error() string {
	return fmt.Sprintf("router: all backends exhausted for %q: %v", e.Primary, e.Last)
}

func (e *ErrAllBackendsExhausted) Unwrap() error { return e.Last }

// Forward resolves primary's fallback chain and calls call against each
// backend in turn, retrying a retryable failure against the same backend
// up to NumRetries times (with exponential backoff) before moving on to
// the next backend in the chain. It returns the first non-retryable result
// (success or fatal error), or ErrAllBackendsExhausted if every backend in
// the chain is exhausted.
func Forward[T any](ctx context.Context, r *Router, primary string, call CallFunc[T]) (T, error) {
	var zero T
	chain, skipped := r.registry.ResolveFallbackChain(primary)
	for _, name := range skipped {
		if r.logger != nil {
			r.logger.FallbackToNext(primary, name, "unknown backend, skipped")
		}
	}
	if len(chain) == 0 {
		return zero, fmt.Errorf("router: no backends resolved for %q", primary)
	}

	var lastErr error
	for i, backend := range chain {
		result, err := callWithRetries(ctx, r, backend, call)
		if err == nil {
			return result, nil
		}
		var retryable *RetryableError
		if !asRetryable(err, &retryable) {
			return zero, err
		}
		lastErr = retryable
		if i+1 < len(chain) && r.logger != nil {
			r.logger.FallbackToNext(backend.Name, chain[i+1].Name, retryable.Reason)
		}
	}
	return zero, &ErrAllBackendsExhausted{Primary: primary, Last: lastErr}
}

func asRetryable(err error, target **RetryableError) bool {
	for err != nil {
		if re, ok := err.(*RetryableError); ok {
			*target = re
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// callWithRetries retries a single backend up to r.numRetries times,
// sleeping an exponentially increasing delay between attempts (capped at
// MaxRetryDelay), and returns the last error once the budget is exhausted.
func callWithRetries[T any](ctx context.Context, r *Router, backend *registry.Backend, call CallFunc[T]) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < r.numRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			if r.logger != nil {
				var reason string
				if re, ok := lastErr.(*RetryableError); ok {
					reason = re.Reason
				}
				r.logger.RetryAttempt(backend.Name, attempt, reason, delay)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
		result, err := call(ctx, backend, attempt)
		if err == nil {
			return result, nil
		}
		if _, ok := err.(*RetryableError); !ok {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

// backoffDelay returns the delay before the given retry attempt (1-based:
// attempt 1 is the first retry), doubling from DefaultRetryDelay and
// capping at MaxRetryDelay.
func backoffDelay(attempt int) time.Duration {
	mult := math.Pow(2, float64(attempt-1))
	d := time.Duration(float64(DefaultRetryDelay) * mult)
	if d > MaxRetryDelay {
		d = MaxRetryDelay
	}
	return d
}
