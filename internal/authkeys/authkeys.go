// Package authkeys validates client-supplied API keys against the
// configured app_keys list and extracts them from inbound requests,
// adapted from the teacher's single-key auth middleware into a multi-key
// validator whose accepted keys double as concurrency-manager identities
// (spec.md §5, §6.1).
package authkeys

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Key is one configured app key, with the per-key concurrency settings the
// concurrency manager applies once a request authenticates with it.
type Key struct {
	Value    string
	Limit    int
	Priority int
}

// Store holds the set of accepted keys. Lookup is constant-time per
// candidate so authentication timing does not leak which prefix of a key
// matched.
type Store struct {
	keys    map[string]Key
	enabled bool
}

// New builds a Store. An empty keys slice disables authentication
// entirely, matching the teacher's AuthConfig.Enabled flag.
func New(keys []Key) *Store {
	s := &Store{keys: map[string]Key{}, enabled: len(keys) > 0}
	for _, k := range keys {
		s.keys[k.Value] = k
	}
	return s
}

// Enabled reports whether any keys are configured.
func (s *Store) Enabled() bool { return s.enabled }

// Validate checks candidate against every configured key using a
// constant-time comparison per candidate (the set is small enough that
// this does not leak meaningful timing information via which key it
// checked first). Returns the matched Key and true on success.
func (s *Store) Validate(candidate string) (Key, bool) {
	if candidate == "" {
		return Key{}, false
	}
	for _, k := range s.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(k.Value)) == 1 {
			return k, true
		}
	}
	return Key{}, false
}

// ExtractAPIKey reads the client's API key from x-api-key first, then
// Authorization (Bearer or raw), matching the teacher's extraction order.
func ExtractAPIKey(r *http.Request) string {
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return rest
	}
	return auth
}

// AnonymousPaths are never gated behind authentication even when a Store
// has keys configured: health/readiness probes and the root landing page.
var AnonymousPaths = map[string]bool{
	"/":       true,
	"/health": true,
}

// Middleware wraps next with key validation. Unauthenticated requests on a
// non-anonymous path get a 401 in the Anthropic error envelope shape, same
// as the teacher. When a key validates, the resolved Key is stashed on the
// request context for downstream concurrency/accounting use.
func Middleware(store *Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !store.Enabled() || AnonymousPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			candidate := ExtractAPIKey(r)
			if candidate == "" {
				writeAuthError(w, "Missing API key. Provide via x-api-key header or Authorization: Bearer <key>")
				return
			}
			key, ok := store.Validate(candidate)
			if !ok {
				writeAuthError(w, "Invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(withKey(r.Context(), key)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type": "error",
		"error": map[string]string{
			"type":    "authentication_error",
			"message": message,
		},
	})
}
