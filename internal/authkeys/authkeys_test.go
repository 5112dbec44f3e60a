package authkeys

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStore_DisabledWhenNoKeysConfigured(t *testing.T) {
	s := New(nil)
	if s.Enabled() {
		t.Fatal("expected disabled store")
	}
}

func TestStore_ValidateAcceptsConfiguredKey(t *testing.T) {
	s := New([]Key{{Value: "sk-test-1", Limit: 5}})
	k, ok := s.Validate("sk-test-1")
	if !ok || k.Limit != 5 {
		t.Fatalf("expected matched key, got %+v ok=%v", k, ok)
	}
}

func TestStore_ValidateRejectsUnknownKey(t *testing.T) {
	s := New([]Key{{Value: "sk-test-1"}})
	if _, ok := s.Validate("sk-other"); ok {
		t.Fatal("expected rejection")
	}
}

func TestExtractAPIKey_PrefersXAPIKeyHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("x-api-key", "from-x-api-key")
	r.Header.Set("Authorization", "Bearer from-auth")
	if got := ExtractAPIKey(r); got != "from-x-api-key" {
		t.Fatalf("expected x-api-key preferred, got %q", got)
	}
}

func TestExtractAPIKey_FallsBackToBearerThenRaw(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc")
	if got := ExtractAPIKey(r); got != "abc" {
		t.Fatalf("expected bearer token, got %q", got)
	}

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("Authorization", "raw-key")
	if got := ExtractAPIKey(r2); got != "raw-key" {
		t.Fatalf("expected raw header value, got %q", got)
	}
}

func TestMiddleware_RejectsMissingKeyWhenEnabled(t *testing.T) {
	store := New([]Key{{Value: "sk-good"}})
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_AllowsAnonymousHealthPath(t *testing.T) {
	store := New([]Key{{Value: "sk-good"}})
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for anonymous health path, got %d", rec.Code)
	}
}

func TestMiddleware_AcceptsValidKeyAndStashesItInContext(t *testing.T) {
	store := New([]Key{{Value: "sk-good", Priority: 2}})
	var seen Key
	var ok bool
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, ok = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.Header.Set("x-api-key", "sk-good")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !ok || seen.Priority != 2 {
		t.Fatalf("expected key stashed in context, got %+v ok=%v", seen, ok)
	}
}
