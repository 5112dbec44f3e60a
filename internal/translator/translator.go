package translator

import "github.com/llmrelay/llmrelay/internal/jsonval"

// Translator converts a request/response body between two wire dialects.
// RequestOut and ResponseIn are named from the proxy's point of view: the
// core calls RequestOut when an Anthropic-dialect /v1/messages body is
// routed to a backend of another dialect. The core never calls
// ResponseIn; the upstream response is relayed without translation.
type Translator interface {
	// RequestOut rewrites an inbound request body from fromDialect into
	// toDialect.
	RequestOut(body jsonval.Value, fromDialect, toDialect string) (jsonval.Value, error)
	// ResponseIn rewrites an upstream response body from fromDialect back
	// into toDialect.
	ResponseIn(body jsonval.Value, fromDialect, toDialect string) (jsonval.Value, error)
}

// PassThrough is the default Translator: it never rewrites anything,
// appropriate whenever the client's dialect already matches the backend's
// (the common case — spec.md §1 treats the general-purpose translator as
// an external collaborator the core only needs a seam for).
type PassThrough struct{}

func (PassThrough) RequestOut(body jsonval.Value, fromDialect, toDialect string) (jsonval.Value, error) {
	return body, nil
}

func (PassThrough) ResponseIn(body jsonval.Value, fromDialect, toDialect string) (jsonval.Value, error) {
	return body, nil
}
