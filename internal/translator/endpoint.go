// Package translator is the seam the core consumes for the out-of-scope
// Responses-API <-> Chat-Completions and cross-dialect translations
// (spec.md §1's explicit external-collaborator boundary): a pass-through
// Translator is wired by default, and a real implementation can be plugged
// in without internal/httpapi or internal/router changing.
package translator

import "strings"

// EndpointType is which OpenAI-dialect surface a model requires.
type EndpointType int

const (
	EndpointChatCompletions EndpointType = iota
	EndpointResponses
)

func (e EndpointType) String() string {
	if e == EndpointResponses {
		return "responses"
	}
	return "chat_completions"
}

// responsesOnlyModelPrefixes lists model name prefixes that only exist
// behind /v1/responses; internal/httpapi rejects a request naming one on
// /v1/chat/completions with a 400.
var responsesOnlyModelPrefixes = []string{
	"gpt-5",
	"codex",
}

// GetEndpointType determines which API surface model requires, after
// stripping any "<provider>/" prefix.
func GetEndpointType(model string) EndpointType {
	m := strings.ToLower(model)
	if idx := strings.Index(m, "/"); idx != -1 {
		m = m[idx+1:]
	}
	for _, prefix := range responsesOnlyModelPrefixes {
		if strings.HasPrefix(m, prefix) {
			return EndpointResponses
		}
	}
	return EndpointChatCompletions
}

// RequiresResponsesAPI reports whether model only exists behind
// /v1/responses.
func RequiresResponsesAPI(model string) bool {
	return GetEndpointType(model) == EndpointResponses
}
