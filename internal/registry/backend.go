// Package registry holds the live set of configured backends and the
// fallback chains between them, with copy-on-write reload semantics so a
// config change never mutates a Backend a request is mid-flight against
// (spec.md §3, §6.1).
package registry

// ParameterConfig is one overridable request parameter, e.g. temperature or
// max_tokens. AllowOverride mirrors the original's allow_override flag: when
// false, Default always wins regardless of what the client sent.
type ParameterConfig struct {
	Default       any
	AllowOverride bool
}

// APIType names the wire dialect a backend speaks.
type APIType string

const (
	APITypeOpenAI    APIType = "openai"
	APITypeAnthropic APIType = "anthropic"
)

// Backend is one configured upstream target.
type Backend struct {
	Name                string
	BaseURL             string
	APIKey              string
	APIType             APIType
	TargetModel         string
	AnthropicVersion    string
	SupportsReasoning   bool
	SupportsResponsesAPI bool
	HTTP2               bool
	Editable            bool
	Timeout             float64 // seconds; zero means caller default
	Parameters          map[string]ParameterConfig
	Fallbacks           []string
}

// snapshot is an immutable view of the registry's configured backends. A
// Registry swaps its snapshot pointer atomically on Reload, so in-flight
// requests keep using the snapshot they started with even if the config
// reloads mid-request.
type snapshot struct {
	backends map[string]*Backend
	order    []string // insertion order, for deterministic listing
}
