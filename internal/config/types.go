// Package config loads the YAML configuration document into a snapshot of
// typed structs (spec.md §6.1), generalizing the teacher's flat env-var
// configuration style to a nested document while keeping its env-first
// philosophy: every string scalar is run through ${VAR} expansion before
// the document is decoded.
package config

// ModelParams is model_list[].model_params.
type ModelParams struct {
	APIBase           string `yaml:"api_base"`
	APIKey            string `yaml:"api_key"`
	RequestTimeout    float64 `yaml:"request_timeout"`
	Model             string `yaml:"model"`
	TargetModel       string `yaml:"target_model"`
	ForwardModel      string `yaml:"forward_model"`
	APIType           string `yaml:"api_type"`
	AnthropicVersion  string `yaml:"anthropic_version"`
	SupportsReasoning bool   `yaml:"supports_reasoning"`
	SupportsResponses bool   `yaml:"supports_responses_api"`
	HTTP2             bool   `yaml:"http2"`
}

// ParameterOverride is one entry of model_list[].parameters.
type ParameterOverride struct {
	Default       any  `yaml:"default"`
	AllowOverride bool `yaml:"allow_override"`
}

// ParserSettings is the shape shared by proxy_settings.parsers and a
// backend-local parsers/modules.upstream block.
type ParserSettings struct {
	Enabled  bool              `yaml:"enabled"`
	Response []string          `yaml:"response"`
	Paths    []string          `yaml:"paths"`
	ParseTags struct {
		K2 bool `yaml:"k2"`
	} `yaml:"parse_tags"`
	ReasoningSwap struct {
		Mode string `yaml:"mode"`
	} `yaml:"reasoning_swap"`
}

// AccessControl is model_list[].access_control.
type AccessControl struct {
	AllowedKeys any `yaml:"allowed_keys"` // "all" | "none" | []string
}

// Modules is model_list[].modules.
type Modules struct {
	Downstream map[string]any `yaml:"downstream"`
	Upstream   *ParserSettings `yaml:"upstream"`
}

// ModelEntry is one model_list[] record.
type ModelEntry struct {
	ModelName     string             `yaml:"model_name"`
	ModelParams   ModelParams        `yaml:"model_params"`
	Parameters    map[string]ParameterOverride `yaml:"parameters"`
	Parsers       *ParserSettings    `yaml:"parsers"`
	Modules       *Modules           `yaml:"modules"`
	AccessControl *AccessControl     `yaml:"access_control"`
	Extends       string             `yaml:"extends"`
}

// RouterSettings is router_settings.
type RouterSettings struct {
	NumRetries int              `yaml:"num_retries"`
	Fallbacks  []map[string][]string `yaml:"fallbacks"`
}

// ProxySettings is proxy_settings.
type ProxySettings struct {
	Parsers ParserSettings `yaml:"parsers"`
	Logging LoggingSettings `yaml:"logging"`
}

// LoggingSettings is proxy_settings.logging, supplemented from
// original_source/'s log_parsed_response/log_parsed_stream toggle.
type LoggingSettings struct {
	LogParsedResponse bool `yaml:"log_parsed_response"`
	LogParsedStream   bool `yaml:"log_parsed_stream"`
}

// AppKeyEntry is one app_keys.keys[] record.
type AppKeyEntry struct {
	KeyID    string `yaml:"key_id"`
	Secret   string `yaml:"secret"`
	Enabled  bool   `yaml:"enabled"`
	Limit    int    `yaml:"limit"`
	Priority int    `yaml:"priority"`
}

// AppKeysSettings is app_keys, consumed only by internal/authkeys.
type AppKeysSettings struct {
	Enabled              bool          `yaml:"enabled"`
	HeaderName           string        `yaml:"header_name"`
	AllowUnauthenticated bool          `yaml:"allow_unauthenticated"`
	Keys                 []AppKeyEntry `yaml:"keys"`
	Defaults             *AppKeyEntry  `yaml:"defaults"`
	Unauthenticated      *AppKeyEntry  `yaml:"unauthenticated"`
}

// Snapshot is the fully decoded configuration document.
type Snapshot struct {
	ModelList      []ModelEntry    `yaml:"model_list"`
	RouterSettings RouterSettings  `yaml:"router_settings"`
	ProxySettings  ProxySettings   `yaml:"proxy_settings"`
	AppKeys        AppKeysSettings `yaml:"app_keys"`
}
