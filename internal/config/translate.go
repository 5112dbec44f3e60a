package config

import (
	"github.com/llmrelay/llmrelay/internal/authkeys"
	"github.com/llmrelay/llmrelay/internal/parser"
	"github.com/llmrelay/llmrelay/internal/registry"
)

// Backends converts a Snapshot's model_list into registry.Backend values.
// fallbacks, as resolved from router_settings.fallbacks, are attached to
// the matching backend by name.
func (s *Snapshot) Backends() []*registry.Backend {
	fallbacks := s.fallbackMap()
	out := make([]*registry.Backend, 0, len(s.ModelList))
	for _, e := range s.ModelList {
		name := normalizeModelName(e.ModelName)
		apiType := registry.APITypeOpenAI
		if e.ModelParams.APIType == string(registry.APITypeAnthropic) {
			apiType = registry.APITypeAnthropic
		}
		params := make(map[string]registry.ParameterConfig, len(e.Parameters))
		for k, v := range e.Parameters {
			params[k] = registry.ParameterConfig{Default: v.Default, AllowOverride: v.AllowOverride}
		}
		target := e.ModelParams.TargetModel
		if target == "" {
			target = e.ModelParams.ForwardModel
		}
		if target == "" {
			target = e.ModelParams.Model
		}
		out = append(out, &registry.Backend{
			Name:                 name,
			BaseURL:              e.ModelParams.APIBase,
			APIKey:               e.ModelParams.APIKey,
			APIType:              apiType,
			TargetModel:          target,
			AnthropicVersion:     e.ModelParams.AnthropicVersion,
			SupportsReasoning:    e.ModelParams.SupportsReasoning,
			SupportsResponsesAPI: e.ModelParams.SupportsResponses,
			HTTP2:                e.ModelParams.HTTP2,
			Editable:             true,
			Timeout:              e.ModelParams.RequestTimeout,
			Parameters:           params,
			Fallbacks:            fallbacks[name],
		})
	}
	return out
}

func (s *Snapshot) fallbackMap() map[string][]string {
	out := map[string][]string{}
	for _, rule := range s.RouterSettings.Fallbacks {
		for primary, chain := range rule {
			out[primary] = append(out[primary], chain...)
		}
	}
	return out
}

// NumRetries returns router_settings.num_retries, floored to 1 per
// original_source/'s backend.py default (spec.md §6.1 states the default
// but not the floor; supplemented here).
func (s *Snapshot) NumRetries() int {
	if s.RouterSettings.NumRetries < 1 {
		return 1
	}
	return s.RouterSettings.NumRetries
}

// AuthKeys converts app_keys.keys into authkeys.Key values. Disabled
// entries are skipped.
func (s *Snapshot) AuthKeys() []authkeys.Key {
	out := make([]authkeys.Key, 0, len(s.AppKeys.Keys))
	for _, k := range s.AppKeys.Keys {
		if !k.Enabled {
			continue
		}
		out = append(out, authkeys.Key{Value: k.Secret, Limit: k.Limit, Priority: k.Priority})
	}
	return out
}

// ParserBuildOptions converts proxy_settings.parsers into
// parser.BuildOptions.
func (s *Snapshot) ParserBuildOptions() parser.BuildOptions {
	ps := s.ProxySettings.Parsers
	if !ps.Enabled {
		return parser.BuildOptions{}
	}
	mode := parser.Auto
	switch ps.ReasoningSwap.Mode {
	case string(parser.ReasoningToContent):
		mode = parser.ReasoningToContent
	case string(parser.ContentToReasoning):
		mode = parser.ContentToReasoning
	}
	return parser.BuildOptions{
		Parsers:           ps.Response,
		ParseTagsK2:       ps.ParseTags.K2,
		ReasoningSwapMode: mode,
		Paths:             ps.Paths,
	}
}
