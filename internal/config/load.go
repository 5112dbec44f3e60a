package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envTokenRe matches ${VAR} and ${VAR:-default} inside a YAML string
// scalar, expanded against the process environment before decode — the
// nested-document generalization of the teacher's os.Getenv-per-field
// style.
var envTokenRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv substitutes every ${VAR} / ${VAR:-default} token in raw against
// the current process environment. A variable with no default that is
// unset in the environment expands to the empty string, matching typical
// shell semantics.
func ExpandEnv(raw []byte) []byte {
	return envTokenRe.ReplaceAllFunc(raw, func(tok []byte) []byte {
		m := envTokenRe.FindSubmatch(tok)
		name := string(m[1])
		def := string(m[3])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return []byte(def)
	})
}

// Load reads, env-expands, and decodes the YAML document at path into a
// Snapshot.
func Load(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse env-expands and decodes raw YAML bytes into a Snapshot.
func Parse(raw []byte) (*Snapshot, error) {
	expanded := ExpandEnv(raw)
	var snap Snapshot
	if err := yaml.Unmarshal(expanded, &snap); err != nil {
		return nil, fmt.Errorf("config: decoding yaml: %w", err)
	}
	return &snap, nil
}

// ConfigPath resolves the document path: an explicit flag value wins, else
// LLMRELAY_CONFIG, else the default.
func ConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("LLMRELAY_CONFIG"); v != "" {
		return v
	}
	return "./config.yaml"
}

// ResolveInheritance applies model_list[].extends by shallow-merging each
// entry's zero-valued fields from the named parent, in list order, so an
// entry may appear before or after its parent. This is an optional
// pre-pass; spec.md explicitly leaves inheritance resolution external, so
// internal/router and internal/registry never call this themselves. Load
// and Parse do not call it either, and neither does cmd/llmrelay, so a
// loaded snapshot still carries its extends fields unresolved.
func ResolveInheritance(entries []ModelEntry) ([]ModelEntry, error) {
	byName := make(map[string]ModelEntry, len(entries))
	for _, e := range entries {
		byName[e.ModelName] = e
	}
	resolved := make([]ModelEntry, len(entries))
	seen := map[string]bool{}
	var resolve func(name string) (ModelEntry, error)
	resolve = func(name string) (ModelEntry, error) {
		e, ok := byName[name]
		if !ok {
			return ModelEntry{}, fmt.Errorf("config: extends references unknown model %q", name)
		}
		if e.Extends == "" {
			return e, nil
		}
		if seen[name] {
			return ModelEntry{}, fmt.Errorf("config: extends cycle detected at %q", name)
		}
		seen[name] = true
		parent, err := resolve(e.Extends)
		if err != nil {
			return ModelEntry{}, err
		}
		return mergeEntry(parent, e), nil
	}
	for i, e := range entries {
		seen = map[string]bool{}
		r, err := resolve(e.ModelName)
		if err != nil {
			return nil, err
		}
		resolved[i] = r
	}
	return resolved, nil
}

// mergeEntry fills these zero-valued fields of child from parent: api_base,
// api_key, api_type, model, request_timeout, parameters, parsers and
// access_control. Other fields (target_model, forward_model,
// anthropic_version, the boolean flags, modules) are not inherited. Child's
// own values always win.
func mergeEntry(parent, child ModelEntry) ModelEntry {
	out := child
	if out.ModelParams.APIBase == "" {
		out.ModelParams.APIBase = parent.ModelParams.APIBase
	}
	if out.ModelParams.APIKey == "" {
		out.ModelParams.APIKey = parent.ModelParams.APIKey
	}
	if out.ModelParams.APIType == "" {
		out.ModelParams.APIType = parent.ModelParams.APIType
	}
	if out.ModelParams.Model == "" {
		out.ModelParams.Model = parent.ModelParams.Model
	}
	if out.ModelParams.RequestTimeout == 0 {
		out.ModelParams.RequestTimeout = parent.ModelParams.RequestTimeout
	}
	if out.Parameters == nil {
		out.Parameters = parent.Parameters
	}
	if out.Parsers == nil {
		out.Parsers = parent.Parsers
	}
	if out.AccessControl == nil {
		out.AccessControl = parent.AccessControl
	}
	return out
}

func normalizeModelName(name string) string {
	return strings.TrimSpace(name)
}
