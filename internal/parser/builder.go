package parser

// BuildOptions describes one pipeline's configuration, as decoded from the
// proxy_settings.parsers (or a per-backend modules.upstream) section of the
// config snapshot (spec.md §6.1).
type BuildOptions struct {
	// Parsers lists the enabled parser names, in the order given by config.
	// Build reorders parse_tags ahead of reasoning_swap if both are present,
	// per spec.md §4.3's ordering rule, and reports the reorder through its
	// onReorder callback.
	Parsers           []string
	ParseTagsK2       bool
	ReasoningSwapMode SwapMode
	Paths             []string
}

// Build constructs a Pipeline from opts. onReorder, if non-nil, is called
// when the configured order had to be corrected.
func Build(opts BuildOptions, onReorder func(string)) *Pipeline {
	names := append([]string(nil), opts.Parsers...)

	hasParseTags, hasSwap := false, false
	for _, n := range names {
		switch n {
		case "parse_tags":
			hasParseTags = true
		case "reasoning_swap":
			hasSwap = true
		}
	}
	if hasParseTags && hasSwap {
		orderedCorrectly := false
		for _, n := range names {
			if n == "parse_tags" {
				orderedCorrectly = true
				break
			}
			if n == "reasoning_swap" {
				break
			}
		}
		if !orderedCorrectly {
			if onReorder != nil {
				onReorder("parse_tags must run before reasoning_swap; reordering")
			}
			reordered := make([]string, 0, len(names))
			reordered = append(reordered, "parse_tags")
			for _, n := range names {
				if n != "parse_tags" {
					reordered = append(reordered, n)
				}
			}
			names = reordered
		}
	}

	mode := opts.ReasoningSwapMode
	if mode == "" {
		mode = Auto
	}

	var parsers []Parser
	for _, n := range names {
		switch n {
		case "parse_tags":
			parsers = append(parsers, ParseTags{K2: opts.ParseTagsK2})
		case "reasoning_swap":
			parsers = append(parsers, ReasoningSwap{Mode: mode})
		}
	}

	p := New(parsers...)
	p.paths = opts.Paths
	return p
}
