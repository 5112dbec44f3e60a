// Package parser implements the ordered, composable chain of response
// transforms described in spec.md §4.3: ParseTags extracts <think> reasoning
// and <tool_call> invocations embedded in raw assistant content; ReasoningSwap
// moves reasoning between a parallel field and inline <think> markers. Both
// apply identically to a single buffered JSON response and to a live SSE
// event stream, which is what lets stream/non-stream parity (spec.md P7)
// hold.
package parser

// Context is the per-request, immutable data a parser may use to decide
// whether/how it applies. Only pipelines whose configured path substrings
// match ctx.Path run at all; that filtering happens one level up, in the
// caller, through Pipeline.Applies (pipeline.go).
type Context struct {
	Path        string
	ModelName   string
	BackendName string
	IsStream    bool
}
