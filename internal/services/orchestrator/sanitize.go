package orchestrator

import (
	"regexp"
	"strings"
)

// leakMarkers are substrings that indicate the model degraded into
// describing its own retrieval machinery instead of answering. Any
// sentence containing one is stripped before the reply reaches the
// customer.
var leakMarkers = []string{
	"vector store",
	"search returned no results",
	"no files found",
	"no relevant documents",
	"knowledge base returned",
	"retrieval failed",
	"file_search",
	"tool output",
}

// stackFramePattern matches stack-trace-looking lines, e.g.
// "at handler (server.js:42)" or "goroutine 17 [running]".
var stackFramePattern = regexp.MustCompile(`(?im)(^\s+at .+\(.+:\d+\)|goroutine \d+ \[|Traceback \(most recent)`)

// timestampPattern matches leaked log-style timestamps such as
// "2026-08-23T10:00:00Z" at a sentence boundary.
var timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`)

// sentenceSplitter breaks on sentence enders followed by whitespace.
var sentenceSplitter = regexp.MustCompile(`(?s)[^.!?\n]+[.!?\n]*`)

// Sanitize strips sentences that leak internal error strings or
// retrieval jargon. Returns the cleaned text and whether anything was
// removed. An empty result after cleaning means the whole generation
// was machinery noise and the attempt must be treated as failed.
func Sanitize(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	stripped := false

	// Stack frames are line-oriented and carry dots in file names, which
	// would split them mid-frame below. Drop those lines first.
	if stackFramePattern.MatchString(text) {
		var kept []string
		for _, line := range strings.Split(text, "\n") {
			if stackFramePattern.MatchString(line) {
				stripped = true
				continue
			}
			kept = append(kept, line)
		}
		text = strings.Join(kept, "\n")
	}

	var b strings.Builder
	for _, sentence := range sentenceSplitter.FindAllString(text, -1) {
		if leaksInternals(sentence) {
			stripped = true
			continue
		}
		b.WriteString(sentence)
	}

	return strings.TrimSpace(b.String()), stripped
}

// leaksInternals reports whether a sentence contains a leak marker,
// stack frame, or raw timestamp.
func leaksInternals(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, marker := range leakMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if stackFramePattern.MatchString(sentence) {
		return true
	}
	return timestampPattern.MatchString(sentence)
}
