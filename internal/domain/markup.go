package domain

import (
	"regexp"
	"strings"
)

// Markers embedded in assistant text for client rendering. They are stripped
// before stored assistant turns are replayed into a model's context.
var markerSpans = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<think>.*?</think>`),
	regexp.MustCompile(`(?s)<citations>.*?</citations>`),
	regexp.MustCompile(`(?s)<tool_use>.*?</tool_use>`),
	regexp.MustCompile(`(?s)<tool_result>.*?</tool_result>`),
}

// NormalizeAssistantContent removes every rendering-only marker span from a
// stored assistant turn and trims surrounding whitespace, leaving the plain
// response text suitable as prior-turn model input.
func NormalizeAssistantContent(content string) string {
	for _, span := range markerSpans {
		content = span.ReplaceAllString(content, "")
	}
	return strings.TrimSpace(content)
}
