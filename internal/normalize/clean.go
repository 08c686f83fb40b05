package normalize

import (
	"regexp"
	"strings"
)

var (
	fenceRe = regexp.MustCompile("```[A-Za-z0-9_+-]*")

	// Boilerplate some models put in front of the answer.
	leadingMarkerRe = regexp.MustCompile(`(?is)^\s*(?:<s>|</s>|\[/?INST\]|<\|assistant\|>|###\s*(?:response|answer|output|assistant)\s*:?|(?:response|answer|output|assistant|json)\s*:)`)
)

const instEnd = "[/INST]"

// Clean strips code fences and leading response markers.
func Clean(s string) string {
	s = fenceRe.ReplaceAllString(s, "")
	if i := strings.LastIndex(s, instEnd); i >= 0 {
		s = s[i+len(instEnd):]
	}
	for {
		loc := leadingMarkerRe.FindStringIndex(s)
		if loc == nil {
			break
		}
		s = s[loc[1]:]
	}
	return strings.TrimSpace(s)
}

// braceSpan returns the text from the first '{' to the last '}'.
func braceSpan(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
