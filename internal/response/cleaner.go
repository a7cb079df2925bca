// Package response turns the raw output of a generation run into the text
// returned to callers: template delimiters, the start of the next prompt
// turn, looping repetitions and excess whitespace are removed.
package response

import (
	"regexp"
	"strings"
)

// TemplateDelimiters are chat-template tokens the model may echo verbatim.
var TemplateDelimiters = []string{
	"<|assistant|>",
	"<|user|>",
	"<|system|>",
	"<|end|>",
	"<|endoftext|>",
}

const (
	// MinRepeatLen is the shortest run collapsed by repetition suppression.
	MinRepeatLen = 10

	// MaxRepeatLen bounds the period searched for at each position.
	MaxRepeatLen = 1024
)

var (
	trailingPrompt    = regexp.MustCompile(`\n*>\s*$`)
	trailingUser      = regexp.MustCompile(`\nUser:[^\n]*$`)
	trailingAssistant = regexp.MustCompile(`\nAssistant:[^\n]*$`)

	manyNewlines   = regexp.MustCompile(`\n{3,}`)
	manyWhitespace = regexp.MustCompile(`\s{3,}`)
)

// Clean applies the cleaning pipeline to raw. Every step runs exactly once,
// in order; the whitespace steps rely on the earlier removals.
func Clean(raw string) string {
	s := StripDelimiters(raw)
	s = StripTrailingPrompt(s)
	s = CollapseRepeats(s)
	s = CollapseWhitespace(s)
	return strings.TrimSpace(s)
}

// StripDelimiters removes every TemplateDelimiters occurrence.
func StripDelimiters(s string) string {
	for _, d := range TemplateDelimiters {
		s = strings.ReplaceAll(s, d, "")
	}
	return s
}

// StripTrailingPrompt removes a trailing shell-style prompt and a trailing
// line that opens the next User or Assistant turn.
func StripTrailingPrompt(s string) string {
	s = trailingPrompt.ReplaceAllString(s, "")
	s = trailingUser.ReplaceAllString(s, "")
	s = trailingAssistant.ReplaceAllString(s, "")
	return s
}

// CollapseWhitespace reduces 3+ newlines to a blank line, then any remaining
// run of 3+ whitespace characters to a single space.
func CollapseWhitespace(s string) string {
	s = manyNewlines.ReplaceAllString(s, "\n\n")
	return manyWhitespace.ReplaceAllString(s, " ")
}

// CollapseRepeats replaces a run that is immediately repeated one or more
// times with a single copy. The text is scanned left to right; at each
// position the shortest period of at least MinRepeatLen characters that
// repeats is taken, and scanning resumes after the last repetition. Runs
// never span a newline.
func CollapseRepeats(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))

	lineEnd := 0
	for i := 0; i < len(runes); {
		if i >= lineEnd {
			lineEnd = i
			for lineEnd < len(runes) && runes[lineEnd] != '\n' {
				lineEnd++
			}
			if lineEnd == i {
				out = append(out, runes[i])
				i++
				continue
			}
		}

		p := shortestPeriod(runes[i:lineEnd])
		if p == 0 {
			out = append(out, runes[i])
			i++
			continue
		}

		out = append(out, runes[i:i+p]...)
		i += p
		for i+p <= lineEnd && equalRunes(runes[i:i+p], runes[i-p:i]) {
			i += p
		}
	}

	return string(out)
}

// shortestPeriod returns the smallest p >= MinRepeatLen such that line starts
// with two copies of its first p runes, or 0.
func shortestPeriod(line []rune) int {
	maxP := len(line) / 2
	if maxP > MaxRepeatLen {
		maxP = MaxRepeatLen
	}
	for p := MinRepeatLen; p <= maxP; p++ {
		if line[p] != line[0] {
			continue
		}
		if equalRunes(line[:p], line[p:2*p]) {
			return p
		}
	}
	return 0
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
