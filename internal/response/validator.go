package response

import "strings"

// IsValid reports whether cleaned text is usable as an answer: anything but
// an empty or all-whitespace string.
func IsValid(cleaned string) bool {
	return strings.TrimSpace(cleaned) != ""
}
