// Package prompt composes the chat-turn text handed to the model executable.
package prompt

import (
	"fmt"
	"strings"
)

// Turn prefixes. The stop detector and the response cleaner key off these
// literals, so they must match what Build emits.
const (
	UserPrefix      = "User:"
	AssistantPrefix = "Assistant:"
)

// Build frames message as a single user turn followed by an open assistant
// turn, optionally preceded by a preprompt block.
func Build(message, preprompt string) string {
	if strings.TrimSpace(preprompt) != "" {
		return fmt.Sprintf("%s\n\n%s %s\n%s", preprompt, UserPrefix, message, AssistantPrefix)
	}
	return fmt.Sprintf("%s %s\n%s", UserPrefix, message, AssistantPrefix)
}
