package context

import (
	"strings"

	"expensechat/internal/domain"
)

// messageOverhead approximates the tokens a chat message costs beyond its
// text (role marker and separators).
const messageOverhead = 4

// MessageText returns the text of a Message that counts toward the window:
// its content plus, for assistant tool turns, each call's name and arguments.
func MessageText(msg domain.Message) string {
	if len(msg.ToolCalls) == 0 {
		return msg.Content
	}
	parts := make([]string, 0, len(msg.ToolCalls)+1)
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	for _, call := range msg.ToolCalls {
		parts = append(parts, call.Name+" "+string(call.Arguments))
	}
	return strings.Join(parts, "\n")
}
