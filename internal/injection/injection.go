// Package injection flags chat messages that look like prompt-injection
// attempts against the ledger tools.
package injection

import (
	"strings"

	"expensechat/internal/domain"
)

// Default high-risk phrases (case-insensitive).
var defaultPatterns = []string{
	"ignore previous",
	"ignore all previous",
	"system prompt",
	"simulated mode",
	"developer mode",
	"user_id",
	"all users",
}

// ScanResult holds the result of a prompt-injection scan.
type ScanResult struct {
	Detected bool     // true if any high-risk pattern was found
	Patterns []string // matched phrases
}

// Scan checks text for high-risk prompt-injection phrases.
func Scan(text string) ScanResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return ScanResult{}
	}
	lower := strings.ToLower(text)
	var matched []string
	for _, p := range defaultPatterns {
		if strings.Contains(lower, p) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return ScanResult{}
	}
	return ScanResult{Detected: true, Patterns: matched}
}

// ScanMessage scans the text of a user message. Other roles are not scanned.
func ScanMessage(msg domain.Message) ScanResult {
	if msg.Role != domain.RoleUser {
		return ScanResult{}
	}
	return Scan(msg.Content)
}
