package app

import "strings"

// splitPipe splits "a | b | c" into trimmed, non-empty segments on "|".
func splitPipe(s string) []string {
	raw := strings.Split(s, "|")
	out := make([]string, 0, len(raw))
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitFields splits s on whitespace into trimmed, non-empty tokens.
func splitFields(s string) []string {
	return strings.Fields(s)
}
