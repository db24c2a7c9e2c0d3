package services

import (
	"context"
	"strings"
)

// ensureContext lets exported entry points accept a nil context.
func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// normaliseIDs trims ids and drops blanks and repeats, keeping first-seen order. It
// returns nil when nothing is left.
func normaliseIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var unique []string
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}

// orDefault returns fallback when value is blank.
func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
