// Package strings provides small string-slice utilities.
package strings

import "strings"

// DedupeAndTrim trims whitespace, drops empties, and keeps the first
// occurrence of each value. Input order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := values[:0:0]
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
