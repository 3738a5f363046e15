package classify

import "strings"

// ExtractObject returns the smallest balanced-brace substring of raw that
// contains the given JSON key, or "" when no such substring exists. Vision
// models tend to wrap their JSON in markdown fences or prose; this recovers
// the object without re-asking the oracle.
func ExtractObject(raw, key string) string {
	needle := `"` + key + `"`
	best := ""

	var stack []int
	for i, r := range raw {
		switch r {
		case '{':
			stack = append(stack, i)
		case '}':
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			candidate := raw[start : i+1]
			if !strings.Contains(candidate, needle) {
				continue
			}
			if best == "" || len(candidate) < len(best) {
				best = candidate
			}
		}
	}
	return best
}
