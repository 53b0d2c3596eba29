package ratelimit

import "strings"

// Match returns the rule for a request, or nil when none applies.
// Exact paths win over prefixes; /health is never limited.
func Match(path, method string, rules []Rule) *Rule {
	if path == "/health" {
		return &Rule{}
	}
	for i := range rules {
		if rules[i].Method == method && rules[i].Path == path {
			return &rules[i]
		}
	}
	var best *Rule
	for i := range rules {
		r := &rules[i]
		if r.Method != method || !strings.HasSuffix(r.Path, "/") || !strings.HasPrefix(path, r.Path) {
			continue
		}
		if best == nil || len(r.Path) > len(best.Path) {
			best = r
		}
	}
	return best
}
