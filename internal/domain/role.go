package domain

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// FoldRole normalizes a role identifier for lookup and storage.
// Full Unicode case folding is used so "Finance", "FINANCE" and "finance" are one role.
func FoldRole(role string) string {
	// Caser is stateful and must not be shared between goroutines.
	return cases.Fold().String(strings.TrimSpace(role))
}

// FoldRoles folds, de-duplicates and sorts a role list. Empty entries are dropped.
func FoldRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		folded := FoldRole(r)
		if folded == "" {
			continue
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, folded)
	}
	slices.Sort(out)
	return out
}
