package d1

import "strings"

// isRowReturning reports whether a statement produces a result set. This is
// the textual heuristic the provider contract is tied to: trimmed, upper-cased
// text starting with SELECT, PRAGMA or WITH, or containing RETURNING anywhere
// (so INSERT ... RETURNING counts). Deliberately not a parser; downstream
// description population depends on this exact rule.
func isRowReturning(query string) bool {
	upper := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range [...]string{"SELECT", "PRAGMA", "WITH"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return strings.Contains(upper, "RETURNING")
}

// startsWithSelect gates the zero-row column-recovery fallback. Only plain
// SELECTs may be re-issued; anything else risks double-executing a mutation.
func startsWithSelect(query string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT")
}
