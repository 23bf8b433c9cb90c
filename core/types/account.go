package types

import "strings"

const maxAccountNameLength = 12

// ValidAccountName reports whether name is a well-formed account name: 1-12
// characters drawn from a-z, 1-5 and '.', not ending in '.'.
func ValidAccountName(name string) bool {
	if len(name) == 0 || len(name) > maxAccountNameLength || strings.HasSuffix(name, ".") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '1' && r <= '5':
		case r == '.':
		default:
			return false
		}
	}
	return true
}

// NormalizeAccountName trims surrounding whitespace and lower-cases name.
func NormalizeAccountName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
