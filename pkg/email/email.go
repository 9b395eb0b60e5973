// Package email centralizes the email normalization rule: comparison is
// case-insensitive and trimmed everywhere, so every store key and snapshot
// goes through Normalize first.
package email

import "strings"

// Normalize lowercases and trims an email address. The normalized form is
// the canonical store key; raw input never reaches a store.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Equal compares two addresses under the normalization rule.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
