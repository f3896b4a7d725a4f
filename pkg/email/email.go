// Package email holds helpers for contact addresses supplied by the account
// service.
package email

import (
	"strings"
	"unicode"
)

// DisplayName derives a readable name from the local part of an address,
// e.g. "rahim.uddin+bd@example.com" becomes "Rahim Uddin". It returns "" when
// nothing usable is left.
func DisplayName(address string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(address), "@")
	local, _, _ = strings.Cut(local, "+")

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || unicode.IsDigit(r)
	})
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
