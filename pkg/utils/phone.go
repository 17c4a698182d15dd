package utils

import "strings"

// DigitsOnly strips every non-digit character from a phone number.
// "+1 (555) 123-4567" becomes "15551234567".
func DigitsOnly(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
