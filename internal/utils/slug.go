package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxSlugLength = 50

// Slugify turns a display name into a URL-safe slug. Letters outside ASCII are
// kept, so "Județe 2024" becomes "județe-2024".
func Slugify(value string) string {
	value = norm.NFKC.String(value)

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(value) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			pendingDash = true
		}
	}

	slug := strings.Trim(b.String(), "-_")
	if runes := []rune(slug); len(runes) > maxSlugLength {
		slug = strings.Trim(string(runes[:maxSlugLength]), "-_")
	}
	return slug
}

// SnakeCase converts a CSV header such as "Customer Id" into "customer_id".
func SnakeCase(value string) string {
	value = norm.NFKC.String(strings.TrimSpace(value))

	var b strings.Builder
	prevLower := false
	pendingSep := false
	for _, r := range value {
		switch {
		case unicode.IsUpper(r):
			if (prevLower || pendingSep) && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
			pendingSep = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			prevLower = true
			pendingSep = false
		default:
			pendingSep = true
		}
	}
	return b.String()
}
