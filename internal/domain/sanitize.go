package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxTextLen = 500

// SanitizeText cleans free-text input (names, address lines, notes) before
// it is embedded in persisted records: control characters are removed and
// the result is trimmed and length-capped.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if len(out) > maxTextLen {
		// Cut on a rune boundary so the stored text stays valid UTF-8.
		cut := maxTextLen
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}

// SanitizeAddress returns a copy with every free-text field cleaned.
func SanitizeAddress(a Address) Address {
	a.Name = SanitizeText(a.Name)
	a.Line1 = SanitizeText(a.Line1)
	a.Line2 = SanitizeText(a.Line2)
	a.City = SanitizeText(a.City)
	a.State = SanitizeText(a.State)
	a.PostalCode = SanitizeText(a.PostalCode)
	a.Country = SanitizeText(a.Country)
	a.Phone = SanitizeText(a.Phone)
	return a
}

// NormalizeGiftCardCode canonicalizes a user-entered code. Codes are
// case-insensitive and surrounding whitespace is never significant.
func NormalizeGiftCardCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
