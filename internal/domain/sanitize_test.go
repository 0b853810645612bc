package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Pat Doe", "Pat Doe"},
		{"trims whitespace", "  1 Main St  ", "1 Main St"},
		{"strips control chars", "Pat\x00 Doe\r\n", "Pat Doe"},
		{"strips escape sequences", "note\x1b[2Jherer", "note[2Jherer"},
		{"caps length", strings.Repeat("a", 600), strings.Repeat("a", 500)},
		{"caps length on rune boundary", strings.Repeat("a", 499) + "日本", strings.Repeat("a", 499)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeText(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestNormalizeGiftCardCode(t *testing.T) {
	assert.Equal(t, "GC25", NormalizeGiftCardCode(" gc25 "))
	assert.Equal(t, "", NormalizeGiftCardCode("   "))
}
