package fal

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"short body kept", "small error", "small error"},
		{"whitespace trimmed", "  padded  ", "padded"},
		{"ascii cut at limit", strings.Repeat("a", 600), strings.Repeat("a", 512) + "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateBody([]byte(tt.body)); got != tt.want {
				t.Errorf("truncateBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateBodyKeepsRuneBoundary(t *testing.T) {
	// 510 ascii bytes followed by a 3-byte rune straddling the 512-byte cut.
	body := strings.Repeat("a", 510) + "世界"
	got := truncateBody([]byte(body))
	if !utf8.ValidString(got) {
		t.Fatalf("truncateBody() produced invalid UTF-8: %q", got[500:])
	}
	if want := strings.Repeat("a", 510) + "…"; got != want {
		t.Errorf("truncateBody() = %q…, want cut before the split rune", got[505:])
	}
}
