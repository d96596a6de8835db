package main

import (
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten chars!", 18, "exactly ten chars!"},
		{"a much longer title than fits", 10, "a much lo…"},
		// Multibyte runes at the cut point must not be split.
		{"Jetée du port de Saint-Même", 6, "Jetée…"},
		{"£2m résurfaçage cadre", 5, "£2m …"},
	}

	for _, tc := range tests {
		got := truncate(tc.in, tc.max)
		if got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%q, %d) produced invalid UTF-8: %q", tc.in, tc.max, got)
		}
	}
}
