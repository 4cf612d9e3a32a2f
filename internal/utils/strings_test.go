package utils

import (
	"strings"
	"testing"
)

func TestNormalizeNotes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims", "  hello  ", "hello"},
		{"composes accents", "café", "café"},
		{"drops control chars", "a\x00b\x07c", "abc"},
		{"keeps newlines", "line1\nline2", "line1\nline2"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeNotes(tt.in); got != tt.want {
				t.Errorf("NormalizeNotes(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeNotes_Caps(t *testing.T) {
	got := NormalizeNotes(strings.Repeat("é", MaxNotesLength+10))
	if n := len([]rune(got)); n != MaxNotesLength {
		t.Fatalf("Expected %d runes, got %d", MaxNotesLength, n)
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"ada@example.com", " Ada@Example.COM "}
	invalid := []string{"", "ada", "ada@x", "@example.com", "a@b@c.com"}

	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("Expected %q to be valid", e)
		}
	}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("Expected %q to be invalid", e)
		}
	}
}
