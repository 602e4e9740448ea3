package routepath

import (
	"errors"
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"root", "/", "/"},
		{"empty", "", "/"},
		{"no leading slash", "about", "/about"},
		{"collapse slashes", "/blog//post", "/blog/post"},
		{"single dot", "/blog/./post", "/blog/post"},
		{"double dot", "/blog/posts/../other", "/blog/other"},
		{"double dot to root", "/blog/../", "/"},
		{"trailing slash", "/child/", "/child"},
		{"escapes kept", "/files/a%2Fb/c%20d", "/files/a%2Fb/c%20d"},
		{"lowercase escape", "/x/%e2%9c%93", "/x/%e2%9c%93"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clean(tt.input)
			if err != nil {
				t.Fatalf("Clean(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"backslash", `/a\b`, ErrBackslash},
		{"encoded backslash", "/a%5cb", ErrBackslash},
		{"null byte", "/a\x00b", ErrNullByte},
		{"encoded null", "/a%00b", ErrNullByte},
		{"bad hex", "/a%GGb", ErrInvalidEscape},
		{"truncated escape", "/a%2", ErrInvalidEscape},
		{"escape root", "/../secret", ErrEscapesRoot},
		{"escape root later", "/a/../../secret", ErrEscapesRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Clean(tt.input); !errors.Is(err, tt.want) {
				t.Errorf("Clean(%q) error = %v, want %v", tt.input, err, tt.want)
			}
		})
	}
}
