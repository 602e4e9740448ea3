package session

import (
	"encoding/json"
	"testing"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewID()
		if !ValidID(id) {
			t.Fatalf("NewID produced invalid id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestValidID(t *testing.T) {
	tests := map[string]bool{
		"":                                  false,
		"abc":                               false,
		"0123456789abcdef0123456789abcdef":  true,
		"0123456789ABCDEF0123456789abcdef":  false,
		"0123456789abcdef0123456789abcdeg":  false,
		"0123456789abcdef0123456789abcdef0": false,
	}
	for id, want := range tests {
		if got := ValidID(id); got != want {
			t.Errorf("ValidID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestSessionValues(t *testing.T) {
	s := New("id")
	s.Set("b", 1)
	s.Set("a", "x")

	if keys := s.Keys(); len(keys) != 2 || keys[0] != "a" {
		t.Errorf("Keys = %v", keys)
	}
	if s.GetString("b") != "" {
		t.Error("GetString on non-string should be empty")
	}
	s.Delete("a")
	if _, ok := s.Get("a"); ok {
		t.Error("Delete left value")
	}
}

func TestSessionJSON(t *testing.T) {
	s := New("abc")
	s.Set("name", "alice")
	s.Set("tags", []string{"x", "y"})

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != "abc" || got.GetString("name") != "alice" {
		t.Errorf("decoded = %q %q", got.ID, got.GetString("name"))
	}
	tags, _ := got.Get("tags")
	if list, ok := tags.([]any); !ok || len(list) != 2 {
		t.Errorf("tags = %#v", tags)
	}
}

func TestSessionJSONVersion(t *testing.T) {
	if _, err := Decode([]byte(`{"id":"x","version":99}`)); err == nil {
		t.Error("expected error for future version")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("expected error for garbage")
	}
}
