package uuid

import "testing"

func TestNewGeneratesValidV4(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("New() produced invalid UUID v4: %q", id)
		}
		if seen[id] {
			t.Fatalf("New() produced duplicate UUID: %q", id)
		}
		seen[id] = true
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid v4", "a8098c1a-f86e-4da5-82cb-ba10c1e2a6fb", true},
		{"empty", "", false},
		{"no dashes", "a8098c1af86e4da582cbba10c1e2a6fb", false},
		{"wrong version", "a8098c1a-f86e-1da5-82cb-ba10c1e2a6fb", false},
		{"wrong variant", "a8098c1a-f86e-4da5-12cb-ba10c1e2a6fb", false},
		{"too short", "a8098c1a-f86e-4da5-82cb", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.input); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(New()); err != nil {
		t.Errorf("Validate(New()) = %v, want nil", err)
	}
	if err := Validate("not-a-uuid"); err == nil {
		t.Error("Validate should reject malformed input")
	}
}
