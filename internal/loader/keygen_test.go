package loader

import "testing"

func TestKeyFor(t *testing.T) {
	tests := []struct {
		path     string
		params   map[string]string
		expected string
	}{
		{"/files", nil, "files"},
		{"files/", map[string]string{}, "files"},
		{"/files", map[string]string{"page": "2"}, "files?page=2"},
		{"/files", map[string]string{"size": "50", "page": "2"}, "files?page=2&size=50"},
		{"/datasets/abc/rows", map[string]string{"q": ""}, "datasets/abc/rows"},
	}

	for _, tt := range tests {
		result := KeyFor[string](tt.path, tt.params).Name()
		if result != tt.expected {
			t.Errorf("KeyFor(%q, %v) = %q, want %q", tt.path, tt.params, result, tt.expected)
		}
	}
}

func TestNewKeyName(t *testing.T) {
	k := NewKey[int]("models")
	if k.Name() != "models" || k.String() != "models" {
		t.Errorf("unexpected key name %q", k.Name())
	}
}
