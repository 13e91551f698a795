package repository

import "testing"

func TestPrivatePairKey(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"u1", "u2", "u1:u2"},
		{"u2", "u1", "u1:u2"},
		{"abc", "abc", "abc:abc"},
		{"zzz", "aaa", "aaa:zzz"},
	}
	for _, tt := range tests {
		if got := PrivatePairKey(tt.a, tt.b); got != tt.want {
			t.Errorf("PrivatePairKey(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMediaResolverURL(t *testing.T) {
	m := NewMediaResolver("https://cdn.example.com/")
	if got := m.URL("abc123"); got != "https://cdn.example.com/api/media/abc123" {
		t.Errorf("URL(abc123) = %q", got)
	}
	if got := m.URL(""); got != "" {
		t.Errorf("URL(\"\") = %q, want empty", got)
	}
}
