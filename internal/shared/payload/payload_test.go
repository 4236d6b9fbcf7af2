package payload

import (
	"encoding/json"
	"testing"
)

func doc(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func TestLookup(t *testing.T) {
	d := doc(t, `{"a": {"b": 1.5, "n": null}, "s": "x"}`)

	tests := []struct {
		path   string
		wantOK bool
	}{
		{"$.a.b", true},
		{"$.s", true},
		{"$.a.n", false},
		{"$.a.missing", false},
		{"$.nope.deeper", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, ok := Lookup(tt.path, d)
			if ok != tt.wantOK {
				t.Errorf("Lookup(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
		})
	}

	if _, ok := Lookup("$.a", nil); ok {
		t.Error("Lookup on nil document should report absent")
	}
}

func TestString(t *testing.T) {
	d := doc(t, `{"id": " a1 ", "num": 42, "cat": ["", "Travel", "Airlines"], "flag": true, "empty": [], "obj": {}}`)

	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"$.id", "a1", true},
		{"$.num", "42", true},
		{"$.cat", "Travel", true},
		{"$.flag", "true", true},
		{"$.empty", "", false},
		{"$.obj", "", false},
		{"$.missing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := String(tt.path, d)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("String(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCompile(t *testing.T) {
	if err := Compile(""); err != nil {
		t.Errorf("Compile(\"\") = %v, want nil", err)
	}
	if err := Compile("$.balances.current"); err != nil {
		t.Errorf("Compile valid path = %v", err)
	}
	if err := Compile("$.mask[("); err == nil {
		t.Error("Compile invalid path should fail")
	}
}

func TestCompileCachesExpression(t *testing.T) {
	const path = "$.cached.field"
	if err := Compile(path); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !compiled.Contains(path) {
		t.Fatal("expected compiled expression to be cached")
	}

	v, ok := Lookup(path, doc(t, `{"cached": {"field": "v"}}`))
	if !ok || v != "v" {
		t.Errorf("Lookup = %v, %v; want v, true", v, ok)
	}

	if err := Compile("$.mask[("); err == nil {
		t.Error("expected error for invalid path")
	}
	if _, ok := Lookup("$.mask[(", map[string]any{"a": 1}); ok {
		t.Error("invalid path should report absent")
	}
}
