package cache

import (
	"strings"
	"testing"
)

func TestHashParamsOrderIndependent(t *testing.T) {
	a := HashParams(map[string]any{"a": 1, "b": 2, "c": 3})
	b := HashParams(map[string]any{"c": 3, "a": 1, "b": 2})

	if a != b {
		t.Errorf("hash depends on insertion order: %q != %q", a, b)
	}
}

func TestHashParamsNilValuesExcluded(t *testing.T) {
	a := HashParams(map[string]any{"a": 1})
	b := HashParams(map[string]any{"a": 1, "b": nil, "c": nil})

	if a != b {
		t.Errorf("nil-valued params changed the hash: %q != %q", a, b)
	}
}

func TestHashParamsDistinguishesValues(t *testing.T) {
	a := HashParams(map[string]any{"limit": 20})
	b := HashParams(map[string]any{"limit": 50})

	if a == b {
		t.Error("different param values produced the same hash")
	}
}

func TestHashParamsShape(t *testing.T) {
	h := HashParams(map[string]any{"project": "p1", "limit": 20, "offset": 0})

	if len(h) != 64 {
		t.Errorf("hash length = %d, want 64", len(h))
	}
	if h != strings.ToLower(h) {
		t.Errorf("hash = %q, want lowercase hex", h)
	}
	for _, r := range h {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("hash contains non-hex char %q", r)
		}
	}
}

func TestTraceListKeyUnderPrefix(t *testing.T) {
	key := TraceListKey("proj_1", "abc123")
	prefix := TraceListPrefix("proj_1")

	if !strings.HasPrefix(key, strings.TrimSuffix(prefix, "*")) {
		t.Errorf("key %q not matched by prefix pattern %q", key, prefix)
	}

	other := TraceListKey("proj_2", "abc123")
	if strings.HasPrefix(other, strings.TrimSuffix(prefix, "*")) {
		t.Errorf("key %q for another project matched by %q", other, prefix)
	}
}
