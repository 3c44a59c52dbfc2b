package sandbox

import (
	"testing"

	"github.com/daios-ai/sandeval/ast"
)

func fakeModule(name string) *ast.DefModule {
	return ast.NewDefModule([]string{name}, nil, ast.Position{Line: 1})
}

func TestCache_MissThenHit(t *testing.T) {
	c := newModuleCache(8, nil)
	digest := digestOf([]byte("v1"))
	if _, ok := c.get("M", digest); ok {
		t.Fatalf("want miss on empty cache")
	}
	c.put("M", digest, fakeModule("M"))
	cm, ok := c.get("M", digest)
	if !ok {
		t.Fatalf("want hit after put")
	}
	if cm.root.Name[0] != "M" {
		t.Fatalf("want cached module M, got %v", cm.root.Name)
	}
}

func TestCache_DigestMismatchEvictsStaleEntry(t *testing.T) {
	c := newModuleCache(8, nil)
	oldDigest := digestOf([]byte("old source"))
	newDigest := digestOf([]byte("new source"))
	c.put("M", oldDigest, fakeModule("M"))

	if _, ok := c.get("M", newDigest); ok {
		t.Fatalf("want miss on digest mismatch")
	}
	// The stale entry should now be gone even for its original digest.
	if _, ok := c.get("M", oldDigest); ok {
		t.Fatalf("want stale entry evicted, not just masked")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := newModuleCache(2, nil)
	dA, dB, dC := digestOf([]byte("a")), digestOf([]byte("b")), digestOf([]byte("c"))
	c.put("A", dA, fakeModule("A"))
	c.put("B", dB, fakeModule("B"))
	c.put("C", dC, fakeModule("C")) // evicts A (least recently used)

	if _, ok := c.get("A", dA); ok {
		t.Fatalf("want A evicted")
	}
	if _, ok := c.get("B", dB); !ok {
		t.Fatalf("want B still cached")
	}
	if _, ok := c.get("C", dC); !ok {
		t.Fatalf("want C cached")
	}
}

func TestCache_Purge(t *testing.T) {
	c := newModuleCache(8, nil)
	digest := digestOf([]byte("v1"))
	c.put("M", digest, fakeModule("M"))
	c.purge("M")
	if _, ok := c.get("M", digest); ok {
		t.Fatalf("want purged entry gone")
	}
}

func TestCache_ValidatedOncePerFuncKey(t *testing.T) {
	cm := &compiledModule{}
	key := funcKey{Name: "f", Arity: 1}
	if cm.alreadyValidated(key) {
		t.Fatalf("want not validated initially")
	}
	cm.markValidated(key)
	if !cm.alreadyValidated(key) {
		t.Fatalf("want validated after markValidated")
	}
	if cm.alreadyValidated(funcKey{Name: "f", Arity: 2}) {
		t.Fatalf("validation must be scoped per (name, arity)")
	}
}
