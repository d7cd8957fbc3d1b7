package meshreg

import "testing"

func TestRegisterIsIdempotent(t *testing.T) {
	r := New()
	id1 := r.Register("cube.gltf", 0, Entry{IndexCount: 36})
	id2 := r.Register("cube.gltf", 0, Entry{IndexCount: 36})
	if id1 != id2 {
		t.Fatalf("expected same id on re-registration, got %d and %d", id1, id2)
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.Count())
	}
}

func TestRegisterAssignsDenseIncreasingIds(t *testing.T) {
	r := New()
	id0 := r.Register("a.gltf", 0, Entry{})
	id1 := r.Register("a.gltf", 1, Entry{})
	id2 := r.Register("b.gltf", 0, Entry{})
	if id0 != 0 || id1 != 1 || id2 != 2 {
		t.Fatalf("expected dense ids 0,1,2, got %d,%d,%d", id0, id1, id2)
	}
}

func TestLookupUnregisteredReturnsFalse(t *testing.T) {
	r := New()
	if _, ok := r.Lookup("missing.gltf", 0); ok {
		t.Fatal("expected Lookup to fail for unregistered mesh part")
	}
}

func TestDirtyClearedAfterMarshal(t *testing.T) {
	r := New()
	r.Register("cube.gltf", 0, Entry{IndexCount: 36})
	if !r.Dirty() {
		t.Fatal("expected registry to be dirty after registration")
	}
	r.Marshal()
	if r.Dirty() {
		t.Fatal("expected dirty flag cleared after Marshal")
	}
}

func TestRegisterAfterMarshalMarksDirtyAgain(t *testing.T) {
	r := New()
	r.Register("cube.gltf", 0, Entry{})
	r.Marshal()
	r.Register("cube.gltf", 1, Entry{})
	if !r.Dirty() {
		t.Fatal("expected new registration to re-dirty the table")
	}
}

func TestMarshalProducesOneEntryPerRow(t *testing.T) {
	r := New()
	r.Register("a.gltf", 0, Entry{IndexCount: 10})
	r.Register("b.gltf", 0, Entry{IndexCount: 20})
	buf := r.Marshal()
	const entrySize = 48
	if len(buf) != 2*entrySize {
		t.Fatalf("expected %d bytes, got %d", 2*entrySize, len(buf))
	}
}

func TestEntryReflectsRegisteredAttributes(t *testing.T) {
	r := New()
	id := r.Register("cube.gltf", 0, Entry{
		IndexCount:           36,
		FirstIndex:           0,
		BaseVertex:           0,
		BoundingSphereRadius: 1.5,
	})
	e := r.Entry(id)
	if e.IndexCount != 36 {
		t.Fatalf("expected IndexCount 36, got %d", e.IndexCount)
	}
	if e.BoundingSphereRadius != 1.5 {
		t.Fatalf("expected BoundingSphereRadius 1.5, got %f", e.BoundingSphereRadius)
	}
}
