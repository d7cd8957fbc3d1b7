package staging

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/kestrel-engine/gpuscene/engine/meshreg"
)

func TestAddRegistersMeshPartOnFirstSight(t *testing.T) {
	reg := meshreg.New()
	b := New(reg)
	id := b.Add("cube.gltf", 0, 1, MaterialBlock{BoundingSphereRadius: 1}, 0)
	if reg.Count() != 1 {
		t.Fatalf("expected mesh part to be registered, count=%d", reg.Count())
	}
	id2 := b.Add("cube.gltf", 0, 1, MaterialBlock{BoundingSphereRadius: 1}, 1)
	if id != id2 {
		t.Fatal("expected same MeshPartId for repeated (mesh, part)")
	}
}

func TestAddAppendsToEveryColumn(t *testing.T) {
	reg := meshreg.New()
	b := New(reg)
	b.Add("cube.gltf", 0, 1, MaterialBlock{BoundingSphereRadius: 1}, 0)
	b.Add("sphere.gltf", 0, 2, MaterialBlock{BoundingSphereRadius: 2}, 1)

	if b.Len() != 2 {
		t.Fatalf("expected 2 draws, got %d", b.Len())
	}
	if len(b.Descriptors()) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(b.Descriptors()))
	}
	if len(b.SubBatchIDs()) != 2 {
		t.Fatalf("expected 2 sub-batch ids, got %d", len(b.SubBatchIDs()))
	}
	if len(b.BoundingSpheres()) != 2*16 {
		t.Fatalf("expected 32 bytes of bounding sphere data, got %d", len(b.BoundingSpheres()))
	}
}

func TestUniquePartCountDeduplicates(t *testing.T) {
	reg := meshreg.New()
	b := New(reg)
	b.Add("cube.gltf", 0, 1, MaterialBlock{}, 0)
	b.Add("cube.gltf", 0, 1, MaterialBlock{}, 1)
	b.Add("sphere.gltf", 0, 1, MaterialBlock{}, 2)
	if b.UniquePartCount() != 2 {
		t.Fatalf("expected 2 unique parts, got %d", b.UniquePartCount())
	}
}

func TestOptionalChannelCopiesRawBytesAtRowOffset(t *testing.T) {
	reg := meshreg.New()
	b := New(reg)

	boneHash := uint64(0xB0E5)
	boneBytes0 := make([]byte, 4)
	binary.LittleEndian.PutUint32(boneBytes0, math.Float32bits(1.0))
	boneBytes1 := make([]byte, 4)
	binary.LittleEndian.PutUint32(boneBytes1, math.Float32bits(2.0))

	b.Add("cube.gltf", 0, 1, MaterialBlock{Params: []ChannelParam{{Hash: boneHash, Bytes: boneBytes0}}}, 0)
	b.Add("cube.gltf", 0, 1, MaterialBlock{Params: []ChannelParam{{Hash: boneHash, Bytes: boneBytes1}}}, 1)

	got := b.Channel(boneHash)
	if len(got) != 8 {
		t.Fatalf("expected 8 bytes across 2 rows, got %d", len(got))
	}
	if math.Float32frombits(binary.LittleEndian.Uint32(got[0:4])) != 1.0 {
		t.Fatal("row 0 channel data mismatch")
	}
	if math.Float32frombits(binary.LittleEndian.Uint32(got[4:8])) != 2.0 {
		t.Fatal("row 1 channel data mismatch")
	}
}

func TestChannelNilWhenNoDrawSuppliesIt(t *testing.T) {
	reg := meshreg.New()
	b := New(reg)
	b.Add("cube.gltf", 0, 1, MaterialBlock{}, 0)
	if got := b.Channel(0x1234); got != nil {
		t.Fatalf("expected nil channel for unsupplied parameter, got %v", got)
	}
}

func TestResetClearsAllState(t *testing.T) {
	reg := meshreg.New()
	b := New(reg)
	b.Add("cube.gltf", 0, 1, MaterialBlock{Params: []ChannelParam{{Hash: 1, Bytes: []byte{1, 2, 3, 4}}}}, 0)
	b.Reset()
	if b.Len() != 0 || b.UniquePartCount() != 0 || len(b.Descriptors()) != 0 {
		t.Fatal("expected Reset to clear draws, parts, and descriptors")
	}
	if got := b.Channel(1); got != nil {
		t.Fatal("expected Reset to clear channels")
	}
}
