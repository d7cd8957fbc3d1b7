package transform

import "testing"

func identity() [16]float32 {
	var m [16]float32
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
	return m
}

func TestAllocateSlotMarksDirtyInAllFrames(t *testing.T) {
	s := New(4)
	slot := s.AllocateSlot()
	for f := 0; f < 3; f++ {
		if !s.IsDirty(f, slot) {
			t.Fatalf("frame %d: expected newly allocated slot to be dirty", f)
		}
	}
}

func TestAllocateSlotPanicsOnExhaustion(t *testing.T) {
	s := New(1)
	s.AllocateSlot()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on capacity exhaustion")
		}
	}()
	s.AllocateSlot()
}

func TestSetTransformBeyondHighWaterMarkIsNoOp(t *testing.T) {
	s := New(4)
	s.SetTransform(2, identity(), 7)
	if uint32(2) < s.nextSlot {
		t.Fatal("test setup invalid: slot should be beyond high-water mark")
	}
	m, mat := s.Transform(2)
	if m != ([16]float32{}) || mat != 0 {
		t.Fatal("expected no-op write to unallocated slot")
	}
}

func TestSetTransformMarksOnlyAllocatedSlotDirty(t *testing.T) {
	s := New(4)
	slot := s.AllocateSlot()
	for f := 0; f < 3; f++ {
		s.IsDirty(f, slot)
	}
	m := identity()
	m[12] = 5
	s.SetTransform(slot, m, 3)
	got, mat := s.Transform(slot)
	if got != m || mat != 3 {
		t.Fatalf("transform not stored correctly: got %v/%d", got, mat)
	}
	for f := 0; f < 3; f++ {
		if !s.IsDirty(f, slot) || s.IsDirty(f, slot+1) {
			t.Fatalf("frame %d: expected only the allocated slot to be dirty", f)
		}
	}
}

func TestUploadClearsOnlyItsOwnFrameDirtyBits(t *testing.T) {
	s := New(4)
	slot := s.AllocateSlot()
	s.SetTransform(slot, identity(), 1)

	dest := make([]byte, int(s.Capacity())*80)
	s.Upload(0, dest)

	if s.IsDirty(0, slot) {
		t.Fatal("frame 0 dirty bit should be cleared after its own upload")
	}
	if !s.IsDirty(1, slot) || !s.IsDirty(2, slot) {
		t.Fatal("other frames' dirty bits must survive frame 0's upload")
	}
}

func TestUploadWritesFinalValueAtCorrectOffset(t *testing.T) {
	s := New(4)
	slot := s.AllocateSlot()
	m := identity()
	m[12], m[13], m[14] = 10, 20, 30
	s.SetTransform(slot, m, 42)

	dest := make([]byte, int(s.Capacity())*80)
	s.Upload(0, dest)

	g := GPUTransformSlot{Model: m, MaterialID: 42}
	want := g.Marshal()
	got := dest[int(slot)*80 : int(slot)*80+80]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestNFrameRoundTripLeavesFinalValueInEveryRingSlot(t *testing.T) {
	s := New(4)
	slots := make([]Slot, 3)
	for i := range slots {
		slots[i] = s.AllocateSlot()
	}

	finals := make(map[Slot][16]float32)
	for i, slot := range slots {
		m := identity()
		m[12] = float32(i + 1)
		finals[slot] = m
		s.SetTransform(slot, m, uint32(i))
	}

	dests := make([][]byte, 3)
	for f := 0; f < 3; f++ {
		dests[f] = make([]byte, int(s.Capacity())*80)
		s.Upload(f, dests[f])
	}

	for f := 0; f < 3; f++ {
		for i, slot := range slots {
			g := GPUTransformSlot{Model: finals[slot], MaterialID: uint32(i)}
			want := g.Marshal()
			got := dests[f][int(slot)*80 : int(slot)*80+80]
			for b := range want {
				if got[b] != want[b] {
					t.Fatalf("ring slot %d, slot %d: byte %d mismatch", f, slot, b)
				}
			}
		}
	}
}

func TestUploadNoOpWhenNothingDirty(t *testing.T) {
	s := New(4)
	slot := s.AllocateSlot()
	dest := make([]byte, int(s.Capacity())*80)
	s.Upload(0, dest)

	sentinel := []byte("marker-before-second-upload-call")
	copy(dest, sentinel)
	s.Upload(0, dest)
	for i := range sentinel {
		if dest[i] != sentinel[i] {
			t.Fatal("Upload wrote bytes despite no dirty slots for this frame")
		}
	}
	_ = slot
}

func TestReleaseSlotReturnsToFreeList(t *testing.T) {
	s := New(1)
	slot := s.AllocateSlot()
	s.ReleaseSlot(slot)
	reused := s.AllocateSlot()
	if reused != slot {
		t.Fatalf("expected released slot %d to be reused, got %d", slot, reused)
	}
}
