package bindless

import "testing"

func TestAllocateMonotonic(t *testing.T) {
	tbl := New()
	a := tbl.Allocate()
	b := tbl.Allocate()
	if a == b {
		t.Fatalf("expected distinct indices, got %d and %d", a, b)
	}
	if tbl.Len() != 2 {
		t.Fatalf("expected 2 live indices, got %d", tbl.Len())
	}
}

func TestReleaseNotReissuedBeforeInFlightDepth(t *testing.T) {
	tbl := New()
	a := tbl.Allocate()
	tbl.Release(a, 10)

	// Reclaiming before the in-flight depth has elapsed must not free it.
	tbl.Reclaim(10 + InFlightFrames)
	for i := 0; i < 8; i++ {
		if got := tbl.Allocate(); got == a {
			t.Fatalf("index %d reissued before frame %d", a, 10+InFlightFrames+1)
		}
	}
}

func TestReclaimMakesIndexAvailableAfterDepth(t *testing.T) {
	tbl := New()
	a := tbl.Allocate()
	tbl.Release(a, 10)
	tbl.Reclaim(10 + InFlightFrames + 1)

	found := false
	for i := 0; i < 8; i++ {
		if tbl.Allocate() == a {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("index %d never reissued after its in-flight depth elapsed", a)
	}
}

func TestDoubleFreePanics(t *testing.T) {
	tbl := New()
	a := tbl.Allocate()
	tbl.Release(a, 0)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	tbl.Release(a, 0)
}

func TestIsLive(t *testing.T) {
	tbl := New()
	a := tbl.Allocate()
	if !tbl.IsLive(a) {
		t.Fatal("expected index to be live after allocation")
	}
	tbl.Release(a, 0)
	if tbl.IsLive(a) {
		t.Fatal("expected index to not be live after release")
	}
}
