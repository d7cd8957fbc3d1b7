package orchestrator

import (
	"errors"
	"testing"
)

type fakeDisposable struct {
	released bool
}

func (f *fakeDisposable) Release() { f.released = true }

func TestRunFrameAdvancesFrameIndex(t *testing.T) {
	o := New()
	o.RunFrame()
	if o.CurrentFrame() != 1 {
		t.Fatalf("expected frame index 1 after one RunFrame, got %d", o.CurrentFrame())
	}
	o.RunFrame()
	if o.CurrentFrame() != 2 {
		t.Fatalf("expected frame index 2 after two RunFrame calls, got %d", o.CurrentFrame())
	}
}

func TestStagesRunInRegistrationOrder(t *testing.T) {
	o := New()
	var order []string
	o.AddStage(Stage{Name: "producers", Run: func(uint64) error { order = append(order, "producers"); return nil }})
	o.AddStage(Stage{Name: "uploads", Run: func(uint64) error { order = append(order, "uploads"); return nil }})
	o.AddStage(Stage{Name: "opaque", Run: func(uint64) error { order = append(order, "opaque"); return nil }})

	o.RunFrame()

	want := []string{"producers", "uploads", "opaque"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("stage order[%d] = %q, want %q", i, order[i], name)
		}
	}
}

func TestDeferDisposalNotReleasedBeforeDepthElapsed(t *testing.T) {
	o := New()
	o.RunFrame() // frame becomes 1
	d := &fakeDisposable{}
	o.DeferDisposal(d) // disposeAt = 1 + 3 + 1 = 5

	for i := 0; i < 3; i++ {
		o.RunFrame()
	}
	if d.released {
		t.Fatal("expected resource not yet released before dispose-at frame")
	}
}

func TestDeferDisposalReleasedOnceDepthElapses(t *testing.T) {
	o := New()
	o.RunFrame() // frame becomes 1
	d := &fakeDisposable{}
	o.DeferDisposal(d) // disposeAt = 5

	for o.CurrentFrame() <= 5 { // run through the Begin Frame of frame 5
		o.RunFrame()
	}
	if !d.released {
		t.Fatal("expected resource released once its dispose-at frame elapsed")
	}
	if o.PendingDisposalCount() != 0 {
		t.Fatal("expected no pending disposals after release")
	}
}

func TestSoftFaultDoesNotAbortRemainingStages(t *testing.T) {
	o := New()
	var ranSecond bool
	o.AddStage(Stage{Name: "first", Run: func(uint64) error { return errors.New("soft fault") }})
	o.AddStage(Stage{Name: "second", Run: func(uint64) error { ranSecond = true; return nil }})

	o.RunFrame()

	if !ranSecond {
		t.Fatal("expected a stage error not to abort subsequent stages")
	}
}

func TestFrameSlotCyclesOverRingDepth(t *testing.T) {
	o := New()
	seen := make(map[int]bool)
	for i := 0; i < 6; i++ {
		o.RunFrame()
		seen[o.FrameSlot()] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected frame slot to cycle over 3 values, saw %d distinct", len(seen))
	}
}
