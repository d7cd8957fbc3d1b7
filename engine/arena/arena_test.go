package arena

import "testing"

func TestAllocateAdvancesHead(t *testing.T) {
	a := New(nil, 1024)
	off1, err := a.Allocate(256, 16, 0)
	if err != nil {
		t.Fatal(err)
	}
	if off1 != 0 {
		t.Fatalf("expected first allocation at offset 0, got %d", off1)
	}
	off2, err := a.Allocate(256, 16, 0)
	if err != nil {
		t.Fatal(err)
	}
	if off2 != 256 {
		t.Fatalf("expected second allocation at offset 256, got %d", off2)
	}
}

func TestAllocateAlignment(t *testing.T) {
	a := New(nil, 1024)
	if _, err := a.Allocate(10, 16, 0); err != nil {
		t.Fatal(err)
	}
	off, err := a.Allocate(16, 16, 0)
	if err != nil {
		t.Fatal(err)
	}
	if off%16 != 0 {
		t.Fatalf("expected 16-byte aligned offset, got %d", off)
	}
}

func TestWrapFailsWithLiveRegions(t *testing.T) {
	a := New(nil, 256)
	if _, err := a.Allocate(200, 1, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Allocate(200, 1, 0); err == nil {
		t.Fatal("expected wrap to fail while the first region is still live")
	}
}

func TestWrapSucceedsAfterReclaim(t *testing.T) {
	a := New(nil, 256)
	if _, err := a.Allocate(200, 1, 0); err != nil {
		t.Fatal(err)
	}
	a.Reclaim(4, 3) // frame 0 + 3 + 1 = 4 <= currentFrame 4
	off, err := a.Allocate(200, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if off != 0 {
		t.Fatalf("expected wrap to offset 0, got %d", off)
	}
}

func TestReclaimIsFIFO(t *testing.T) {
	a := New(nil, 1024)
	a.Allocate(100, 1, 0)
	a.Allocate(100, 1, 1)
	a.Allocate(100, 1, 2)

	a.Reclaim(4, 3) // only frame 0's region (0+3+1=4<=4) retires
	if got := a.LiveBytes(); got != 200 {
		t.Fatalf("expected 200 live bytes after partial reclaim, got %d", got)
	}
	a.Reclaim(6, 3) // frame 1 (1+3+1=5<=6) and frame 2 (2+3+1=6<=6) retire
	if got := a.LiveBytes(); got != 0 {
		t.Fatalf("expected 0 live bytes after full reclaim, got %d", got)
	}
}
