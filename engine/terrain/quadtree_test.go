package terrain

import "testing"

func flatHeightmap(_, _, _ float32) (float32, float32) { return 0, 0 }

func TestNodeCountMatchesDenseFormula(t *testing.T) {
	q := New(3, 1000, flatHeightmap)
	// total nodes = (4^(d+1)-1)/3 for d=3 -> (256-1)/3 = 85
	want := (pow4(4) - 1) / 3
	if q.NodeCount() != want {
		t.Fatalf("expected %d nodes, got %d", want, q.NodeCount())
	}
}

func pow4(exp int) int {
	n := 1
	for i := 0; i < exp; i++ {
		n *= 4
	}
	return n
}

func TestMaxDepthIsClamped(t *testing.T) {
	q := New(20, 1000, flatHeightmap)
	if q.maxDepth != MaxDepth {
		t.Fatalf("expected maxDepth clamped to %d, got %d", MaxDepth, q.maxDepth)
	}
}

func TestRestrictionNoAdjacentSplitGapGreaterThanOne(t *testing.T) {
	q := New(5, 2000, flatHeightmap)
	// Camera very close to one corner so only nearby nodes split deeply,
	// creating a strong LOD gradient across the footprint.
	q.MarkSplits([3]float32{-1000, 0, -1000})

	for d := 0; d < q.maxDepth; d++ {
		gridSize := 1 << uint(d)
		for ix := 0; ix < gridSize; ix++ {
			for iz := 0; iz < gridSize; iz++ {
				n := q.Node(d, ix, iz)
				if !n.Split {
					continue
				}
				for _, nb := range q.sameDepthNeighbors(d, ix, iz) {
					if !nb.Split {
						t.Fatalf("restriction violated: node (%d,%d,%d) split but same-depth neighbor (%d,%d,%d) is not",
							d, ix, iz, nb.Depth, nb.IX, nb.IZ)
					}
				}
			}
		}
	}
}

func TestLeafCountMonotonicWithCameraHeight(t *testing.T) {
	q1 := New(5, 2000, flatHeightmap)
	q1.MarkSplits([3]float32{0, 100, 0})
	low := len(q1.EmitLeaves([3]float32{0, 100, 0}, 10, 50))

	q2 := New(5, 2000, flatHeightmap)
	q2.MarkSplits([3]float32{0, 1000, 0})
	high := len(q2.EmitLeaves([3]float32{0, 1000, 0}, 10, 50))

	if high > low {
		t.Fatalf("expected leaf count at camera_y=1000 (%d) <= camera_y=100 (%d)", high, low)
	}
}

func TestEmitLeavesRespectsMaxPatches(t *testing.T) {
	q := New(MaxDepth, 100000, flatHeightmap)
	q.MarkSplits([3]float32{0, 0, 0})
	patches := q.EmitLeaves([3]float32{0, 0, 0}, 1, 2)
	if len(patches) > MaxPatches {
		t.Fatalf("expected at most %d patches, got %d", MaxPatches, len(patches))
	}
}

func TestComputeMorphSaturates(t *testing.T) {
	if m := ComputeMorph(0, 10, 50); m != 0 {
		t.Fatalf("expected 0 below inner ring, got %f", m)
	}
	if m := ComputeMorph(100, 10, 50); m != 1 {
		t.Fatalf("expected 1 beyond outer ring, got %f", m)
	}
	if m := ComputeMorph(30, 10, 50); m <= 0 || m >= 1 {
		t.Fatalf("expected morph strictly between 0 and 1 inside the ring, got %f", m)
	}
}
