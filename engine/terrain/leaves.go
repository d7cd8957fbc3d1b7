package terrain

import "math"

// Patch is the CPU-side mirror of a GPUTerrainPatch descriptor emitted by
// pass 2 (spec §4.K "Emit Leaves"): it is fed into the Draw Batcher
// exactly like any other draw, so it receives free GPU culling and
// shadowing.
type Patch struct {
	WorldBounds [4]float32 // min xz, max xz
	UVRect      [4]float32
	MorphFactor float32
	RingScale   float32
	LODLevel    uint32
}

// EmitLeaves runs pass 2 (spec §4.K): a node is a leaf if it is below
// max depth and not split, or if it is at max depth. Leaves are appended
// as patch descriptors, capped at MaxPatches. cameraPos and ringInner/
// ringOuter parameterize the CDLOD morph factor computed for each leaf
// (pass 3, folded into pass 2 per spec).
func (q *Quadtree) EmitLeaves(cameraPos [3]float32, ringInner, ringOuter float32) []Patch {
	var patches []Patch
	for d := 0; d <= q.maxDepth; d++ {
		gridSize := 1 << uint(d)
		for ix := 0; ix < gridSize; ix++ {
			for iz := 0; iz < gridSize; iz++ {
				n := q.nodes[nodeKey{d, ix, iz}]
				isLeaf := (d == q.maxDepth) || !n.Split
				if !isLeaf {
					continue
				}
				// A node below max depth that is itself not split, but whose
				// parent was split into it, is a true leaf only if its parent
				// (if any) is actually split — root (depth 0) is always
				// reachable.
				if d > 0 {
					parent := q.nodes[nodeKey{d - 1, ix / 2, iz / 2}]
					if !parent.Split {
						continue
					}
				}
				if len(patches) >= MaxPatches {
					return patches
				}
				dist := nodeDistance(n, cameraPos)
				morph := ComputeMorph(dist, ringInner, ringOuter)
				patches = append(patches, Patch{
					WorldBounds: [4]float32{n.CenterX - n.HalfExtent, n.CenterZ - n.HalfExtent, n.CenterX + n.HalfExtent, n.CenterZ + n.HalfExtent},
					MorphFactor: morph,
					RingScale:   n.HalfExtent * 2,
					LODLevel:    uint32(d),
				})
			}
		}
	}
	return patches
}

// ComputeMorph implements the standard CDLOD ring formula (spec §4.K
// pass 3): saturate((dist - r_inner) / (r_outer - r_inner)).
func ComputeMorph(dist, ringInner, ringOuter float32) float32 {
	if ringOuter <= ringInner {
		return 0
	}
	t := (dist - ringInner) / (ringOuter - ringInner)
	return float32(math.Max(0, math.Min(1, float64(t))))
}
