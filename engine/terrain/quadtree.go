// Package terrain implements the GPU-driven Adaptive Terrain quadtree
// (spec §4.K): a fixed-depth quadtree over the terrain footprint whose
// per-frame split decisions are restriction-enforced (CDLOD) before
// leaves are emitted into the opaque draw path.
package terrain

import "math"

// MaxDepth is the hard ceiling on quadtree depth (spec §6).
const MaxDepth = 7

// MaxPatches is the hard ceiling on leaves emitted in one frame (spec
// §6).
const MaxPatches = 8192

// LODRange0 is the base CDLOD morph distance at depth 0; the threshold
// for depth d is LODRange0 × 2^d.
const LODRange0 float32 = 64.0

type nodeKey struct {
	depth, ix, iz int
}

// Node is one quadtree cell. YMin/YMax come from the one-time min/max
// heightmap pyramid build (spec §4.K "One-time build").
type Node struct {
	Depth      int
	IX, IZ     int
	CenterX    float32
	CenterZ    float32
	HalfExtent float32
	YMin, YMax float32
	Split      bool
}

// Quadtree is the dense, fixed-depth node set covering the terrain
// footprint: total nodes = (4^(maxDepth+1)-1)/3 (spec §4.K).
type Quadtree struct {
	maxDepth     int
	footprint    float32
	heightLookup func(centerX, centerZ, halfExtent float32) (yMin, yMax float32)
	nodes        map[nodeKey]*Node
}

// New creates a Quadtree of the given maxDepth (clamped to MaxDepth)
// covering a square footprint of side footprintSize, centered at the
// origin. heightLookup supplies the conservative [y_min, y_max] for a
// node's world AABB, as produced by the one-time min/max pyramid build.
func New(maxDepth int, footprintSize float32, heightLookup func(centerX, centerZ, halfExtent float32) (float32, float32)) *Quadtree {
	if maxDepth > MaxDepth {
		maxDepth = MaxDepth
	}
	q := &Quadtree{maxDepth: maxDepth, footprint: footprintSize, heightLookup: heightLookup, nodes: make(map[nodeKey]*Node)}
	q.build()
	return q
}

func (q *Quadtree) build() {
	for d := 0; d <= q.maxDepth; d++ {
		gridSize := 1 << uint(d)
		cellSize := q.footprint / float32(gridSize)
		half := cellSize / 2
		for ix := 0; ix < gridSize; ix++ {
			for iz := 0; iz < gridSize; iz++ {
				cx := -q.footprint/2 + cellSize*float32(ix) + half
				cz := -q.footprint/2 + cellSize*float32(iz) + half
				yMin, yMax := q.heightLookup(cx, cz, half)
				q.nodes[nodeKey{d, ix, iz}] = &Node{
					Depth: d, IX: ix, IZ: iz,
					CenterX: cx, CenterZ: cz, HalfExtent: half,
					YMin: yMin, YMax: yMax,
				}
			}
		}
	}
}

// NodeCount returns the total number of nodes in the dense tree.
func (q *Quadtree) NodeCount() int { return len(q.nodes) }

// Node returns the node at (depth, ix, iz), or nil if out of range.
func (q *Quadtree) Node(depth, ix, iz int) *Node { return q.nodes[nodeKey{depth, ix, iz}] }

// MarkSplits runs pass 1 (spec §4.K): for every node above max depth,
// compute distance from cameraPos to the node's world AABB center and
// compare against the CDLOD morph distance LODRange0×2^depth. Nodes
// within range are marked split. Afterwards the restricted-quadtree
// constraint is enforced by lifting split flags across same-depth
// neighbors for maxDepth iterative rounds (spec's Open Question
// resolution: iterative passes, not a single intra-group-barrier pass).
func (q *Quadtree) MarkSplits(cameraPos [3]float32) {
	for d := 0; d < q.maxDepth; d++ {
		threshold := LODRange0 * float32(math.Pow(2, float64(d)))
		gridSize := 1 << uint(d)
		for ix := 0; ix < gridSize; ix++ {
			for iz := 0; iz < gridSize; iz++ {
				n := q.nodes[nodeKey{d, ix, iz}]
				dist := nodeDistance(n, cameraPos)
				n.Split = dist < threshold
			}
		}
	}

	for round := 0; round < q.maxDepth; round++ {
		changed := false
		for d := 0; d < q.maxDepth; d++ {
			gridSize := 1 << uint(d)
			for ix := 0; ix < gridSize; ix++ {
				for iz := 0; iz < gridSize; iz++ {
					n := q.nodes[nodeKey{d, ix, iz}]
					if !n.Split {
						continue
					}
					for _, nb := range q.sameDepthNeighbors(d, ix, iz) {
						if !nb.Split {
							nb.Split = true
							changed = true
						}
					}
				}
			}
		}
		if !changed {
			break
		}
	}
}

func (q *Quadtree) sameDepthNeighbors(depth, ix, iz int) []*Node {
	gridSize := 1 << uint(depth)
	offsets := [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	var out []*Node
	for _, o := range offsets {
		nx, nz := ix+o[0], iz+o[1]
		if nx < 0 || nx >= gridSize || nz < 0 || nz >= gridSize {
			continue
		}
		if n, ok := q.nodes[nodeKey{depth, nx, nz}]; ok {
			out = append(out, n)
		}
	}
	return out
}

func nodeDistance(n *Node, cameraPos [3]float32) float32 {
	midY := (n.YMin + n.YMax) / 2
	dx := n.CenterX - cameraPos[0]
	dy := midY - cameraPos[1]
	dz := n.CenterZ - cameraPos[2]
	return float32(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
}
