/*
Package merge fuses adjacent regular subdivision patches into larger
bicubic "superpatches". It discovers grid adjacency among independently
generated 4×4 control nets under a tolerance, assigns integer grid
coordinates per connected component, grows maximal rectangles of
mutually consistent patches, and finally coalesces surviving
superpatches smallest-first until no further merge is possible.

# BSD License

# Copyright (c) Norbert Pillmayer

All rights reserved.

Please refer to the license file for more information.
*/
package merge

import (
	"github.com/npillmayer/quilt"
	"github.com/npillmayer/quilt/patch"
	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'quilt.merge'
func tracer() tracing.Trace {
	return tracing.Select("quilt.merge")
}

const none = -1

// adjacency is the 4-connected grid graph over collected patches.
// Patches carry dense integer ids (their slice position), so the
// graph lives in plain indexed arrays. Every patch has at most one
// right and one bottom neighbor; leftOf/topOf are the derived reverse
// maps for bidirectional walks.
type adjacency struct {
	right  []int
	bottom []int
	leftOf []int
	topOf  []int
}

// rowDist2 returns the largest squared distance between corresponding
// points of two candidate shared edges, or ok=false as soon as a pair
// exceeds the squared tolerance.
func rowDist2(a, b [4]quilt.Point3, tolSq float64) (float64, bool) {
	var worst float64
	for k := 0; k < 4; k++ {
		d := a[k].Dist2(b[k])
		if d > tolSq {
			return 0, false
		}
		if d > worst {
			worst = d
		}
	}
	return worst, true
}

// buildAdjacency compares every ordered pair of patches: i's bottom
// edge (row 3) against j's top edge (row 0), and i's right edge
// (column 3) against j's left edge (column 0). Matches across a
// clamped boundary edge are suppressed. Among multiple candidates the
// closest match wins, with remaining ties resolved toward the lowest
// patch index, so the graph does not depend on input iteration order.
func buildAdjacency(nets []patch.Net, tol float64) *adjacency {
	n := len(nets)
	adj := &adjacency{
		right:  make([]int, n),
		bottom: make([]int, n),
		leftOf: make([]int, n),
		topOf:  make([]int, n),
	}
	for i := range adj.right {
		adj.right[i], adj.bottom[i] = none, none
		adj.leftOf[i], adj.topOf[i] = none, none
	}
	tolSq := tol * tol

	for i := range nets {
		bottomI := nets[i].Row(3)
		rightI := nets[i].Col(3)
		iBottomClamped := nets[i].Mask.Has(patch.MaskVMin)
		iRightClamped := nets[i].Mask.Has(patch.MaskUMax)

		bestBottom, bestBottomD := none, 0.0
		bestRight, bestRightD := none, 0.0

		for j := range nets {
			if i == j {
				continue
			}
			if !iBottomClamped && !nets[j].Mask.Has(patch.MaskVMax) {
				if d, ok := rowDist2(bottomI, nets[j].Row(0), tolSq); ok {
					if bestBottom == none || d < bestBottomD {
						bestBottom, bestBottomD = j, d
					}
				}
			}
			if !iRightClamped && !nets[j].Mask.Has(patch.MaskUMin) {
				if d, ok := rowDist2(rightI, nets[j].Col(0), tolSq); ok {
					if bestRight == none || d < bestRightD {
						bestRight, bestRightD = j, d
					}
				}
			}
		}
		adj.bottom[i] = bestBottom
		adj.right[i] = bestRight
	}

	for i := range nets {
		if r := adj.right[i]; r != none {
			adj.leftOf[r] = i
		}
		if b := adj.bottom[i]; b != none {
			adj.topOf[b] = i
		}
	}
	return adj
}

// layout assigns integer grid coordinates per connected component.
type layout struct {
	x, y   []int // grid coordinate of patch i
	placed []bool
	comp   []int // connected-component id of patch i
	grids  []componentGrid
}

// componentGrid is a dense (x,y) → patch-id map for one connected
// component, normalized to its bounding box.
type componentGrid struct {
	minX, minY    int
	width, height int
	cells         []int
}

func (cg *componentGrid) at(x, y int) int {
	cx, cy := x-cg.minX, y-cg.minY
	if cx < 0 || cy < 0 || cx >= cg.width || cy >= cg.height {
		return none
	}
	return cg.cells[cy*cg.width+cx]
}

// assignGrid runs a breadth-first traversal per unvisited patch,
// assigning coordinates relative to an arbitrary origin for each
// connected component. Right neighbors sit at (+1,0), bottom
// neighbors at (0,+1). Patches unreachable from any other become
// isolated 1×1 components.
func assignGrid(adj *adjacency) *layout {
	n := len(adj.right)
	lay := &layout{
		x:      make([]int, n),
		y:      make([]int, n),
		placed: make([]bool, n),
		comp:   make([]int, n),
	}

	var queue []int
	for start := 0; start < n; start++ {
		if lay.placed[start] {
			continue
		}
		compID := len(lay.grids)
		lay.placed[start] = true
		lay.comp[start] = compID
		queue = append(queue[:0], start)
		members := []int{start}

		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			x, y := lay.x[i], lay.y[i]
			place := func(j, jx, jy int) {
				if j == none || lay.placed[j] {
					return
				}
				lay.placed[j] = true
				lay.comp[j] = compID
				lay.x[j], lay.y[j] = jx, jy
				queue = append(queue, j)
				members = append(members, j)
			}
			place(adj.right[i], x+1, y)
			place(adj.bottom[i], x, y+1)
			place(adj.leftOf[i], x-1, y)
			place(adj.topOf[i], x, y-1)
		}

		lay.grids = append(lay.grids, newComponentGrid(lay, members))
	}
	return lay
}

func newComponentGrid(lay *layout, members []int) componentGrid {
	minX, minY := lay.x[members[0]], lay.y[members[0]]
	maxX, maxY := minX, minY
	for _, m := range members[1:] {
		if lay.x[m] < minX {
			minX = lay.x[m]
		}
		if lay.x[m] > maxX {
			maxX = lay.x[m]
		}
		if lay.y[m] < minY {
			minY = lay.y[m]
		}
		if lay.y[m] > maxY {
			maxY = lay.y[m]
		}
	}
	cg := componentGrid{
		minX: minX, minY: minY,
		width:  maxX - minX + 1,
		height: maxY - minY + 1,
	}
	cg.cells = make([]int, cg.width*cg.height)
	for k := range cg.cells {
		cg.cells[k] = none
	}
	for _, m := range members {
		cg.cells[(lay.y[m]-minY)*cg.width+(lay.x[m]-minX)] = m
	}
	return cg
}
