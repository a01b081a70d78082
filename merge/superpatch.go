package merge

import (
	"github.com/npillmayer/quilt"
	"github.com/npillmayer/quilt/patch"
)

// degree of the bicubic basis; adjacent patches overlap by one shared
// control row/column, hence the (3·cells+1) grid sizes.
const degree = 3

// Superpatch is a B-spline surface formed by fusing a rectangular
// block of adjacent regular patches at shared control rows/columns.
// The control net is u-major, sized (3·WidthCells+1)×(3·HeightCells+1).
type Superpatch struct {
	Control     [][]quilt.Point3
	WidthCells  int
	HeightCells int
	OriginX     int
	OriginY     int
	Component   int
	Mask        patch.Mask
}

// CellArea returns the number of source patch cells covered.
func (sp *Superpatch) CellArea() int {
	return sp.WidthCells * sp.HeightCells
}

// Consolidate runs the full merge pipeline over collected regular
// patches: adjacency discovery, grid coordinates, maximal-rectangle
// fusion, and hierarchical coalescing. Merge conflicts degrade
// gracefully to un-merged 1×1 output for the affected region; the
// result always covers every input patch exactly once.
func Consolidate(nets []patch.Net, tol float64) []Superpatch {
	if len(nets) == 0 {
		return nil
	}
	adj := buildAdjacency(nets, tol)
	lay := assignGrid(adj)
	sps := buildSuperpatches(nets, lay, tol)
	return coalesce(sps, tol)
}

// fuseOutcome is the tagged result of one rectangle fusion: either a
// single merged superpatch, or the un-merged 1×1 fallback patches for
// the same region. Exactly one of the fields is set.
type fuseOutcome struct {
	merged   *Superpatch
	unmerged []Superpatch
}

// buildSuperpatches scans each component's grid cells in raster order
// and greedily grows a rectangle from every un-visited cell: width
// extends while consecutive x-coordinates hold un-visited patches at
// the same y, height while the full row of x's does at increasing y.
// Iterating grid coordinates rather than patch indices keeps the
// rectangles disjoint: the BFS origin is an arbitrary patch, so index
// order may reach negative coordinates after their right/bottom
// neighbors are already covered. Each rectangle is fused or, on
// conflict, degraded to its constituent patches.
func buildSuperpatches(nets []patch.Net, lay *layout, tol float64) []Superpatch {
	var sps []Superpatch
	visited := make([]bool, len(nets))

	for ci := range lay.grids {
		cg := &lay.grids[ci]
		free := func(x, y int) bool {
			p := cg.at(x, y)
			return p != none && !visited[p]
		}
		for cy := 0; cy < cg.height; cy++ {
			for cx := 0; cx < cg.width; cx++ {
				idx := cg.cells[cy*cg.width+cx]
				if idx == none || visited[idx] {
					continue
				}
				x0, y0 := cg.minX+cx, cg.minY+cy

				width := 0
				for free(x0+width, y0) {
					width++
				}
				height := 0
			rows:
				for {
					for u := 0; u < width; u++ {
						if !free(x0+u, y0+height) {
							break rows
						}
					}
					height++
				}

				outcome := fuseRectangle(nets, lay, cg, x0, y0, width, height, tol)
				for v := 0; v < height; v++ {
					for u := 0; u < width; u++ {
						visited[cg.at(x0+u, y0+v)] = true
					}
				}
				if outcome.merged != nil {
					sps = append(sps, *outcome.merged)
				} else {
					sps = append(sps, outcome.unmerged...)
				}
			}
		}
	}
	return sps
}

// fuseRectangle copies each constituent patch's 4×4 net into its
// stride-3 window of a (3w+1)×(3h+1) grid. Shared grid cells claimed
// by two patches must agree within tolerance; any disagreement marks
// the whole rectangle invalid and the constituents are emitted as
// un-merged 1×1 superpatches instead, so the output never silently
// drops precision beyond tol.
func fuseRectangle(nets []patch.Net, lay *layout, cg *componentGrid,
	x0, y0, width, height int, tol float64) fuseOutcome {
	//
	ctrlU := width*degree + 1
	ctrlV := height*degree + 1
	tolSq := tol * tol

	// assemble v-major, as the patch nets are stored
	grid := make([][]quilt.Point3, ctrlV)
	set := make([][]bool, ctrlV)
	for v := range grid {
		grid[v] = make([]quilt.Point3, ctrlU)
		set[v] = make([]bool, ctrlU)
	}

	valid := true
	for vOff := 0; vOff < height; vOff++ {
		for uOff := 0; uOff < width; uOff++ {
			pIdx := cg.at(x0+uOff, y0+vOff)
			net := &nets[pIdx]
			for i := 0; i < 4; i++ {
				for j := 0; j < 4; j++ {
					v, u := vOff*degree+i, uOff*degree+j
					val := net.Control[i][j]
					if set[v][u] {
						if grid[v][u].Dist2(val) > tolSq {
							tracer().Errorf("superpatch mismatch at patch %d, slot (%d,%d)",
								net.Index, v, u)
							valid = false
						}
					} else {
						grid[v][u] = val
						set[v][u] = true
					}
				}
			}
		}
	}

	if !valid {
		unmerged := make([]Superpatch, 0, width*height)
		for vOff := 0; vOff < height; vOff++ {
			for uOff := 0; uOff < width; uOff++ {
				pIdx := cg.at(x0+uOff, y0+vOff)
				unmerged = append(unmerged, singleCell(&nets[pIdx], lay, pIdx))
			}
		}
		return fuseOutcome{unmerged: unmerged}
	}

	// transpose to u-major for surface construction
	control := make([][]quilt.Point3, ctrlU)
	for u := range control {
		control[u] = make([]quilt.Point3, ctrlV)
		for v := 0; v < ctrlV; v++ {
			control[u][v] = grid[v][u]
		}
	}

	// Combined boundary mask: only patches on the rectangle's outer
	// edge contribute, each restricted to the bit facing outward.
	var mask patch.Mask
	for vOff := 0; vOff < height; vOff++ {
		for uOff := 0; uOff < width; uOff++ {
			m := nets[cg.at(x0+uOff, y0+vOff)].Mask
			if uOff == 0 {
				mask |= m & patch.MaskUMin
			}
			if uOff == width-1 {
				mask |= m & patch.MaskUMax
			}
			if vOff == 0 {
				mask |= m & patch.MaskVMax
			}
			if vOff == height-1 {
				mask |= m & patch.MaskVMin
			}
		}
	}

	return fuseOutcome{merged: &Superpatch{
		Control:     control,
		WidthCells:  width,
		HeightCells: height,
		OriginX:     x0,
		OriginY:     y0,
		Component:   lay.comp[cg.at(x0, y0)],
		Mask:        mask,
	}}
}

// singleCell emits one patch as its own 1×1 superpatch, transposed to
// the u-major layout.
func singleCell(net *patch.Net, lay *layout, pIdx int) Superpatch {
	control := make([][]quilt.Point3, 4)
	for u := range control {
		control[u] = make([]quilt.Point3, 4)
		for v := 0; v < 4; v++ {
			control[u][v] = net.Control[v][u]
		}
	}
	return Superpatch{
		Control:     control,
		WidthCells:  1,
		HeightCells: 1,
		OriginX:     lay.x[pIdx],
		OriginY:     lay.y[pIdx],
		Component:   lay.comp[pIdx],
		Mask:        net.Mask,
	}
}
