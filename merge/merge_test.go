package merge

import (
	"testing"

	"github.com/npillmayer/quilt"
	"github.com/npillmayer/quilt/patch"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
	"github.com/stretchr/testify/assert"
)

const tol = 1e-6

// latticeNet builds the 4×4 net of grid cell (gx,gy) on a shared flat
// lattice with unit control spacing: Control[v][u] = (3gx+u, 3gy+v, 0).
// Adjacent cells coincide exactly in their shared control row/column.
func latticeNet(index, gx, gy int, mask patch.Mask) patch.Net {
	var control [4][4]quilt.Point3
	for v := 0; v < 4; v++ {
		for u := 0; u < 4; u++ {
			control[v][u] = quilt.Pt(float64(3*gx+u), float64(3*gy+v), 0)
		}
	}
	return patch.Net{Index: index, Control: control, Mask: mask}
}

func TestAdjacencyHorizontal(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	nets := []patch.Net{
		latticeNet(0, 0, 0, 0),
		latticeNet(1, 1, 0, 0),
	}
	adj := buildAdjacency(nets, tol)
	assert.Equal(t, 1, adj.right[0])
	assert.Equal(t, 0, adj.leftOf[1])
	assert.Equal(t, none, adj.right[1])
	assert.Equal(t, none, adj.bottom[0])
	assert.Equal(t, none, adj.bottom[1])
}

func TestAdjacencyVertical(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	nets := []patch.Net{
		latticeNet(0, 0, 0, 0),
		latticeNet(1, 0, 1, 0),
	}
	adj := buildAdjacency(nets, tol)
	assert.Equal(t, 1, adj.bottom[0])
	assert.Equal(t, 0, adj.topOf[1])
	assert.Equal(t, none, adj.right[0])
}

func TestAdjacencySuppressedByMask(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	// i's right edge clamped: no link despite coinciding coordinates
	nets := []patch.Net{
		latticeNet(0, 0, 0, patch.MaskUMax),
		latticeNet(1, 1, 0, 0),
	}
	adj := buildAdjacency(nets, tol)
	assert.Equal(t, none, adj.right[0])

	// j's left edge clamped: same suppression from the other side
	nets = []patch.Net{
		latticeNet(0, 0, 0, 0),
		latticeNet(1, 1, 0, patch.MaskUMin),
	}
	adj = buildAdjacency(nets, tol)
	assert.Equal(t, none, adj.right[0])
}

func TestAdjacencyClosestMatchWins(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	// two candidates for patch 0's right neighbor, one shifted by a
	// quarter tolerance: the closer one wins regardless of order
	shifted := latticeNet(1, 1, 0, 0)
	for v := 0; v < 4; v++ {
		shifted.Control[v][0].Z += tol / 4
	}
	exact := latticeNet(2, 1, 0, 0)
	adj := buildAdjacency([]patch.Net{latticeNet(0, 0, 0, 0), shifted, exact}, tol)
	assert.Equal(t, 2, adj.right[0])
}

func TestGridAssignment(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	nets := []patch.Net{
		latticeNet(0, 0, 0, 0),
		latticeNet(1, 1, 0, 0),
		latticeNet(2, 0, 1, 0),
		latticeNet(3, 1, 1, 0),
	}
	lay := assignGrid(buildAdjacency(nets, tol))
	assert.Equal(t, []int{0, 0, 0, 0}, lay.comp)
	if len(lay.grids) != 1 {
		t.Fatalf("expected 1 connected component, got %d", len(lay.grids))
	}
	cg := &lay.grids[0]
	assert.Equal(t, 2, cg.width)
	assert.Equal(t, 2, cg.height)
	// relative positions, independent of the BFS origin
	assert.Equal(t, lay.x[0]+1, lay.x[1])
	assert.Equal(t, lay.y[0], lay.y[1])
	assert.Equal(t, lay.y[0]+1, lay.y[2])
	assert.Equal(t, lay.x[0], lay.x[2])
	assert.Equal(t, 0, cg.at(lay.x[0], lay.y[0]))
	assert.Equal(t, 3, cg.at(lay.x[0]+1, lay.y[0]+1))
	assert.Equal(t, none, cg.at(lay.x[0]+5, lay.y[0]))
}

func TestGridAssignmentComponents(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	// two patches far apart form two isolated components
	nets := []patch.Net{
		latticeNet(0, 0, 0, 0),
		latticeNet(1, 10, 10, 0),
	}
	lay := assignGrid(buildAdjacency(nets, tol))
	if len(lay.grids) != 2 {
		t.Fatalf("expected 2 components, got %d", len(lay.grids))
	}
	assert.NotEqual(t, lay.comp[0], lay.comp[1])
}

func TestConsolidateSingle(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	mask := patch.MaskVMin | patch.MaskUMin
	sps := Consolidate([]patch.Net{latticeNet(0, 0, 0, mask)}, tol)
	if len(sps) != 1 {
		t.Fatalf("expected 1 superpatch, got %d", len(sps))
	}
	sp := &sps[0]
	assert.Equal(t, 1, sp.WidthCells)
	assert.Equal(t, 1, sp.HeightCells)
	assert.Equal(t, 1, sp.CellArea())
	assert.Equal(t, mask, sp.Mask)
	// u-major transposition of the v-major net
	for u := 0; u < 4; u++ {
		for v := 0; v < 4; v++ {
			assert.Equal(t, quilt.Pt(float64(u), float64(v), 0), sp.Control[u][v])
		}
	}
}

func TestConsolidateGrid(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	nets := []patch.Net{
		latticeNet(0, 0, 0, 0),
		latticeNet(1, 1, 0, 0),
		latticeNet(2, 0, 1, 0),
		latticeNet(3, 1, 1, 0),
	}
	sps := Consolidate(nets, tol)
	if len(sps) != 1 {
		t.Fatalf("expected a single fused superpatch, got %d", len(sps))
	}
	sp := &sps[0]
	assert.Equal(t, 2, sp.WidthCells)
	assert.Equal(t, 2, sp.HeightCells)
	if len(sp.Control) != 7 || len(sp.Control[0]) != 7 {
		t.Fatalf("expected a 7×7 control grid, got %d×%d",
			len(sp.Control), len(sp.Control[0]))
	}
	for u := 0; u < 7; u++ {
		for v := 0; v < 7; v++ {
			assert.Equal(t, quilt.Pt(float64(u), float64(v), 0), sp.Control[u][v])
		}
	}
	assert.Equal(t, patch.Mask(0), sp.Mask)
}

func TestConsolidateCombinedMask(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	// a 2×1 strip whose outer edges are clamped on the far sides
	nets := []patch.Net{
		latticeNet(0, 0, 0, patch.MaskUMin|patch.MaskVMin),
		latticeNet(1, 1, 0, patch.MaskUMax),
	}
	sps := Consolidate(nets, tol)
	if len(sps) != 1 {
		t.Fatalf("expected 1 superpatch, got %d", len(sps))
	}
	assert.Equal(t, 2, sps[0].WidthCells)
	assert.True(t, sps[0].Mask.Has(patch.MaskUMin))
	assert.True(t, sps[0].Mask.Has(patch.MaskUMax))
	assert.True(t, sps[0].Mask.Has(patch.MaskVMin))
	assert.False(t, sps[0].Mask.Has(patch.MaskVMax))
}

func TestConsolidateLShape(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	// three cells in an L: the raster pass fuses the 2×1 top strip,
	// the remaining cell stays 1×1, and no further merge fits
	nets := []patch.Net{
		latticeNet(0, 0, 0, 0),
		latticeNet(1, 1, 0, 0),
		latticeNet(2, 0, 1, 0),
	}
	sps := Consolidate(nets, tol)
	if len(sps) != 2 {
		t.Fatalf("expected 2 superpatches, got %d", len(sps))
	}
	total := 0
	for i := range sps {
		total += sps[i].CellArea()
	}
	assert.Equal(t, 3, total)
}

func TestConsolidateReversedInputOrder(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	// the same 3×3 block regardless of input order: the BFS origin is
	// the first patch, here the bottom-right cell, so grid coordinates
	// run negative and must not yield overlapping rectangles
	var nets []patch.Net
	for gy := 2; gy >= 0; gy-- {
		for gx := 2; gx >= 0; gx-- {
			nets = append(nets, latticeNet(len(nets), gx, gy, 0))
		}
	}
	sps := Consolidate(nets, tol)
	if len(sps) != 1 {
		t.Fatalf("expected a single fused superpatch, got %d", len(sps))
	}
	sp := &sps[0]
	assert.Equal(t, 3, sp.WidthCells)
	assert.Equal(t, 3, sp.HeightCells)
	assert.Equal(t, 9, sp.CellArea())
	if len(sp.Control) != 10 || len(sp.Control[0]) != 10 {
		t.Fatalf("expected a 10×10 control grid, got %d×%d",
			len(sp.Control), len(sp.Control[0]))
	}
	for u := 0; u < 10; u++ {
		for v := 0; v < 10; v++ {
			assert.Equal(t, quilt.Pt(float64(u), float64(v), 0), sp.Control[u][v])
		}
	}
}

func TestConsolidateCoversEachCellOnce(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	// BFS starts at the top cell, placing its left-down neighbor at a
	// negative x; rectangle growth must not re-cover the cell below
	// the origin when scanning reaches that neighbor
	nets := []patch.Net{
		latticeNet(0, 1, 0, 0),
		latticeNet(1, 0, 1, 0),
		latticeNet(2, 1, 1, 0),
	}
	sps := Consolidate(nets, tol)
	if len(sps) != 2 {
		t.Fatalf("expected 2 superpatches, got %d", len(sps))
	}
	total := 0
	for i := range sps {
		total += sps[i].CellArea()
	}
	assert.Equal(t, 3, total)
}

func TestFuseRectangleConflict(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	// two grid-adjacent patches whose shared column disagrees grossly:
	// fusion must degrade to un-merged 1×1 superpatches
	a := latticeNet(0, 0, 0, 0)
	b := latticeNet(1, 1, 0, 0)
	for v := 0; v < 4; v++ {
		b.Control[v][0].Z += 1.0
	}
	nets := []patch.Net{a, b}
	lay := &layout{
		x:      []int{0, 1},
		y:      []int{0, 0},
		placed: []bool{true, true},
		comp:   []int{0, 0},
	}
	cg := componentGrid{minX: 0, minY: 0, width: 2, height: 1, cells: []int{0, 1}}
	lay.grids = []componentGrid{cg}

	outcome := fuseRectangle(nets, lay, &lay.grids[0], 0, 0, 2, 1, tol)
	if outcome.merged != nil {
		t.Fatalf("expected the conflicting rectangle not to merge")
	}
	if len(outcome.unmerged) != 2 {
		t.Fatalf("expected 2 fallback superpatches, got %d", len(outcome.unmerged))
	}
	for i := range outcome.unmerged {
		assert.Equal(t, 1, outcome.unmerged[i].CellArea())
	}
}

// superpatchAt hand-builds a 1×1 superpatch on the shared lattice, as
// if rectangle fusion had degraded.
func superpatchAt(gx, gy int, mask patch.Mask) Superpatch {
	control := make([][]quilt.Point3, 4)
	for u := range control {
		control[u] = make([]quilt.Point3, 4)
		for v := 0; v < 4; v++ {
			control[u][v] = quilt.Pt(float64(3*gx+u), float64(3*gy+v), 0)
		}
	}
	return Superpatch{
		Control:     control,
		WidthCells:  1,
		HeightCells: 1,
		OriginX:     gx,
		OriginY:     gy,
		Component:   0,
		Mask:        mask,
	}
}

func TestCoalesceHorizontal(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	a := superpatchAt(0, 0, patch.MaskUMin|patch.MaskVMin)
	b := superpatchAt(1, 0, patch.MaskUMax|patch.MaskVMin)
	sps := coalesce([]Superpatch{a, b}, tol)
	if len(sps) != 1 {
		t.Fatalf("expected 1 superpatch after coalescing, got %d", len(sps))
	}
	sp := &sps[0]
	assert.Equal(t, 2, sp.WidthCells)
	assert.Equal(t, 1, sp.HeightCells)
	if len(sp.Control) != 7 || len(sp.Control[0]) != 4 {
		t.Fatalf("expected a 7×4 control grid, got %d×%d",
			len(sp.Control), len(sp.Control[0]))
	}
	assert.Equal(t, quilt.Pt(6, 0, 0), sp.Control[6][0])
	// a's left/top/bottom bits survive, b contributes only its right bit
	assert.Equal(t, patch.MaskUMin|patch.MaskUMax|patch.MaskVMin, sp.Mask)
}

func TestCoalesceFourQuadrants(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	sps := coalesce([]Superpatch{
		superpatchAt(0, 0, 0),
		superpatchAt(1, 0, 0),
		superpatchAt(0, 1, 0),
		superpatchAt(1, 1, 0),
	}, tol)
	if len(sps) != 1 {
		t.Fatalf("expected full coalescing into 1 superpatch, got %d", len(sps))
	}
	sp := &sps[0]
	assert.Equal(t, 4, sp.CellArea())
	if len(sp.Control) != 7 || len(sp.Control[0]) != 7 {
		t.Fatalf("expected a 7×7 control grid, got %d×%d",
			len(sp.Control), len(sp.Control[0]))
	}
	for u := 0; u < 7; u++ {
		for v := 0; v < 7; v++ {
			assert.Equal(t, quilt.Pt(float64(u), float64(v), 0), sp.Control[u][v])
		}
	}
}

func TestCoalesceStackedStrips(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	// two 2×1 strips tiling a 2×2 region collapse into one superpatch
	a, b := superpatchAt(0, 0, 0), superpatchAt(1, 0, 0)
	c, d := superpatchAt(0, 1, 0), superpatchAt(1, 1, 0)
	top := mergeHorizontal(&a, &b)
	bottom := mergeHorizontal(&c, &d)
	sps := coalesce([]Superpatch{top, bottom}, tol)
	if len(sps) != 1 {
		t.Fatalf("expected the strips to merge into 1 superpatch, got %d", len(sps))
	}
	assert.Equal(t, 2, sps[0].WidthCells)
	assert.Equal(t, 2, sps[0].HeightCells)
	assert.Equal(t, 4, sps[0].CellArea())
}

func TestCoalesceRespectsGeometry(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	a := superpatchAt(0, 0, 0)
	b := superpatchAt(1, 0, 0)
	// grid-adjacent but geometrically apart: must not merge
	for u := range b.Control {
		for v := range b.Control[u] {
			b.Control[u][v].Z += 0.5
		}
	}
	sps := coalesce([]Superpatch{a, b}, tol)
	assert.Equal(t, 2, len(sps))
}

func TestCoalesceDifferentComponents(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	a := superpatchAt(0, 0, 0)
	b := superpatchAt(1, 0, 0)
	b.Component = 1
	sps := coalesce([]Superpatch{a, b}, tol)
	assert.Equal(t, 2, len(sps))
}

func TestConsolidateEmpty(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	assert.Nil(t, Consolidate(nil, tol))
}

func TestAreaOrder(t *testing.T) {
	teardown := gotestingadapter.RedirectTracing(t)
	defer teardown()
	big := superpatchAt(0, 0, 0)
	big.WidthCells, big.HeightCells = 2, 2
	small := superpatchAt(5, 5, 0)
	medium := superpatchAt(8, 8, 0)
	medium.WidthCells = 2
	order := areaOrder([]Superpatch{big, small, medium})
	assert.Equal(t, []int{1, 2, 0}, order)
}
