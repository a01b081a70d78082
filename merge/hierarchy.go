package merge

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/npillmayer/quilt"
	"github.com/npillmayer/quilt/patch"
)

// Edge extraction on u-major superpatch control nets.

func (sp *Superpatch) leftEdge() []quilt.Point3 {
	return sp.Control[0]
}

func (sp *Superpatch) rightEdge() []quilt.Point3 {
	return sp.Control[len(sp.Control)-1]
}

func (sp *Superpatch) topEdge() []quilt.Point3 {
	edge := make([]quilt.Point3, len(sp.Control))
	for u, col := range sp.Control {
		edge[u] = col[0]
	}
	return edge
}

func (sp *Superpatch) bottomEdge() []quilt.Point3 {
	vMax := len(sp.Control[0]) - 1
	edge := make([]quilt.Point3, len(sp.Control))
	for u, col := range sp.Control {
		edge[u] = col[vMax]
	}
	return edge
}

func edgesMatch(a, b []quilt.Point3, tolSq float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if a[k].Dist2(b[k]) > tolSq {
			return false
		}
	}
	return true
}

// areaOrder yields superpatch indices ascending by cell area, stable
// within equal areas. A sorted map keyed on area buckets the indices;
// iterating it smallest-first realizes the merge priority.
func areaOrder(sps []Superpatch) []int {
	byArea := treemap.NewWithIntComparator()
	for i := range sps {
		a := sps[i].CellArea()
		if bucket, ok := byArea.Get(a); ok {
			byArea.Put(a, append(bucket.([]int), i))
		} else {
			byArea.Put(a, []int{i})
		}
	}
	order := make([]int, 0, len(sps))
	it := byArea.Iterator()
	for it.Next() {
		order = append(order, it.Value().([]int)...)
	}
	return order
}

// coalesce repeatedly re-scans surviving superpatches smallest-first
// and merges any two that are grid-adjacent and edge-compatible,
// horizontally or vertically. Each superpatch takes part in at most
// one merge per pass; passes repeat until one completes with zero
// merges. Prioritizing small patches lets power-of-two-shaped regions
// collapse fully.
func coalesce(sps []Superpatch, tol float64) []Superpatch {
	tolSq := tol * tol
	for {
		order := areaOrder(sps)
		used := make([]bool, len(sps))
		next := make([]Superpatch, 0, len(sps))
		mergedAny := false

		for pos, i := range order {
			if used[i] {
				continue
			}
			spI := &sps[i]
			rightI := spI.rightEdge()
			bottomI := spI.bottomEdge()
			merged := false

			for _, j := range order[pos+1:] {
				if used[j] {
					continue
				}
				spJ := &sps[j]

				// Horizontal: same component and height, i directly left of j.
				if spI.Component == spJ.Component &&
					spI.HeightCells == spJ.HeightCells &&
					spI.OriginY == spJ.OriginY &&
					spI.OriginX+spI.WidthCells == spJ.OriginX &&
					edgesMatch(rightI, spJ.leftEdge(), tolSq) {
					next = append(next, mergeHorizontal(spI, spJ))
					used[i], used[j] = true, true
					merged, mergedAny = true, true
					break
				}

				// Vertical: same component and width, i directly above j.
				if spI.Component == spJ.Component &&
					spI.WidthCells == spJ.WidthCells &&
					spI.OriginX == spJ.OriginX &&
					spI.OriginY+spI.HeightCells == spJ.OriginY &&
					edgesMatch(bottomI, spJ.topEdge(), tolSq) {
					next = append(next, mergeVertical(spI, spJ))
					used[i], used[j] = true, true
					merged, mergedAny = true, true
					break
				}
			}

			if !merged {
				used[i] = true
				next = append(next, *spI)
			}
		}

		sps = next
		if !mergedAny {
			return sps
		}
		tracer().Debugf("merge pass complete, %d superpatches remain", len(sps))
	}
}

// mergeHorizontal concatenates control columns of a (left) and b
// (right), dropping b's duplicated shared column. The combined mask
// keeps a's left/top/bottom bits and b's right bit.
func mergeHorizontal(a, b *Superpatch) Superpatch {
	control := make([][]quilt.Point3, 0, len(a.Control)+len(b.Control)-1)
	for _, col := range a.Control {
		control = append(control, append([]quilt.Point3(nil), col...))
	}
	for _, col := range b.Control[1:] {
		control = append(control, append([]quilt.Point3(nil), col...))
	}
	return Superpatch{
		Control:     control,
		WidthCells:  a.WidthCells + b.WidthCells,
		HeightCells: a.HeightCells,
		OriginX:     a.OriginX,
		OriginY:     a.OriginY,
		Component:   a.Component,
		Mask: a.Mask&(patch.MaskVMin|patch.MaskVMax|patch.MaskUMin) |
			b.Mask&patch.MaskUMax,
	}
}

// mergeVertical concatenates control rows of top and bottom per
// column, dropping bottom's duplicated shared row. The combined mask
// keeps top's left/right/top bits and bottom's bottom bit.
func mergeVertical(top, bottom *Superpatch) Superpatch {
	control := make([][]quilt.Point3, len(top.Control))
	for u := range control {
		col := make([]quilt.Point3, 0, len(top.Control[u])+len(bottom.Control[u])-1)
		col = append(col, top.Control[u]...)
		col = append(col, bottom.Control[u][1:]...)
		control[u] = col
	}
	return Superpatch{
		Control:     control,
		WidthCells:  top.WidthCells,
		HeightCells: top.HeightCells + bottom.HeightCells,
		OriginX:     top.OriginX,
		OriginY:     top.OriginY,
		Component:   top.Component,
		Mask: top.Mask&(patch.MaskUMax|patch.MaskVMax|patch.MaskUMin) |
			bottom.Mask&patch.MaskVMin,
	}
}
