package patch

import "github.com/npillmayer/quilt"

// The subdivision evaluator computes regular-patch weights from the
// plain uniform bicubic basis and then rewrites the weights of
// boundary rows/columns according to the boundary mask. To export an
// equivalent surface over the plain uniform basis, the same rewrite
// is built as a 16×16 transform and its transpose is applied to the
// control points instead.
//
// Flattening order matches the evaluator's weight layout:
// w[4*i + j], where i is the v-row and j the u-column.

// xf16 is a 16×16 weight transform, flattened by rows.
type xf16 [16 * 16]float64

func identity16() *xf16 {
	t := &xf16{}
	for i := 0; i < 16; i++ {
		t[i*16+i] = 1.0
	}
	return t
}

func (t *xf16) row(i int) []float64 {
	return t[i*16 : (i+1)*16]
}

// eliminate rewrites one boundary's worth of transform rows: the edge
// row is folded into its neighbors (interior neighbor doubled, far
// row subtracted) and then zeroed.
func (t *xf16) eliminate(edge, near, far int) {
	src := make([]float64, 16)
	copy(src, t.row(edge))
	nearRow, farRow, edgeRow := t.row(near), t.row(far), t.row(edge)
	for k := 0; k < 16; k++ {
		farRow[k] -= src[k]
		nearRow[k] += src[k] * 2.0
		edgeRow[k] = 0.0
	}
}

// Adjust corrects a regular patch's 4×4 control net for the
// boundary-clamping effects baked into the evaluator's basis. A zero
// mask returns the input unchanged. The boundary bits are applied in
// a fixed order: v-min, u-max, v-max, u-min.
//
// Adjustment must happen before any adjacency comparison: unadjusted
// nets of adjacent patches do not coincide at shared edges.
func Adjust(control [4][4]quilt.Point3, mask Mask) [4][4]quilt.Point3 {
	if mask == 0 {
		return control
	}

	trans := identity16()

	if mask.Has(MaskVMin) {
		for i := 0; i < 4; i++ {
			trans.eliminate(i, i+4, i+8)
		}
	}
	if mask.Has(MaskUMax) {
		for i := 0; i < 16; i += 4 {
			trans.eliminate(i+3, i+2, i+1)
		}
	}
	if mask.Has(MaskVMax) {
		for i := 0; i < 4; i++ {
			trans.eliminate(i+12, i+8, i+4)
		}
	}
	if mask.Has(MaskUMin) {
		for i := 0; i < 16; i += 4 {
			trans.eliminate(i, i+1, i+2)
		}
	}

	// Apply transpose(trans): P'[n] = Σ_o trans[o][n]·P[o].
	var adjusted [4][4]quilt.Point3
	for n := 0; n < 16; n++ {
		acc := quilt.Origin3
		for o := 0; o < 16; o++ {
			if w := trans[o*16+n]; w != 0.0 {
				acc = acc.Plus(control[o/4][o%4].Scaled(w))
			}
		}
		adjusted[n/4][n%4] = acc
	}
	return adjusted
}
