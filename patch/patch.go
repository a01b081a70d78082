/*
Package patch is the narrow interface to the external subdivision
evaluator's patch table, plus the per-patch extraction steps of the
consolidation pipeline: reading a regular patch's 16 control vertices,
correcting the control net for boundary-weight effects, and sampling
Gregory patches into bicubic approximations.

# BSD License

# Copyright (c) Norbert Pillmayer

All rights reserved.

Please refer to the license file for more information.
*/
package patch

import (
	"errors"
	"fmt"

	"github.com/npillmayer/quilt"
	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'quilt.patch'
func tracer() tracing.Trace {
	return tracing.Select("quilt.patch")
}

var (
	// ErrInvalidControlPoints indicates an out-of-range control vertex index
	// or a control vertex count other than 16.
	ErrInvalidControlPoints = errors.New("invalid control points configuration")
	// ErrUnsupportedPatchType indicates a non-regular patch reaching a
	// regular-only code path.
	ErrUnsupportedPatchType = errors.New("unsupported patch type")
	// ErrEvaluationFailed indicates the evaluator's sampling callback
	// returned no point.
	ErrEvaluationFailed = errors.New("patch evaluation failed")
)

// Type tags a patch in the evaluator's table.
type Type int

// Patch types as reported by the subdivision evaluator. Only Regular,
// GregoryBasis and GregoryTriangle patches take part in B-rep export;
// everything else is ignored by this pipeline.
const (
	TypeNone Type = iota
	TypePoints
	TypeLines
	TypeQuads
	TypeTriangles
	TypeRegular
	TypeGregory
	TypeGregoryBoundary
	TypeGregoryCorner
	TypeGregoryBasis
	TypeGregoryTriangle
)

func (t Type) String() string {
	switch t {
	case TypePoints:
		return "Points"
	case TypeLines:
		return "Lines"
	case TypeQuads:
		return "Quads"
	case TypeTriangles:
		return "Triangles"
	case TypeRegular:
		return "Regular"
	case TypeGregory:
		return "Gregory"
	case TypeGregoryBoundary:
		return "GregoryBoundary"
	case TypeGregoryCorner:
		return "GregoryCorner"
	case TypeGregoryBasis:
		return "GregoryBasis"
	case TypeGregoryTriangle:
		return "GregoryTriangle"
	}
	return "None"
}

// IsGregory is a predicate: is this a patch at an extraordinary vertex?
func (t Type) IsGregory() bool {
	switch t {
	case TypeGregory, TypeGregoryBoundary, TypeGregoryCorner,
		TypeGregoryBasis, TypeGregoryTriangle:
		return true
	}
	return false
}

// Exportable is a predicate: does this patch type contribute to B-rep
// output?
func (t Type) Exportable() bool {
	return t == TypeRegular || t == TypeGregoryBasis || t == TypeGregoryTriangle
}

// Mask flags the parametric edges of a patch that are clamped because
// they lie on a mesh boundary or an infinitely sharp crease. Clamped
// edges must never be merged across.
type Mask uint8

// Boundary edge bits. The evaluator clamps knot vectors on these
// edges, which makes them topologically incompatible with a neighbor
// even when coordinates coincide.
const (
	MaskVMin Mask = 1 << iota // bottom edge (v=0)
	MaskUMax                  // right edge (u=1)
	MaskVMax                  // top edge (v=1)
	MaskUMin                  // left edge (u=0)
)

// Has is a predicate: are all bits of m set in the mask?
func (bm Mask) Has(m Mask) bool {
	return bm&m == m
}

func (bm Mask) String() string {
	return fmt.Sprintf("mask(%04b)", uint8(bm))
}

// ControlBuffer is the evaluator's external control-point buffer.
// Subdivision evaluators keep vertex data in float32 triplets; the
// pipeline widens to float64 on extraction.
type ControlBuffer [][3]float32

// Point widens entry i of the buffer. Evaluator buffers can carry
// NaN/Inf garbage; widening through the checked constructor traces
// such entries.
func (cb ControlBuffer) Point(i int) quilt.Point3 {
	p := cb[i]
	return quilt.PtChecked(float64(p[0]), float64(p[1]), float64(p[2]))
}

// Table is the consolidation engine's view of the external patch
// table. Implementations wrap the native subdivision library; tests
// supply in-memory fakes.
type Table interface {
	// PatchCount returns the total number of patches.
	PatchCount() int
	// PatchType returns the type tag of patch i.
	PatchType(i int) Type
	// ControlVertices returns the 16 control-vertex indices of a
	// regular patch i, or nil for other patch types.
	ControlVertices(i int) []int
	// BoundaryMask returns the boundary bitmask of patch i.
	BoundaryMask(i int) Mask
	// EvaluatePoint evaluates patch i at parametric (u,v) against the
	// control buffer. The second return is false if the evaluator
	// cannot produce a point.
	EvaluatePoint(i int, u, v float64, ctrl ControlBuffer) (quilt.Point3, bool)
}

// Net is a patch readied for consolidation: its identity, a 4×4
// control matrix (row = v, column = u), and the boundary mask.
// Regular nets carry the boundary-adjusted control points; Gregory
// nets carry sampled approximations and a zero mask.
type Net struct {
	Index   int
	Control [4][4]quilt.Point3
	Mask    Mask
}

// Row returns row r of the control matrix.
func (n *Net) Row(r int) [4]quilt.Point3 {
	return n.Control[r]
}

// Col returns column c of the control matrix.
func (n *Net) Col(c int) [4]quilt.Point3 {
	return [4]quilt.Point3{
		n.Control[0][c], n.Control[1][c], n.Control[2][c], n.Control[3][c],
	}
}
