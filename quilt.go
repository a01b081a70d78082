/*
Package quilt consolidates the bicubic patch output of a subdivision
surface evaluator into a compact boundary representation: it corrects
per-patch control nets for boundary-weight effects, merges adjacent
regular patches into larger B-spline "superpatches", and welds patch
boundaries into shells with shared vertices and edges.

This root package holds the numeric foundation: 3D points and the
epsilon predicates the tolerance-driven pipeline is built on.

# BSD License

# Copyright (c) Norbert Pillmayer

All rights reserved.

Please refer to the license file for more information.
*/
package quilt

import (
	"fmt"
	"math"

	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'quilt'
func tracer() tracing.Trace {
	return tracing.Select("quilt")
}

// === Numeric Data Type =====================================================

// Epsilon : numbers below ε are considered 0
var Epsilon float64 = 0.0000001

// Is0 is a predicate: is n = 0 ?
func Is0(n float64) bool {
	return math.Abs(n) <= Epsilon
}

// Zap makes n = 0 if n "means" to be zero
func Zap(n float64) float64 {
	if Is0(n) {
		n = 0
	}
	return n
}

// === Point Data Type =======================================================

// Point3 is a point (or displacement) in 3D Euclidean space.
type Point3 struct {
	X, Y, Z float64
}

// Origin3 represents the frequently used constant (0,0,0).
var Origin3 = Pt(0, 0, 0)

// Pt is a quick notation for constructing a point from floats.
func Pt(x, y, z float64) Point3 {
	return Point3{X: x, Y: y, Z: z}
}

// PtChecked constructs a point and traces an error if any coordinate
// is not finite. Intended for ingestion paths fed by external
// evaluators, where NaN or Inf coordinates signal upstream trouble.
func PtChecked(x, y, z float64) Point3 {
	p := Pt(x, y, z)
	if !p.IsValid() {
		tracer().Errorf("non-finite point %s", p)
	}
	return p
}

// Pretty Stringer for points.
func (p Point3) String() string {
	return fmt.Sprintf("(%g,%g,%g)", p.X, p.Y, p.Z)
}

// IsValid is a predicate: are all coordinates finite numbers?
func (p Point3) IsValid() bool {
	for _, c := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Plus returns a new point translated by q.
func (p Point3) Plus(q Point3) Point3 {
	return Pt(p.X+q.X, p.Y+q.Y, p.Z+q.Z)
}

// Minus returns the displacement from q to p.
func (p Point3) Minus(q Point3) Point3 {
	return Pt(p.X-q.X, p.Y-q.Y, p.Z-q.Z)
}

// Scaled returns a new point scaled by factor a.
func (p Point3) Scaled(a float64) Point3 {
	return Pt(p.X*a, p.Y*a, p.Z*a)
}

// Dot is the dot product of p and q, read as displacement vectors.
func (p Point3) Dot(q Point3) float64 {
	return p.X*q.X + p.Y*q.Y + p.Z*q.Z
}

// Cross is the cross product of p and q, read as displacement vectors.
func (p Point3) Cross(q Point3) Point3 {
	return Pt(
		p.Y*q.Z-p.Z*q.Y,
		p.Z*q.X-p.X*q.Z,
		p.X*q.Y-p.Y*q.X,
	)
}

// Dist2 returns the squared Euclidean distance between p and q.
// The merge and stitch pipelines compare squared distances against
// squared tolerances to avoid square roots in inner loops.
func (p Point3) Dist2(q Point3) float64 {
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	return dx*dx + dy*dy + dz*dz
}

// Dist returns the Euclidean distance between p and q.
func (p Point3) Dist(q Point3) float64 {
	return math.Sqrt(p.Dist2(q))
}

// Within is a predicate: are p and q closer than tol?
func (p Point3) Within(q Point3, tol float64) bool {
	return p.Dist2(q) <= tol*tol
}

// Zap rounds all coordinates to Epsilon.
func (p Point3) Zap() Point3 {
	return Pt(Zap(p.X), Zap(p.Y), Zap(p.Z))
}

// Equal compares two points under the package Epsilon.
func (p Point3) Equal(q Point3) bool {
	return Is0(p.X-q.X) && Is0(p.Y-q.Y) && Is0(p.Z-q.Z)
}

// Interp linearly interpolates between p and q; t=0 yields p, t=1
// yields q.
func (p Point3) Interp(q Point3, t float64) Point3 {
	return p.Scaled(1 - t).Plus(q.Scaled(t))
}
