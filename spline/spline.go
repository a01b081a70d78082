/*
Package spline implements cubic B-spline curves and tensor-product
surfaces over uniform integer knot vectors, as produced by subdivision
patch evaluators. Control nets are authored for the plain uniform
basis; evaluation uses de Boor's algorithm.

# BSD License

# Copyright (c) Norbert Pillmayer

All rights reserved.

Please refer to the license file for more information.
*/
package spline

import (
	"errors"
	"fmt"

	"github.com/npillmayer/quilt"
	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'quilt.spline'
func tracer() tracing.Trace {
	return tracing.Select("quilt.spline")
}

// Degree of all curves and surfaces in this package. Subdivision
// evaluators emit bicubic patches exclusively.
const Degree = 3

var (
	// ErrTooFewControlPoints indicates a control net smaller than degree+1.
	ErrTooFewControlPoints = errors.New("spline needs at least degree+1 control points")
	// ErrKnotCountMismatch indicates a knot vector not matching the control count.
	ErrKnotCountMismatch = errors.New("knot count must be control count + degree + 1")
	// ErrRaggedControlNet indicates surface control columns of unequal length.
	ErrRaggedControlNet = errors.New("surface control net must be rectangular")
)

// KnotVec is a non-decreasing sequence of knot values.
type KnotVec []float64

// UniformKnots builds the uniform integer knot vector
// [-3, -2, ..., n] for n control points of degree 3, i.e. the family
// [-3,-2,-1,0,1,2,3,4] for a single bicubic patch. Control nets from
// the subdivision evaluator are authored for exactly this basis.
func UniformKnots(n int) KnotVec {
	knots := make(KnotVec, n+Degree+1)
	for k := range knots {
		knots[k] = float64(k - Degree)
	}
	return knots
}

// Domain is the parameter interval on which a spline with this knot
// vector and degree 3 is defined.
func (kv KnotVec) Domain() (float64, float64) {
	return kv[Degree], kv[len(kv)-Degree-1]
}

// span locates the knot interval [kv[i], kv[i+1]) containing t,
// clamped to the valid domain.
func (kv KnotVec) span(t float64) int {
	lo, hi := Degree, len(kv)-Degree-1
	if t >= kv[hi] {
		return hi - 1
	}
	if t <= kv[lo] {
		return lo
	}
	for i := lo; i < hi; i++ {
		if t < kv[i+1] {
			return i
		}
	}
	return hi - 1
}

// === Curves ================================================================

// Curve is a cubic B-spline curve.
type Curve struct {
	Knots  KnotVec
	Points []quilt.Point3
}

// NewCurve validates the control/knot configuration and returns a
// curve. The knot vector may be nil, in which case the uniform integer
// knots are supplied.
func NewCurve(knots KnotVec, points []quilt.Point3) (Curve, error) {
	if len(points) < Degree+1 {
		return Curve{}, fmt.Errorf("%w: got %d", ErrTooFewControlPoints, len(points))
	}
	if knots == nil {
		knots = UniformKnots(len(points))
	}
	if len(knots) != len(points)+Degree+1 {
		return Curve{}, fmt.Errorf("%w: %d knots for %d points",
			ErrKnotCountMismatch, len(knots), len(points))
	}
	return Curve{Knots: knots, Points: points}, nil
}

// UniformCurve wraps a control polygon in a curve over the uniform
// integer basis. It panics on control nets smaller than 4 points;
// callers in this module always pass rows or columns of validated
// patch nets.
func UniformCurve(points []quilt.Point3) Curve {
	c, err := NewCurve(nil, points)
	if err != nil {
		tracer().Errorf("invalid uniform curve: %v", err)
		panic(err)
	}
	return c
}

// Domain returns the parameter interval of the curve.
func (c Curve) Domain() (float64, float64) {
	return c.Knots.Domain()
}

// At evaluates the curve at parameter t using de Boor's algorithm.
// Parameters outside the domain are clamped.
func (c Curve) At(t float64) quilt.Point3 {
	t0, t1 := c.Domain()
	if t < t0 {
		t = t0
	} else if t > t1 {
		t = t1
	}
	k := c.Knots.span(t)

	// de Boor triangle over the degree+1 relevant control points
	var d [Degree + 1]quilt.Point3
	for j := 0; j <= Degree; j++ {
		d[j] = c.Points[j+k-Degree]
	}
	for r := 1; r <= Degree; r++ {
		for j := Degree; j >= r; j-- {
			i := j + k - Degree
			denom := c.Knots[i+Degree-r+1] - c.Knots[i]
			var alpha float64
			if !quilt.Is0(denom) {
				alpha = (t - c.Knots[i]) / denom
			}
			d[j] = d[j-1].Interp(d[j], alpha)
		}
	}
	return d[Degree]
}

// Sample evaluates the curve at n parameters spread evenly across its
// domain, endpoints included.
func (c Curve) Sample(n int) []quilt.Point3 {
	t0, t1 := c.Domain()
	if n <= 1 {
		return []quilt.Point3{c.At((t0 + t1) / 2)}
	}
	step := (t1 - t0) / float64(n-1)
	pts := make([]quilt.Point3, n)
	for i := range pts {
		pts[i] = c.At(t0 + step*float64(i))
	}
	return pts
}

// Reversed returns the curve with inverted orientation.
func (c Curve) Reversed() Curve {
	n := len(c.Points)
	points := make([]quilt.Point3, n)
	for i, p := range c.Points {
		points[n-1-i] = p
	}
	// mirror the knot vector around the domain midpoint
	m := len(c.Knots)
	t0, t1 := c.Domain()
	knots := make(KnotVec, m)
	for i, t := range c.Knots {
		knots[m-1-i] = t0 + t1 - t
	}
	return Curve{Knots: knots, Points: points}
}

// === Surfaces ==============================================================

// Surface is a bicubic tensor-product B-spline surface. The control
// net is u-major: Points[u][v].
type Surface struct {
	UKnots KnotVec
	VKnots KnotVec
	Points [][]quilt.Point3
}

// NewSurface validates the control/knot configuration and returns a
// surface. Nil knot vectors default to the uniform integer basis.
func NewSurface(uknots, vknots KnotVec, points [][]quilt.Point3) (Surface, error) {
	if len(points) < Degree+1 {
		return Surface{}, fmt.Errorf("%w: %d control columns", ErrTooFewControlPoints, len(points))
	}
	nv := len(points[0])
	for _, col := range points {
		if len(col) != nv {
			return Surface{}, ErrRaggedControlNet
		}
	}
	if nv < Degree+1 {
		return Surface{}, fmt.Errorf("%w: %d control rows", ErrTooFewControlPoints, nv)
	}
	if uknots == nil {
		uknots = UniformKnots(len(points))
	}
	if vknots == nil {
		vknots = UniformKnots(nv)
	}
	if len(uknots) != len(points)+Degree+1 || len(vknots) != nv+Degree+1 {
		return Surface{}, fmt.Errorf("%w: %d/%d knots for %d×%d points",
			ErrKnotCountMismatch, len(uknots), len(vknots), len(points), nv)
	}
	return Surface{UKnots: uknots, VKnots: vknots, Points: points}, nil
}

// UniformSurface wraps a u-major control net in a surface over the
// uniform integer basis, panicking on invalid nets. Callers in this
// module always pass grids assembled from validated 4×4 patches.
func UniformSurface(points [][]quilt.Point3) Surface {
	s, err := NewSurface(nil, nil, points)
	if err != nil {
		tracer().Errorf("invalid uniform surface: %v", err)
		panic(err)
	}
	return s
}

// At evaluates the surface at (u,v): first each control column as a
// v-curve, then the resulting points as a u-curve.
func (s Surface) At(u, v float64) quilt.Point3 {
	uv := make([]quilt.Point3, len(s.Points))
	for i, col := range s.Points {
		uv[i] = Curve{Knots: s.VKnots, Points: col}.At(v)
	}
	return Curve{Knots: s.UKnots, Points: uv}.At(u)
}

// Domain returns the parameter rectangle of the surface.
func (s Surface) Domain() (u0, u1, v0, v1 float64) {
	u0, u1 = s.UKnots.Domain()
	v0, v1 = s.VKnots.Domain()
	return
}
