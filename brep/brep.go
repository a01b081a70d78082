/*
Package brep holds the boundary-representation topology produced by
the consolidation pipeline: shared vertices, oriented edges, closed
wires, faces and shells. Constructors validate their input and return
typed errors; there is no panic-recovery anywhere in the pipeline.

# BSD License

# Copyright (c) Norbert Pillmayer

All rights reserved.

Please refer to the license file for more information.
*/
package brep

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/npillmayer/quilt"
	"github.com/npillmayer/quilt/spline"
	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'quilt.brep'
func tracer() tracing.Trace {
	return tracing.Select("quilt.brep")
}

var (
	// ErrWireEdgeCount indicates a wire without exactly four edges.
	ErrWireEdgeCount = errors.New("wire must consist of exactly 4 edges")
	// ErrWireDuplicateEdge indicates a wire using the same edge twice.
	ErrWireDuplicateEdge = errors.New("wire must not use an edge twice")
	// ErrWireNotContiguous indicates consecutive wire edges not sharing a vertex.
	ErrWireNotContiguous = errors.New("wire edges must connect head to tail")
	// ErrEdgeDegenerate indicates an edge whose endpoints are the same vertex.
	ErrEdgeDegenerate = errors.New("edge endpoints must be distinct vertices")
)

// ids are process-global so that independent export calls may run in
// parallel without sharing any other state.
var idSeq atomic.Int64

func nextID() int64 {
	return idSeq.Add(1)
}

// === Vertices ==============================================================

// Vertex is a shared topological vertex at a fixed position.
type Vertex struct {
	id    int64
	point quilt.Point3
}

// NewVertex creates a fresh vertex. Welding duplicates is the
// stitcher's business; two vertices at the same position are distinct
// topological entities.
func NewVertex(p quilt.Point3) *Vertex {
	return &Vertex{id: nextID(), point: p}
}

// ID returns the vertex identity.
func (v *Vertex) ID() int64 { return v.id }

// Point returns the vertex position.
func (v *Vertex) Point() quilt.Point3 { return v.point }

func (v *Vertex) String() string {
	return fmt.Sprintf("v%d%s", v.id, v.point)
}

// === Edges =================================================================

// edgeCore is the orientation-independent part of an edge, shared
// between an edge and its inverse.
type edgeCore struct {
	id    int64
	front *Vertex
	back  *Vertex
	curve spline.Curve // oriented front → back
}

// Edge is an oriented reference to a shared edge. Inverting an edge
// yields a new orientation onto the same underlying entity: both
// directions report the same ID.
type Edge struct {
	core     *edgeCore
	reversed bool
}

// NewEdge creates an edge from v0 to v1 along the given curve. The
// endpoints must be distinct vertices; coincident positions are legal
// (degenerate quads collapse edges to points), identical identities
// are not.
func NewEdge(v0, v1 *Vertex, curve spline.Curve) (Edge, error) {
	if v0.ID() == v1.ID() {
		return Edge{}, fmt.Errorf("%w: %s", ErrEdgeDegenerate, v0)
	}
	return Edge{core: &edgeCore{id: nextID(), front: v0, back: v1, curve: curve}}, nil
}

// Chord creates a straight edge between two vertices, used by the
// stitcher's low-fidelity fallback wires. The control polygon extends
// one segment beyond each endpoint: the uniform basis does not
// interpolate its outer control points, so the extension makes the
// curve pass exactly through p0 at the domain start and p1 at the
// domain end.
func Chord(v0, v1 *Vertex) (Edge, error) {
	p0, p1 := v0.Point(), v1.Point()
	d := p1.Minus(p0)
	cps := []quilt.Point3{
		p0.Minus(d),
		p0,
		p1,
		p1.Plus(d),
	}
	return NewEdge(v0, v1, spline.UniformCurve(cps))
}

// ID returns the orientation-independent edge identity.
func (e Edge) ID() int64 { return e.core.id }

// Front returns the start vertex in this orientation.
func (e Edge) Front() *Vertex {
	if e.reversed {
		return e.core.back
	}
	return e.core.front
}

// Back returns the end vertex in this orientation.
func (e Edge) Back() *Vertex {
	if e.reversed {
		return e.core.front
	}
	return e.core.back
}

// Curve returns the edge geometry in this orientation.
func (e Edge) Curve() spline.Curve {
	if e.reversed {
		return e.core.curve.Reversed()
	}
	return e.core.curve
}

// Inverse returns the edge with opposite orientation.
func (e Edge) Inverse() Edge {
	return Edge{core: e.core, reversed: !e.reversed}
}

// IsZero is a predicate: is this the zero Edge value?
func (e Edge) IsZero() bool { return e.core == nil }

func (e Edge) String() string {
	return fmt.Sprintf("e%d[%s → %s]", e.ID(), e.Front(), e.Back())
}

// === Wires =================================================================

// Wire is an ordered loop of edges bounding a face.
type Wire []Edge

// Validate checks the closed-quad wire invariants: exactly four
// edges, no edge used twice, and head-to-tail contiguity including
// the wrap from the last edge back to the first. Contiguity is
// checked on vertex identity, not position: the stitcher is
// responsible for having welded shared vertices beforehand.
func (w Wire) Validate() error {
	if len(w) != 4 {
		return fmt.Errorf("%w: got %d", ErrWireEdgeCount, len(w))
	}
	seen := hashset.New()
	for _, e := range w {
		if seen.Contains(e.ID()) {
			return fmt.Errorf("%w: %s", ErrWireDuplicateEdge, e)
		}
		seen.Add(e.ID())
	}
	for i, e := range w {
		next := w[(i+1)%len(w)]
		if e.Back().ID() != next.Front().ID() {
			return fmt.Errorf("%w: edge %d back %s vs edge %d front %s",
				ErrWireNotContiguous, i, e.Back(), (i+1)%len(w), next.Front())
		}
	}
	return nil
}

// Vertices returns the loop's vertices in traversal order (front of
// each edge).
func (w Wire) Vertices() []*Vertex {
	vs := make([]*Vertex, len(w))
	for i, e := range w {
		vs[i] = e.Front()
	}
	return vs
}

// === Faces and Shells ======================================================

// Face is a B-spline surface, optionally bounded by explicit wires.
// A face without boundaries covers its full parametric domain.
type Face struct {
	Surface    spline.Surface
	Boundaries []Wire
}

// NewFace builds a face after validating every boundary wire. This is
// the single point where the "only output valid things" invariant is
// enforced; callers must not bypass it with unchecked construction.
func NewFace(surface spline.Surface, boundaries ...Wire) (Face, error) {
	for i, w := range boundaries {
		if err := w.Validate(); err != nil {
			tracer().Errorf("face boundary %d invalid: %v", i, err)
			return Face{}, err
		}
	}
	return Face{Surface: surface, Boundaries: boundaries}, nil
}

// Shell is a set of faces, possibly sharing vertices and edges.
type Shell []Face

// VertexCount counts distinct vertices over all face boundaries.
func (sh Shell) VertexCount() int {
	seen := hashset.New()
	for _, f := range sh {
		for _, w := range f.Boundaries {
			for _, e := range w {
				seen.Add(e.Front().ID())
				seen.Add(e.Back().ID())
			}
		}
	}
	return seen.Size()
}

// EdgeCount counts distinct edges over all face boundaries.
func (sh Shell) EdgeCount() int {
	seen := hashset.New()
	for _, f := range sh {
		for _, w := range f.Boundaries {
			for _, e := range w {
				seen.Add(e.ID())
			}
		}
	}
	return seen.Size()
}

// EdgeUse counts how many wires use each edge. In a watertight closed
// shell every edge is used exactly twice; boundary edges of an open
// shell are used once.
func (sh Shell) EdgeUse() map[int64]int {
	use := make(map[int64]int)
	for _, f := range sh {
		for _, w := range f.Boundaries {
			for _, e := range w {
				use[e.ID()]++
			}
		}
	}
	return use
}
