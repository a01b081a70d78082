/*
Package stitch welds a flat set of independent patch surfaces into a
shell with shared vertices and shared edges. Boundary curves are
sampled at a fixed number of parameter points; two edges are the same
topological edge iff their samples match forward or reversed within a
distance tolerance. Patches whose boundary loop cannot be closed are
rebuilt from straight chords or, failing that, dropped with a
diagnostic, so the output shell is always valid, possibly with holes.

# BSD License

# Copyright (c) Norbert Pillmayer

All rights reserved.

Please refer to the license file for more information.
*/
package stitch

import (
	"math"

	"github.com/npillmayer/quilt"
	"github.com/npillmayer/quilt/brep"
	"github.com/npillmayer/quilt/patch"
	"github.com/npillmayer/quilt/spline"
	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'quilt.stitch'
func tracer() tracing.Trace {
	return tracing.Select("quilt.stitch")
}

// SampleCount is the number of points sampled along each boundary
// curve, endpoints included, forming the comparison key for welding.
const SampleCount = 7

// Stats reports how one stitching pass degraded, if at all. Partial
// failures never abort the pass; they are counted here and logged.
type Stats struct {
	Faces      int // faces contributed to the shell
	SharedUses int // edge slots filled by reusing a pooled edge
	ChordWires int // wires rebuilt from straight corner chords
	Dropped    int // patches contributing no face (documented holes)
}

// Stitcher accumulates patches into a welded shell. The vertex and
// edge pools are scratch state exclusively owned by one export call:
// create a Stitcher, add every patch, take the shell, discard it.
// A Stitcher must not be shared between goroutines.
type Stitcher struct {
	tol     float64
	tolSq   float64
	verts   *vertexPool
	entries []edgeEntry
	faces   []brep.Face
	stats   Stats
}

// edgeEntry caches a pooled edge under its sample signature.
type edgeEntry struct {
	samples []quilt.Point3 // oriented front → back
	edge    brep.Edge
}

// NewStitcher creates an empty stitcher for one export call. All
// comparisons use the given tolerance.
func NewStitcher(tol float64) *Stitcher {
	return &Stitcher{
		tol:   tol,
		tolSq: tol * tol,
		verts: newVertexPool(tol),
	}
}

// Stats returns the degradation counters accumulated so far.
func (st *Stitcher) Stats() Stats {
	return st.stats
}

// Shell returns the welded shell. If not a single valid wire
// survived, the whole export is considered failed and
// patch.ErrInvalidControlPoints is returned.
func (st *Stitcher) Shell() (brep.Shell, error) {
	if st.stats.Dropped > 0 || st.stats.ChordWires > 0 {
		tracer().Infof("stitching degraded: %d dropped, %d chord wires of %d faces",
			st.stats.Dropped, st.stats.ChordWires, st.stats.Faces)
	}
	if len(st.faces) == 0 {
		return nil, patch.ErrInvalidControlPoints
	}
	return brep.Shell(st.faces), nil
}

// AddPatch stitches one patch into the shell under construction. The
// net's four boundary curves are welded against all patches processed
// so far. A patch that cannot produce a valid wire is dropped and
// counted; the error return is reserved for malformed nets, not for
// weld degradation.
func (st *Stitcher) AddPatch(net *patch.Net) {
	surface := spline.UniformSurface(transpose(net.Control))

	// Boundary curves in loop order, head to tail:
	// bottom (v00→v10), right (v10→v11), top (v11→v01), left (v01→v00).
	c := &net.Control
	curves := [4]spline.Curve{
		spline.UniformCurve([]quilt.Point3{c[0][0], c[0][1], c[0][2], c[0][3]}),
		spline.UniformCurve([]quilt.Point3{c[0][3], c[1][3], c[2][3], c[3][3]}),
		spline.UniformCurve([]quilt.Point3{c[3][3], c[3][2], c[3][1], c[3][0]}),
		spline.UniformCurve([]quilt.Point3{c[3][0], c[2][0], c[1][0], c[0][0]}),
	}
	var samples [4][]quilt.Point3
	for k, curve := range curves {
		samples[k] = curve.Sample(SampleCount)
	}

	// Corner vertices sit at the control-net corners, deduplicated
	// through the pool: adjacent patches coincide exactly in their
	// shared control points, so pooling on them is what makes welded
	// wires chain by vertex identity. Degenerate quads (a Gregory
	// triangle's collapsed edge) may alias consecutive corners; those
	// get fresh vertices so no edge becomes a self-loop.
	v00 := st.verts.lookup(c[0][0])
	v10 := st.distinct(c[0][3], v00)
	v11 := st.distinct(c[3][3], v10)
	v01 := st.distinct(c[3][0], v11)
	corners := [4]*brep.Vertex{v00, v10, v11, v01}

	wire := make(brep.Wire, 0, 4)
	for k := 0; k < 4; k++ {
		start, end := corners[k], corners[(k+1)%4]
		edge, reused := st.findEdge(samples[k])
		if !reused {
			var err error
			edge, err = st.newPooledEdge(start, end, curves[k], samples[k])
			if err != nil {
				tracer().Errorf("patch %d edge %d: %v", net.Index, k, err)
				st.stats.Dropped++
				return
			}
		} else {
			st.stats.SharedUses++
		}
		wire = append(wire, edge)
	}

	wire = st.enforceContinuity(wire)
	if err := wire.Validate(); err != nil {
		tracer().Infof("patch %d wire not closed (%v), rebuilding from chords", net.Index, err)
		chorded, cerr := chordWire(corners)
		if cerr != nil || chorded.Validate() != nil {
			tracer().Errorf("dropping patch %d: wire invalid beyond repair", net.Index)
			st.stats.Dropped++
			return
		}
		wire = chorded
		st.stats.ChordWires++
	}

	face, err := brep.NewFace(surface, wire)
	if err != nil {
		tracer().Errorf("dropping patch %d: %v", net.Index, err)
		st.stats.Dropped++
		return
	}
	st.faces = append(st.faces, face)
	st.stats.Faces++
}

// distinct pools a corner position but refuses to alias the preceding
// corner vertex.
func (st *Stitcher) distinct(p quilt.Point3, avoid *brep.Vertex) *brep.Vertex {
	if avoid.Point().Dist2(p) <= st.tolSq {
		return brep.NewVertex(p)
	}
	return st.verts.lookup(p)
}

// newPooledEdge creates an edge carrying the true boundary curve and
// registers it for reuse by later patches.
func (st *Stitcher) newPooledEdge(start, end *brep.Vertex, curve spline.Curve,
	samples []quilt.Point3) (brep.Edge, error) {
	//
	if start.ID() == end.ID() {
		end = brep.NewVertex(end.Point())
	}
	edge, err := brep.NewEdge(start, end, curve)
	if err != nil {
		return brep.Edge{}, err
	}
	st.entries = append(st.entries, edgeEntry{samples: samples, edge: edge})
	return edge, nil
}

// findEdge scans the pooled edges for a sample-signature match in
// forward or reversed orientation.
func (st *Stitcher) findEdge(candidate []quilt.Point3) (brep.Edge, bool) {
	for _, entry := range st.entries {
		if st.samplesMatch(entry.samples, candidate, false) {
			return entry.edge, true
		}
		if st.samplesMatch(entry.samples, candidate, true) {
			return entry.edge.Inverse(), true
		}
	}
	return brep.Edge{}, false
}

// samplesMatch compares two edge signatures. The endpoints are
// checked first so that the common miss is cheap.
func (st *Stitcher) samplesMatch(reference, candidate []quilt.Point3, reversed bool) bool {
	n := len(reference)
	if n != len(candidate) {
		return false
	}
	refAt := func(i int) quilt.Point3 {
		if reversed {
			return reference[n-1-i]
		}
		return reference[i]
	}
	if refAt(0).Dist2(candidate[0]) > st.tolSq ||
		refAt(n-1).Dist2(candidate[n-1]) > st.tolSq {
		return false
	}
	for i := 1; i < n-1; i++ {
		if refAt(i).Dist2(candidate[i]) > st.tolSq {
			return false
		}
	}
	return true
}

// enforceContinuity fixes edge orientation head to tail: an edge
// whose front does not meet the previous back, but whose back does,
// is inverted. Remaining gaps are left for validation to reject.
func (st *Stitcher) enforceContinuity(wire brep.Wire) brep.Wire {
	if len(wire) == 0 {
		return wire
	}
	fixed := make(brep.Wire, 0, len(wire))
	fixed = append(fixed, wire[0])
	prev := wire[0].Back()
	for _, edge := range wire[1:] {
		if edge.Front().ID() != prev.ID() && edge.Back().ID() == prev.ID() {
			edge = edge.Inverse()
		}
		prev = edge.Back()
		fixed = append(fixed, edge)
	}
	// closing edge: make it end at the loop's first vertex if flipped
	last := len(fixed) - 1
	first := fixed[0].Front()
	if fixed[last].Back().ID() != first.ID() && fixed[last].Front().ID() == first.ID() {
		fixed[last] = fixed[last].Inverse()
	}
	return fixed
}

// chordWire is the lower-fidelity fallback: a fresh loop of straight
// chords between the four corner vertices.
func chordWire(corners [4]*brep.Vertex) (brep.Wire, error) {
	// consecutive corners must be distinct vertices
	cs := corners
	for i := range cs {
		next := (i + 1) % 4
		if cs[i].ID() == cs[next].ID() {
			cs[next] = brep.NewVertex(cs[next].Point())
		}
	}
	wire := make(brep.Wire, 0, 4)
	for i := range cs {
		edge, err := brep.Chord(cs[i], cs[(i+1)%4])
		if err != nil {
			return nil, err
		}
		wire = append(wire, edge)
	}
	return wire, nil
}

// transpose converts a v-major 4×4 patch net to the u-major layout of
// surface control grids.
func transpose(control [4][4]quilt.Point3) [][]quilt.Point3 {
	points := make([][]quilt.Point3, 4)
	for u := range points {
		points[u] = make([]quilt.Point3, 4)
		for v := 0; v < 4; v++ {
			points[u][v] = control[v][u]
		}
	}
	return points
}

// === Vertex pool ===========================================================

// vertexPool deduplicates positions into shared vertices using a
// spatial grid of quantized coordinates, probing the neighboring
// cells so near-boundary positions still weld.
type vertexPool struct {
	cell float64
	grid map[[3]int64][]*brep.Vertex
	tol  float64
}

func newVertexPool(tol float64) *vertexPool {
	cell := tol
	if cell <= 0 {
		cell = quilt.Epsilon
	}
	return &vertexPool{
		cell: cell,
		grid: make(map[[3]int64][]*brep.Vertex),
		tol:  tol,
	}
}

func (vp *vertexPool) key(p quilt.Point3) [3]int64 {
	return [3]int64{
		int64(math.Floor(p.X / vp.cell)),
		int64(math.Floor(p.Y / vp.cell)),
		int64(math.Floor(p.Z / vp.cell)),
	}
}

// lookup returns the pooled vertex within tolerance of p, creating
// and registering a new one if no cell in the 3×3×3 neighborhood
// holds a match.
func (vp *vertexPool) lookup(p quilt.Point3) *brep.Vertex {
	k := vp.key(p)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				cell := [3]int64{k[0] + dx, k[1] + dy, k[2] + dz}
				for _, v := range vp.grid[cell] {
					if v.Point().Within(p, vp.tol) {
						return v
					}
				}
			}
		}
	}
	v := brep.NewVertex(p)
	vp.grid[k] = append(vp.grid[k], v)
	return v
}
