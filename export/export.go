/*
Package export is the orchestration layer of the consolidation
pipeline: it turns an evaluator's patch table into B-spline surfaces
or B-rep shells, routed by an options struct. Routing degrades
gracefully: the superpatch path falls back to stitched export, which
falls back to disconnected per-patch faces, so a caller always gets
the best representation the input admits.

# BSD License

# Copyright (c) Norbert Pillmayer

All rights reserved.

Please refer to the license file for more information.
*/
package export

import (
	"github.com/npillmayer/quilt"
	"github.com/npillmayer/quilt/brep"
	"github.com/npillmayer/quilt/merge"
	"github.com/npillmayer/quilt/patch"
	"github.com/npillmayer/quilt/spline"
	"github.com/npillmayer/quilt/stitch"
	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'quilt.export'
func tracer() tracing.Trace {
	return tracing.Select("quilt.export")
}

// Accuracy selects how Gregory patches are approximated by B-spline
// surfaces.
type Accuracy int

const (
	// BSplineApprox samples a Gregory patch on a 4×4 grid, yielding a
	// single bicubic patch. Cheap, continuous with neighbors only
	// approximately.
	BSplineApprox Accuracy = iota
	// HighPrecision samples on an 8×8 grid, yielding an 8×8 control
	// net that tracks the Gregory geometry considerably closer.
	HighPrecision
)

// Options steers export routing. The zero value is not useful; start
// from DefaultOptions.
type Options struct {
	// GregoryAccuracy selects the Gregory approximation fidelity.
	GregoryAccuracy Accuracy
	// Tolerance is the geometric tolerance for all welding and merging
	// comparisons.
	Tolerance float64
	// StitchEdges welds shared vertices and edges between neighboring
	// faces instead of emitting disconnected faces.
	StitchEdges bool
	// UseSuperpatches merges grids of regular patches into larger
	// B-spline surfaces before export.
	UseSuperpatches bool
	// ExplicitBoundaries bounds each face with its four boundary
	// B-spline curves rather than straight corner chords.
	ExplicitBoundaries bool
}

// DefaultOptions returns the recommended export configuration.
func DefaultOptions() Options {
	return Options{
		GregoryAccuracy: BSplineApprox,
		Tolerance:       1e-6,
		UseSuperpatches: true,
	}
}

// === Surface export ========================================================

// Surfaces converts every exportable patch of the table into an
// independent B-spline surface, using default options.
func Surfaces(tbl patch.Table, ctrl patch.ControlBuffer) []spline.Surface {
	return SurfacesWithOptions(tbl, ctrl, DefaultOptions())
}

// SurfacesWithOptions converts every exportable patch of the table
// into an independent B-spline surface. Regular patches become their
// boundary-adjusted bicubic nets; Gregory patches are sampled at the
// configured accuracy. Failing patches are logged and skipped.
func SurfacesWithOptions(tbl patch.Table, ctrl patch.ControlBuffer, opts Options) []spline.Surface {
	var surfaces []spline.Surface
	for i := 0; i < tbl.PatchCount(); i++ {
		t := tbl.PatchType(i)
		if !t.Exportable() {
			continue
		}
		s, err := patchSurface(tbl, i, ctrl, opts)
		if err != nil {
			tracer().Errorf("skipping patch %d (%s): %v", i, t, err)
			continue
		}
		surfaces = append(surfaces, s)
	}
	return surfaces
}

// SurfacesNonRegular converts only the Gregory patches, for callers
// that substitute externally built surfaces for the regular patches.
func SurfacesNonRegular(tbl patch.Table, ctrl patch.ControlBuffer, opts Options) []spline.Surface {
	var surfaces []spline.Surface
	for i := 0; i < tbl.PatchCount(); i++ {
		t := tbl.PatchType(i)
		if !t.Exportable() || t == patch.TypeRegular {
			continue
		}
		s, err := patchSurface(tbl, i, ctrl, opts)
		if err != nil {
			tracer().Errorf("skipping patch %d (%s): %v", i, t, err)
			continue
		}
		surfaces = append(surfaces, s)
	}
	return surfaces
}

// SuperpatchSurfaces consolidates the regular patches into merged
// superpatch surfaces. Gregory patches are not included; combine with
// SurfacesNonRegular for full coverage.
func SuperpatchSurfaces(tbl patch.Table, ctrl patch.ControlBuffer, opts Options) []spline.Surface {
	nets := patch.CollectRegular(tbl, ctrl)
	sps := merge.Consolidate(nets, opts.Tolerance)
	surfaces := make([]spline.Surface, 0, len(sps))
	for i := range sps {
		surfaces = append(surfaces, spline.UniformSurface(sps[i].Control))
	}
	return surfaces
}

// patchSurface converts one exportable patch, honoring the Gregory
// accuracy option.
func patchSurface(tbl patch.Table, i int, ctrl patch.ControlBuffer, opts Options) (spline.Surface, error) {
	t := tbl.PatchType(i)
	if t.IsGregory() && opts.GregoryAccuracy == HighPrecision {
		return gregoryHighPrecision(tbl, i, ctrl)
	}
	net, err := patch.Extract(tbl, i, ctrl)
	if err != nil {
		return spline.Surface{}, err
	}
	return spline.UniformSurface(gridFromNet(&net)), nil
}

// highPrecisionN is the per-direction sample count of the
// high-precision Gregory approximation.
const highPrecisionN = 8

// gregoryHighPrecision samples a Gregory patch on an 8×8 parameter
// grid and wraps the samples as an 8×8 B-spline control net over the
// uniform integer basis. Gregory triangles get their out-of-domain
// samples projected onto the hypotenuse, as in the 4×4 case.
func gregoryHighPrecision(tbl patch.Table, idx int, ctrl patch.ControlBuffer) (spline.Surface, error) {
	triangular := tbl.PatchType(idx) == patch.TypeGregoryTriangle
	points := make([][]quilt.Point3, highPrecisionN)
	for i := range points {
		points[i] = make([]quilt.Point3, highPrecisionN)
		for j := range points[i] {
			u := float64(i) / float64(highPrecisionN-1)
			v := float64(j) / float64(highPrecisionN-1)
			if triangular && u+v > 1.0 {
				sum := u + v
				u, v = u/sum, v/sum
			}
			p, ok := tbl.EvaluatePoint(idx, u, v, ctrl)
			if !ok {
				return spline.Surface{}, patch.ErrEvaluationFailed
			}
			points[i][j] = p
		}
	}
	return spline.UniformSurface(points), nil
}

// === Shell export ==========================================================

// Shell converts the table into a single shell of disconnected faces,
// one per exportable patch. Superpatch merging is honored when
// enabled; failing patches are logged and skipped. An empty result is
// an error.
func Shell(tbl patch.Table, ctrl patch.ControlBuffer, opts Options) (brep.Shell, error) {
	var shell brep.Shell
	add := func(grid [][]quilt.Point3) {
		face, err := gridFace(grid, opts.ExplicitBoundaries)
		if err != nil {
			tracer().Errorf("skipping face: %v", err)
			return
		}
		shell = append(shell, face)
	}

	if opts.UseSuperpatches {
		nets := patch.CollectRegular(tbl, ctrl)
		for _, sp := range merge.Consolidate(nets, opts.Tolerance) {
			add(sp.Control)
		}
		for i := 0; i < tbl.PatchCount(); i++ {
			t := tbl.PatchType(i)
			if !t.Exportable() || t == patch.TypeRegular {
				continue
			}
			net, err := patch.Extract(tbl, i, ctrl)
			if err != nil {
				tracer().Errorf("skipping patch %d (%s): %v", i, t, err)
				continue
			}
			add(gridFromNet(&net))
		}
	} else {
		for _, net := range patch.CollectExportable(tbl, ctrl) {
			add(gridFromNet(&net))
		}
	}

	if len(shell) == 0 {
		return nil, patch.ErrInvalidControlPoints
	}
	return shell, nil
}

// Shells converts the table into one single-face shell per patch, for
// interchange formats that want each face as its own body.
func Shells(tbl patch.Table, ctrl patch.ControlBuffer, opts Options) ([]brep.Shell, error) {
	shell, err := Shell(tbl, ctrl, opts)
	if err != nil {
		return nil, err
	}
	shells := make([]brep.Shell, len(shell))
	for i, f := range shell {
		shells[i] = brep.Shell{f}
	}
	return shells, nil
}

// StitchedShell converts the table into a welded shell: neighboring
// faces share vertices and edges within the tolerance. Only 4×4 nets
// take part; the Gregory accuracy option does not apply here.
func StitchedShell(tbl patch.Table, ctrl patch.ControlBuffer, opts Options) (brep.Shell, error) {
	st := stitch.NewStitcher(opts.Tolerance)
	for _, net := range patch.CollectExportable(tbl, ctrl) {
		st.AddPatch(&net)
	}
	return st.Shell()
}

// StepShell is the routing entry point for STEP-bound export: the
// superpatch path first, then stitched, then disconnected faces. Each
// step that produces nothing falls through to the next.
func StepShell(tbl patch.Table, ctrl patch.ControlBuffer, opts Options) (brep.Shell, error) {
	if opts.UseSuperpatches {
		shell, err := Shell(tbl, ctrl, opts)
		if err == nil {
			return shell, nil
		}
		tracer().Infof("superpatch export produced no faces, falling back")
		opts.UseSuperpatches = false
	}
	if opts.StitchEdges {
		shell, err := StitchedShell(tbl, ctrl, opts)
		if err == nil {
			return shell, nil
		}
		tracer().Infof("stitched export produced no faces, falling back")
	}
	return Shell(tbl, ctrl, opts)
}

// === Gap filling ===========================================================

// TriangularPatch builds a degenerate bicubic quad filling a
// triangular gap: the edge between the first two corners is collapsed
// onto apex, the opposite edge spans p1 to p2, and the interior is
// pulled toward center. Used for hole filling next to extraordinary
// vertices when no Gregory patch covers the gap.
func TriangularPatch(apex, p1, p2, center quilt.Point3) spline.Surface {
	points := make([][]quilt.Point3, 4)
	for u := range points {
		points[u] = make([]quilt.Point3, 4)
	}
	for u := 0; u < 4; u++ {
		t := float64(u) / 3.0
		points[u][0] = apex             // collapsed edge
		points[u][3] = p1.Interp(p2, t) // far edge
		points[u][1] = center           // interior
		points[u][2] = center
	}
	// side edges run straight from the apex
	for v := 0; v < 4; v++ {
		t := float64(v) / 3.0
		points[0][v] = apex.Interp(p1, t)
		points[3][v] = apex.Interp(p2, t)
	}
	return spline.UniformSurface(points)
}

// === Face construction =====================================================

// gridFromNet transposes a v-major 4×4 patch net into the u-major
// layout of surface control grids.
func gridFromNet(net *patch.Net) [][]quilt.Point3 {
	points := make([][]quilt.Point3, 4)
	for u := range points {
		points[u] = make([]quilt.Point3, 4)
		for v := 0; v < 4; v++ {
			points[u][v] = net.Control[v][u]
		}
	}
	return points
}

// gridFace wraps a u-major control grid in a face with a fresh
// 4-vertex boundary wire. With explicit boundaries the wire edges
// carry the B-spline curves of the boundary control rows/columns;
// otherwise they are straight chords between the surface corners.
func gridFace(points [][]quilt.Point3, explicit bool) (brep.Face, error) {
	surface := spline.UniformSurface(points)
	if explicit {
		return boundaryFace(surface, points)
	}
	return chordFace(surface)
}

// chordFace bounds the surface by straight chords between its four
// evaluated domain corners.
func chordFace(surface spline.Surface) (brep.Face, error) {
	u0, u1, v0, v1 := surface.Domain()
	corners := [4]*brep.Vertex{
		brep.NewVertex(surface.At(u0, v0)),
		brep.NewVertex(surface.At(u1, v0)),
		brep.NewVertex(surface.At(u1, v1)),
		brep.NewVertex(surface.At(u0, v1)),
	}
	wire := make(brep.Wire, 0, 4)
	for k := range corners {
		edge, err := brep.Chord(corners[k], corners[(k+1)%4])
		if err != nil {
			return brep.Face{}, err
		}
		wire = append(wire, edge)
	}
	return brep.NewFace(surface, wire)
}

// boundaryFace bounds the surface by the four boundary curves of its
// control grid, in loop order bottom, right, top, left. The corner
// vertices sit at the grid's corner control points, as in the
// stitcher; topological contiguity comes from sharing the vertex
// objects.
func boundaryFace(surface spline.Surface, points [][]quilt.Point3) (brep.Face, error) {
	curves := boundaryCurves(points)
	var corners [4]*brep.Vertex
	for k, c := range curves {
		corners[k] = brep.NewVertex(c.Points[0])
	}
	wire := make(brep.Wire, 0, 4)
	for k := range curves {
		edge, err := brep.NewEdge(corners[k], corners[(k+1)%4], curves[k])
		if err != nil {
			return brep.Face{}, err
		}
		wire = append(wire, edge)
	}
	return brep.NewFace(surface, wire)
}

// boundaryCurves extracts the four boundary control polygons of a
// u-major grid as curves in loop order: v-min in ascending u, u-max in
// ascending v, v-max in descending u, u-min in descending v.
func boundaryCurves(points [][]quilt.Point3) [4]spline.Curve {
	nu, nv := len(points), len(points[0])
	bottom := make([]quilt.Point3, nu)
	top := make([]quilt.Point3, nu)
	for u := 0; u < nu; u++ {
		bottom[u] = points[u][0]
		top[nu-1-u] = points[u][nv-1]
	}
	right := append([]quilt.Point3(nil), points[nu-1]...)
	left := make([]quilt.Point3, nv)
	for v := 0; v < nv; v++ {
		left[nv-1-v] = points[0][v]
	}
	return [4]spline.Curve{
		spline.UniformCurve(bottom),
		spline.UniformCurve(right),
		spline.UniformCurve(top),
		spline.UniformCurve(left),
	}
}
