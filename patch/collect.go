package patch

import (
	"fmt"

	"github.com/npillmayer/quilt"
)

// Extract reads patch i of the table into a consolidation-ready Net.
// Regular patches get their control vertices resolved against the
// buffer and the boundary adjustment applied; Gregory patches are
// approximated by a 4×4 sample grid. Other patch types yield
// ErrUnsupportedPatchType.
func Extract(tbl Table, i int, ctrl ControlBuffer) (Net, error) {
	switch t := tbl.PatchType(i); t {
	case TypeRegular:
		return extractRegular(tbl, i, ctrl)
	case TypeGregoryBasis:
		return sampleGregoryBasis(tbl, i, ctrl)
	case TypeGregoryTriangle:
		return sampleGregoryTriangle(tbl, i, ctrl)
	default:
		return Net{}, fmt.Errorf("%w: patch %d is %s", ErrUnsupportedPatchType, i, t)
	}
}

func extractRegular(tbl Table, i int, ctrl ControlBuffer) (Net, error) {
	cvs := tbl.ControlVertices(i)
	if len(cvs) != 16 {
		return Net{}, fmt.Errorf("%w: patch %d has %d control vertices, want 16",
			ErrInvalidControlPoints, i, len(cvs))
	}
	var control [4][4]quilt.Point3
	for k, cv := range cvs {
		if cv < 0 || cv >= len(ctrl) {
			return Net{}, fmt.Errorf("%w: patch %d control vertex index %d out of range (max %d)",
				ErrInvalidControlPoints, i, cv, len(ctrl)-1)
		}
		control[k/4][k%4] = ctrl.Point(cv)
	}
	mask := tbl.BoundaryMask(i)
	return Net{Index: i, Control: Adjust(control, mask), Mask: mask}, nil
}

// Gregory basis patches have 20 control points in a special layout;
// this pipeline approximates them by evaluating the patch on a 4×4
// parameter grid and treating the samples as a bicubic control net.
func sampleGregoryBasis(tbl Table, idx int, ctrl ControlBuffer) (Net, error) {
	var control [4][4]quilt.Point3
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			u := float64(i) / 3.0
			v := float64(j) / 3.0
			p, ok := tbl.EvaluatePoint(idx, u, v, ctrl)
			if !ok {
				return Net{}, fmt.Errorf("%w: patch %d at (%g,%g)", ErrEvaluationFailed, idx, u, v)
			}
			control[i][j] = p
		}
	}
	return Net{Index: idx, Control: control}, nil
}

// Gregory triangle patches live on a triangular domain (u+v ≤ 1);
// sample positions outside it are projected back onto the hypotenuse,
// collapsing the quad approximation along that edge.
func sampleGregoryTriangle(tbl Table, idx int, ctrl ControlBuffer) (Net, error) {
	var control [4][4]quilt.Point3
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			u := float64(i) / 3.0
			v := float64(j) / 3.0
			if u+v > 1.0 {
				sum := u + v
				u, v = u/sum, v/sum
			}
			p, ok := tbl.EvaluatePoint(idx, u, v, ctrl)
			if !ok {
				return Net{}, fmt.Errorf("%w: patch %d at (%g,%g)", ErrEvaluationFailed, idx, u, v)
			}
			control[i][j] = p
		}
	}
	return Net{Index: idx, Control: control}, nil
}

// CollectRegular iterates the patch table and extracts every regular
// patch. Non-regular patch types are skipped entirely: they cannot be
// merged and are approximated elsewhere by direct sampling.
// Extraction failures are logged and skipped; the superpatch pipeline
// tolerates partial input.
func CollectRegular(tbl Table, ctrl ControlBuffer) []Net {
	var nets []Net
	for i := 0; i < tbl.PatchCount(); i++ {
		if tbl.PatchType(i) != TypeRegular {
			continue
		}
		net, err := Extract(tbl, i, ctrl)
		if err != nil {
			tracer().Errorf("skipping regular patch %d: %v", i, err)
			continue
		}
		nets = append(nets, net)
	}
	return nets
}

// CollectExportable iterates the patch table and extracts every patch
// contributing to B-rep export: regular patches plus Gregory basis
// and Gregory triangle approximations. Failures are logged and
// skipped.
func CollectExportable(tbl Table, ctrl ControlBuffer) []Net {
	var nets []Net
	for i := 0; i < tbl.PatchCount(); i++ {
		if !tbl.PatchType(i).Exportable() {
			continue
		}
		net, err := Extract(tbl, i, ctrl)
		if err != nil {
			tracer().Errorf("skipping patch %d (%s): %v", i, tbl.PatchType(i), err)
			continue
		}
		nets = append(nets, net)
	}
	return nets
}
