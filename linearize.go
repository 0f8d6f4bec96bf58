package violet

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MeasurementModel is the linearized visual measurement of one or more tracks.
// Row 2*i+j holds the x (j=0) or y (j=1) coordinate of observation i.
type MeasurementModel struct {
	H    *mat.Dense    // Jacobian of Y with respect to the filter state.
	Y, Z *mat.VecDense // Predicted and observed normalized coordinates.
}

// Rows returns the number of stacked measurements.
func (m *MeasurementModel) Rows() int {
	if m.Y == nil || m.Y.IsEmpty() {
		return 0
	}
	return m.Y.Len()
}

// Residual returns Z - Y.
func (m *MeasurementModel) Residual() *mat.VecDense {
	var r mat.VecDense
	r.SubVec(m.Z, m.Y)
	return &r
}

func (m *MeasurementModel) String() string {
	if m.Rows() == 0 {
		return "empty measurement model"
	}
	return fmt.Sprintf("H=%v\ny=%v\nz=%v", mat.Formatted(m.H, mat.Prefix("  ")), mat.Formatted(m.Y.T()), mat.Formatted(m.Z.T()))
}

// Clear empties the model, keeping its storage.
func (m *MeasurementModel) Clear() {
	if m.H == nil {
		m.H, m.Y, m.Z = &mat.Dense{}, &mat.VecDense{}, &mat.VecDense{}
	}
	m.H.Reset()
	m.Y.Reset()
	m.Z.Reset()
}

// resize sets the model to zeroed rows x cols.
func (m *MeasurementModel) resize(rows, cols int) {
	m.Clear()
	m.H.ReuseAs(rows, cols)
	m.Y.ReuseAsVec(rows)
	m.Z.ReuseAsVec(rows)
}

// Linearizer builds the measurement model h_i(x) = hnormalize(R_i(a(x) - p_i))
// of a triangulated track.
type Linearizer struct {
	// FoldTriangulation adds the dependence of the triangulated point on every
	// observing pose to the Jacobian. Without it only the direct terms of the
	// observing pose are filled.
	FoldTriangulation bool
}

// Linearize writes into model the prediction, observation and Jacobian of every
// observation of tri. The whole track is rejected with ErrBehindCamera, and model
// cleared, as soon as the point is not in front of one observing camera.
func (l Linearizer) Linearize(tri *Triangulation, obs []Observation, layout PoseTrail, model *MeasurementModel) error {
	if len(obs) == 0 {
		model.Clear()
		return errors.New("no observations to linearize")
	}
	if l.FoldTriangulation && (len(tri.DaDp) != len(obs) || len(tri.DaDq) != len(obs)) {
		model.Clear()
		return errors.Errorf("triangulation has %d derivatives for %d observations", len(tri.DaDp), len(obs))
	}
	model.resize(2*len(obs), layout.CameraStateLen())
	a := tri.A
	for i, o := range obs {
		ac, ip, ok := o.Pose.Project(a)
		if !ok {
			model.Clear()
			return errors.Wrapf(ErrBehindCamera, "observation %d at depth %g", i, ac.Z)
		}
		row := 2 * i
		model.Y.SetVec(row, ip.X)
		model.Y.SetVec(row+1, ip.Y)
		model.Z.SetVec(row, o.Coordinates.X)
		model.Z.SetVec(row+1, o.Coordinates.Y)

		dh := ProjectionJacobian(ac)
		var dhR mat.Dense
		dhR.Mul(dh, o.Pose.R)

		// d(a - p)/dp is -I when a is held fixed.
		var self mat.Dense
		self.Scale(-1, &dhR)
		addBlock(model.H, row, layout.CameraPosInd(o.Slot), &self)

		ori := layout.CameraOriInd(o.Slot)
		d := vec3(a.Sub(o.Pose.P))
		for m, dR := range o.Pose.DRDq {
			var dRd, col mat.VecDense
			dRd.MulVec(dR, d)
			col.MulVec(dh, &dRd)
			addBlock(model.H, row, ori+m, &col)
		}

		if !l.FoldTriangulation {
			continue
		}
		for k, other := range obs {
			var dp, dq mat.Dense
			dp.Mul(&dhR, tri.DaDp[k])
			addBlock(model.H, row, layout.CameraPosInd(other.Slot), &dp)
			dq.Mul(&dhR, tri.DaDq[k])
			addBlock(model.H, row, layout.CameraOriInd(other.Slot), &dq)
		}
	}
	return nil
}
