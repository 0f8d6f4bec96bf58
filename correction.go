package violet

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Correction is the result of one Kalman correction.
type Correction struct {
	Dx *mat.VecDense // K*r
	P  *mat.SymDense // posterior covariance
	K  *mat.Dense    // gain
	S  *mat.SymDense // innovation covariance H*P*H' + R
}

// Correct computes the Kalman correction of the state with covariance P given the
// measurement Jacobian H, the residual r and the measurement noise R. The
// covariance is updated in Joseph form. Nothing is mutated.
func Correct(P mat.Symmetric, H mat.Matrix, r *mat.VecDense, R mat.Symmetric) (*Correction, error) {
	// Let's check the dimensions of everything here to return an error ASAP.
	if err := checkMatDims(H, P, "H", "P", cols2cols); err != nil {
		return nil, err
	}
	if err := checkMatDims(H, r, "H", "residual", rows2rows); err != nil {
		return nil, err
	}
	if err := checkMatDims(H, R, "H", "R", rows2cols); err != nil {
		return nil, err
	}

	// Kalman gain
	var PHt, HPHt, SInv, K mat.Dense
	PHt.Mul(P, H.T())
	HPHt.Mul(H, &PHt)
	HPHt.Add(&HPHt, R)
	S, err := Symmetrize(&HPHt)
	if err != nil {
		return nil, err
	}
	if ierr := SInv.Inverse(S); ierr != nil {
		return nil, errors.Wrap(ierr, "could not invert `H*P*H' + R`")
	}
	K.Mul(&PHt, &SInv)

	var dx mat.VecDense
	dx.MulVec(&K, r)

	var Pp, Ptmp1, IKH, KR, KRKt mat.Dense
	IKH.Mul(&K, H)
	n, _ := IKH.Dims()
	IKH.Sub(Identity(n), &IKH)
	Ptmp1.Mul(&IKH, P)
	Pp.Mul(&Ptmp1, IKH.T())
	KR.Mul(&K, R)
	KRKt.Mul(&KR, K.T())
	Pp.Add(&Pp, &KRKt)

	PSym, err := Symmetrize(&Pp)
	if err != nil {
		return nil, err
	}
	return &Correction{Dx: &dx, P: PSym, K: &K, S: S}, nil
}

// VisualEstimate is the output of each visual update which corrected the filter.
// It implements the Estimate interface.
type VisualEstimate struct {
	Frame              int // newest frame of the trail when corrected
	state, meas, innov *mat.VecDense
	dx                 *mat.VecDense
	covar, predCovar   mat.Symmetric
	gain               mat.Matrix
}

// NewVisualEstimate returns the estimate of frame after the correction c of the
// prior covariance predCovar, state being the corrected filter state.
func NewVisualEstimate(frame int, state *mat.VecDense, model *MeasurementModel, c *Correction, predCovar mat.Symmetric) VisualEstimate {
	return VisualEstimate{
		Frame:     frame,
		state:     state,
		meas:      mat.VecDenseCopyOf(model.Z),
		innov:     model.Residual(),
		dx:        c.Dx,
		covar:     c.P,
		predCovar: predCovar,
		gain:      c.K,
	}
}

// IsWithinNσ returns whether the state correction is within the N*σ bounds of the prior.
func (e VisualEstimate) IsWithinNσ(N float64) bool {
	for i := 0; i < e.dx.Len(); i++ {
		nσ := N * math.Sqrt(e.predCovar.At(i, i))
		if e.dx.AtVec(i) > nσ || e.dx.AtVec(i) < -nσ {
			return false
		}
	}
	return true
}

// IsWithin2σ returns whether the state correction is within the 2σ bounds.
func (e VisualEstimate) IsWithin2σ() bool {
	return e.IsWithinNσ(2)
}

// FrameNumber returns the frame whose visual update produced the estimate.
func (e VisualEstimate) FrameNumber() int {
	return e.Frame
}

// State implements the Estimate interface.
func (e VisualEstimate) State() *mat.VecDense {
	return e.state
}

// Measurement implements the Estimate interface.
func (e VisualEstimate) Measurement() *mat.VecDense {
	return e.meas
}

// Innovation implements the Estimate interface.
func (e VisualEstimate) Innovation() *mat.VecDense {
	return e.innov
}

// Correction returns the state correction K*r before renormalization.
func (e VisualEstimate) Correction() *mat.VecDense {
	return e.dx
}

// Covariance implements the Estimate interface.
func (e VisualEstimate) Covariance() mat.Symmetric {
	return e.covar
}

// PredCovariance implements the Estimate interface.
func (e VisualEstimate) PredCovariance() mat.Symmetric {
	return e.predCovar
}

// Gain the Estimate interface.
func (e VisualEstimate) Gain() mat.Matrix {
	return e.gain
}

func (e VisualEstimate) String() string {
	state := mat.Formatted(e.State(), mat.Prefix("  "))
	meas := mat.Formatted(e.Measurement(), mat.Prefix("  "))
	covar := mat.Formatted(e.Covariance(), mat.Prefix("  "))
	gain := mat.Formatted(e.Gain(), mat.Prefix("  "))
	innov := mat.Formatted(e.Innovation(), mat.Prefix("  "))
	predp := mat.Formatted(e.PredCovariance(), mat.Prefix("   "))
	return fmt.Sprintf("{\nframe=%d\ns=%v\nz=%v\nP=%v\nK=%v\nP-=%v\ni=%v\n}", e.Frame, state, meas, covar, gain, predp, innov)
}
