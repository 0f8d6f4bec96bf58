package violet

import "gonum.org/v1/gonum/mat"

// PoseTrail exposes the retained camera poses of a filter and their columns in its state.
type PoseTrail interface {
	// CameraPoseTrail appends to dst the pose of both cameras at every slot of indices.
	// An index outside the retained window fails with a *PoseTrailLookupError.
	CameraPoseTrail(indices []int, cameras [2]Camera, dst [][2]CameraPose) ([][2]CameraPose, error)
	CameraStateLen() int    // Number of state columns.
	CameraPosInd(i int) int // First position column of slot i.
	CameraOriInd(i int) int // First orientation column of slot i, ordered (W, X, Y, Z).
}

// Filter is a pose trail filter that accepts one correction per frame.
type Filter interface {
	PoseTrail
	State() *mat.VecDense
	Covariance() mat.Symmetric
	// ApplyCorrection adds dx to the state and replaces the covariance with P.
	ApplyCorrection(dx *mat.VecDense, P mat.Symmetric) error
}

// Estimate is returned by each visual update which corrected the filter.
type Estimate interface {
	IsWithinNσ(N float64) bool     // IsWithinNσ returns whether the state correction is within the N*σ bounds.
	State() *mat.VecDense          // Returns \hat{x}_{k}^{+}
	Measurement() *mat.VecDense    // Returns the stacked observed coordinates z.
	Innovation() *mat.VecDense     // Returns z - h(\hat{x}_{k}^{-})
	Covariance() mat.Symmetric     // Return P_{k}^{+}
	PredCovariance() mat.Symmetric // Return P_{k}^{-}
	Gain() mat.Matrix              // Return K_{k}
	String() string                // Must implement the stringer interface.
}
