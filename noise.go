package violet

import (
	"fmt"
	"math/rand/v2"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// MeasurementNoise provides the noise of stacked normalized coordinates.
type MeasurementNoise interface {
	MeasurementMatrix(rows int) mat.Symmetric // Returns the measurement noise matrix R of rows stacked coordinates.
	String() string                           // Stringer interface implementation
}

// IsotropicNoise is an uncorrelated noise of standard deviation Sigma on every
// coordinate. It implements the MeasurementNoise interface.
type IsotropicNoise struct {
	Sigma float64
}

// MeasurementMatrix implements the MeasurementNoise interface.
func (n IsotropicNoise) MeasurementMatrix(rows int) mat.Symmetric {
	return ScaledIdentity(rows, n.Sigma*n.Sigma)
}

// String implements the Stringer interface.
func (n IsotropicNoise) String() string {
	return fmt.Sprintf("IsotropicNoise{σ=%g}", n.Sigma)
}

// AWGN implements the MeasurementNoise interface and generates an additive white
// Gaussian noise on normalized coordinates with the 2x2 covariance R.
type AWGN struct {
	R     mat.Symmetric
	coord *distmv.Normal
}

// NewAWGN creates new AWGN noise from the provided covariance of one point.
func NewAWGN(R mat.Symmetric, seed uint64) *AWGN {
	if r, _ := R.Dims(); r != 2 {
		panic(fmt.Errorf("coordinate noise must be 2x2, got %dx%d", r, r))
	}
	coord, ok := distmv.NewNormal(make([]float64, 2), R, rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	if !ok {
		panic("coordinate noise invalid")
	}
	return &AWGN{R, coord}
}

// NewIsotropicAWGN returns AWGN noise of standard deviation sigma on each coordinate.
func NewIsotropicAWGN(sigma float64, seed uint64) *AWGN {
	return NewAWGN(ScaledIdentity(2, sigma*sigma), seed)
}

// MeasurementMatrix implements the MeasurementNoise interface.
func (n *AWGN) MeasurementMatrix(rows int) mat.Symmetric {
	R := mat.NewSymDense(rows, nil)
	for i := 0; i+1 < rows; i += 2 {
		for a := 0; a < 2; a++ {
			for b := a; b < 2; b++ {
				R.SetSym(i+a, i+b, n.R.At(a, b))
			}
		}
	}
	return R
}

// Perturb returns p with a noise sample added.
func (n *AWGN) Perturb(p r2.Point) r2.Point {
	s := n.coord.Rand(nil)
	return r2.Point{X: p.X + s[0], Y: p.Y + s[1]}
}

// String implements the Stringer interface.
func (n *AWGN) String() string {
	return fmt.Sprintf("AWGN{\nR=%v}\n", mat.Formatted(n.R, mat.Prefix("  ")))
}
