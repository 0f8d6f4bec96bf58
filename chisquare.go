package violet

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultGateProbability is the chi-square probability below which residuals are accepted.
const DefaultGateProbability = 0.95

// NIS returns the normalized innovation squared rᵗ(H*P*H' + R)⁻¹r.
func NIS(H mat.Matrix, P, R mat.Symmetric, r mat.Vector) (float64, error) {
	if err := checkMatDims(H, P, "H", "P", cols2cols); err != nil {
		return 0, err
	}
	if err := checkMatDims(H, R, "H", "R", rows2cols); err != nil {
		return 0, err
	}
	if err := checkMatDims(H, r, "H", "residual", rows2rows); err != nil {
		return 0, err
	}
	var PHt, Pyy mat.Dense
	PHt.Mul(P, H.T())
	Pyy.Mul(H, &PHt)
	Pyy.Add(&Pyy, R)
	S, err := Symmetrize(&Pyy)
	if err != nil {
		return 0, err
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(S); !ok {
		return 0, errors.New("innovation covariance is not positive definite")
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, r); err != nil {
		return 0, errors.Wrap(err, "could not solve the innovation covariance")
	}
	return mat.Dot(r, &x), nil
}

// OutlierGate rejects measurements whose NIS exceeds the chi-square quantile of
// Probability with as many degrees of freedom as measurement rows. It keeps the
// NIS per degree of freedom of the accepted measurements until Reset.
type OutlierGate struct {
	Enabled     bool
	Probability float64 // zero selects DefaultGateProbability
	samples     []float64
}

// Threshold returns the largest accepted NIS for dof degrees of freedom.
func (g *OutlierGate) Threshold(dof int) float64 {
	p := g.Probability
	if p <= 0 || p >= 1 {
		p = DefaultGateProbability
	}
	return distuv.ChiSquared{K: float64(dof)}.Quantile(p)
}

// Check returns the NIS of the residual r and ErrOutlier if the gate is enabled
// and rejects it.
func (g *OutlierGate) Check(H mat.Matrix, P, R mat.Symmetric, r mat.Vector) (float64, error) {
	nis, err := NIS(H, P, R, r)
	if err != nil {
		return 0, err
	}
	dof := r.Len()
	if g.Enabled {
		if th := g.Threshold(dof); nis > th {
			return nis, errors.Wrapf(ErrOutlier, "NIS %.4g above %.4g for %d dof", nis, th, dof)
		}
	}
	g.samples = append(g.samples, nis/float64(dof))
	return nis, nil
}

// Reset forgets the accepted samples.
func (g *OutlierGate) Reset() {
	g.samples = g.samples[:0]
}

// Samples returns the NIS per degree of freedom of the accepted measurements.
func (g *OutlierGate) Samples() []float64 {
	return g.samples
}

// MeanNIS returns the mean NIS per degree of freedom of the accepted measurements,
// which is close to one for a consistent filter.
func (g *OutlierGate) MeanNIS() float64 {
	if len(g.samples) == 0 {
		return 0
	}
	return stat.Mean(g.samples, nil)
}
