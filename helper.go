package violet

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Identity returns an identity matrix of the provided size.
func Identity(n int) mat.Symmetric {
	return ScaledIdentity(n, 1)
}

// ScaledIdentity returns an identity matrix time a scaling factor of the provided size.
func ScaledIdentity(n int, s float64) *mat.SymDense {
	vals := make([]float64, n*n)
	for j := 0; j < n*n; j++ {
		if j%(n+1) == 0 {
			vals[j] = s
		}
	}
	return mat.NewSymDense(n, vals)
}

// IsNil returns whether the provided matrix only has zero values
func IsNil(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// Symmetrize returns the symmetric part (m+mᵗ)/2 of the provided square matrix.
// Products such as H*P*Hᵗ are only symmetric up to rounding, so they go through
// here before being handed out as covariances.
func Symmetrize(m mat.Matrix) (*mat.SymDense, error) {
	r, c := m.Dims()
	if r != c {
		return nil, errors.New("matrix must be square")
	}
	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < c; j++ {
			sym.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return sym, nil
}

func vec3(v r3.Vector) *mat.VecDense {
	return mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
}

func r3Of(v mat.Vector) r3.Vector {
	return r3.Vector{X: v.AtVec(0), Y: v.AtVec(1), Z: v.AtVec(2)}
}

// mulVec3 returns m*v for a 3x3 matrix.
func mulVec3(m mat.Matrix, v r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(m, vec3(v))
	return r3Of(&out)
}

// projector returns I - vn*vnᵗ.
func projector(vn r3.Vector) *mat.SymDense {
	a := ScaledIdentity(3, 1)
	a.SymRankOne(a, -1, vec3(vn))
	return a
}

// setBlock copies src into dst with its top left corner at (i, j).
func setBlock(dst *mat.Dense, i, j int, src mat.Matrix) {
	r, c := src.Dims()
	for ii := 0; ii < r; ii++ {
		for jj := 0; jj < c; jj++ {
			dst.Set(i+ii, j+jj, src.At(ii, jj))
		}
	}
}

// addBlock adds src into dst with its top left corner at (i, j).
func addBlock(dst *mat.Dense, i, j int, src mat.Matrix) {
	r, c := src.Dims()
	for ii := 0; ii < r; ii++ {
		for jj := 0; jj < c; jj++ {
			dst.Set(i+ii, j+jj, dst.At(i+ii, j+jj)+src.At(ii, jj))
		}
	}
}
