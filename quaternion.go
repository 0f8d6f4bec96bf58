package violet

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/westphae/quaternion"
	"gonum.org/v1/gonum/mat"
)

// RotationMatrix returns the matrix rotating a vector by q, i.e. R*v == q*v*conj(q) for a unit q.
// The homogeneous form is used so that the entries are quadratic in (W, X, Y, Z) and
// RotationDerivatives is their exact derivative even off the unit sphere.
func RotationMatrix(q quaternion.Quaternion) *mat.Dense {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return mat.NewDense(3, 3, []float64{
		w*w + x*x - y*y - z*z, 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), w*w - x*x + y*y - z*z, 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), w*w - x*x - y*y + z*z,
	})
}

// RotationDerivatives returns dR/dW, dR/dX, dR/dY and dR/dZ of RotationMatrix.
func RotationDerivatives(q quaternion.Quaternion) [4]*mat.Dense {
	w, x, y, z := 2*q.W, 2*q.X, 2*q.Y, 2*q.Z
	return [4]*mat.Dense{
		mat.NewDense(3, 3, []float64{
			w, -z, y,
			z, w, -x,
			-y, x, w,
		}),
		mat.NewDense(3, 3, []float64{
			x, y, z,
			y, -x, -w,
			z, w, -x,
		}),
		mat.NewDense(3, 3, []float64{
			-y, x, w,
			x, y, z,
			-w, z, -y,
		}),
		mat.NewDense(3, 3, []float64{
			-z, -w, x,
			w, -z, y,
			x, y, z,
		}),
	}
}

// Rotate returns v rotated by the unit quaternion q.
func Rotate(q quaternion.Quaternion, v r3.Vector) r3.Vector {
	p := quaternion.Prod(q, quaternion.Quaternion{X: v.X, Y: v.Y, Z: v.Z}, q.Conj())
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// AxisAngle returns the unit quaternion of a rotation by angle radians about axis.
func AxisAngle(axis r3.Vector, angle float64) quaternion.Quaternion {
	axis = axis.Normalize()
	s := math.Sin(angle / 2)
	return quaternion.Quaternion{W: math.Cos(angle / 2), X: s * axis.X, Y: s * axis.Y, Z: s * axis.Z}
}

// quatComponents returns q as (W, X, Y, Z), the order of the orientation state columns.
func quatComponents(q quaternion.Quaternion) [4]float64 {
	return [4]float64{q.W, q.X, q.Y, q.Z}
}

func quatFromComponents(c []float64) quaternion.Quaternion {
	return quaternion.Quaternion{W: c[0], X: c[1], Y: c[2], Z: c[3]}
}
