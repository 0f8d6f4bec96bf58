package violet

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/westphae/quaternion"
	"gonum.org/v1/gonum/mat"
)

// Camera holds the fixed extrinsics of one camera of the stereo rig.
type Camera struct {
	ImuToCamera *mat.Dense // 3x3 rotation from the IMU body frame to the camera frame.
	Position    r3.Vector  // Camera center in the IMU body frame.
}

// NewCamera returns a camera rotated by q relative to the IMU and centered at position.
func NewCamera(q quaternion.Quaternion, position r3.Vector) Camera {
	return Camera{ImuToCamera: RotationMatrix(q), Position: position}
}

// CameraPose is a camera of the rig placed at one retained pose of the trail.
// Values are produced per query and must not be retained.
type CameraPose struct {
	R    *mat.Dense     // camera-from-world rotation
	P    r3.Vector      // camera center, world frame
	DRDq [4]*mat.Dense  // dR/dq for the (W, X, Y, Z) components of the pose orientation
}

// cameraPose places the camera on the body pose (p, q), q rotating world vectors into the body.
func cameraPose(cam Camera, p r3.Vector, q quaternion.Quaternion) CameraPose {
	Rb := RotationMatrix(q)
	var R mat.Dense
	R.Mul(cam.ImuToCamera, Rb)
	cp := CameraPose{R: &R, P: p.Add(mulVec3(Rb.T(), cam.Position))}
	for k, dRb := range RotationDerivatives(q) {
		var dR mat.Dense
		dR.Mul(cam.ImuToCamera, dRb)
		cp.DRDq[k] = &dR
	}
	return cp
}

// Project returns the camera-frame point and its normalized coordinates.
// ok is false when the point is not in front of the camera.
func (cp CameraPose) Project(a r3.Vector) (ac r3.Vector, ip r2.Point, ok bool) {
	ac = mulVec3(cp.R, a.Sub(cp.P))
	if ac.Z <= 0 {
		return ac, r2.Point{}, false
	}
	return ac, hnormalize(ac), true
}

// hnormalize returns (x/z, y/z).
func hnormalize(ac r3.Vector) r2.Point {
	return r2.Point{X: ac.X / ac.Z, Y: ac.Y / ac.Z}
}

// ProjectionJacobian returns d(hnormalize)/d(ac), a 2x3 matrix.
func ProjectionJacobian(ac r3.Vector) *mat.Dense {
	iz := 1 / ac.Z
	return mat.NewDense(2, 3, []float64{
		iz, 0, -ac.X * iz * iz,
		0, iz, -ac.Y * iz * iz,
	})
}
