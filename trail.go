package violet

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/westphae/quaternion"
	"gonum.org/v1/gonum/mat"
)

// PoseStateLen is the number of state columns of one trail pose: position then orientation.
const PoseStateLen = 7

// TrailFilter is an in-memory pose trail filter. Its state holds the retained
// poses newest first, each as [p(3) q(4)] where q rotates world vectors into the body.
// Use NewTrailFilter to initialize.
type TrailFilter struct {
	x      *mat.VecDense
	P      *mat.SymDense
	frames []int // oldest first
	maxLen int
	posVar float64
	oriVar float64
}

// NewTrailFilter returns an empty filter retaining at most maxLen poses. New poses
// are augmented with the provided prior variances.
func NewTrailFilter(maxLen int, positionVariance, orientationVariance float64) (*TrailFilter, error) {
	if maxLen < 2 {
		return nil, errors.Errorf("pose trail must retain at least two poses, got %d", maxLen)
	}
	if positionVariance <= 0 || orientationVariance <= 0 {
		return nil, errors.New("prior variances must be positive")
	}
	return &TrailFilter{maxLen: maxLen, posVar: positionVariance, oriVar: orientationVariance}, nil
}

func (f *TrailFilter) String() string {
	return fmt.Sprintf("TrailFilter [%d/%d poses, frames %v]", len(f.frames), f.maxLen, f.frames)
}

// Len returns the number of retained poses.
func (f *TrailFilter) Len() int {
	return len(f.frames)
}

// FrameNumbers returns the retained frame numbers, oldest first.
func (f *TrailFilter) FrameNumbers() []int {
	return append([]int(nil), f.frames...)
}

// Augment pushes the pose of a new frame as the newest slot, dropping the oldest
// pose once the trail is full. The new pose is uncorrelated with the retained ones.
func (f *TrailFilter) Augment(frame int, p r3.Vector, q quaternion.Quaternion) error {
	if n := len(f.frames); n > 0 && frame <= f.frames[n-1] {
		return errors.Errorf("frame %d is not newer than frame %d", frame, f.frames[n-1])
	}
	keep := len(f.frames)
	if keep == f.maxLen {
		keep--
	}
	dim := PoseStateLen * (keep + 1)
	x := mat.NewVecDense(dim, nil)
	x.SetVec(0, p.X)
	x.SetVec(1, p.Y)
	x.SetVec(2, p.Z)
	for k, c := range quatComponents(q.Unit()) {
		x.SetVec(3+k, c)
	}
	P := mat.NewSymDense(dim, nil)
	for i := 0; i < 3; i++ {
		P.SetSym(i, i, f.posVar)
	}
	for i := 3; i < PoseStateLen; i++ {
		P.SetSym(i, i, f.oriVar)
	}
	old := PoseStateLen * keep
	for i := 0; i < old; i++ {
		x.SetVec(PoseStateLen+i, f.x.AtVec(i))
		for j := i; j < old; j++ {
			P.SetSym(PoseStateLen+i, PoseStateLen+j, f.P.At(i, j))
		}
	}
	f.x, f.P = x, P
	f.frames = append(f.frames[len(f.frames)-keep:], frame)
	return nil
}

// Pose returns the body position and orientation stored at slot i.
func (f *TrailFilter) Pose(i int) (r3.Vector, quaternion.Quaternion, error) {
	if i < 0 || i >= len(f.frames) {
		return r3.Vector{}, quaternion.Quaternion{}, &PoseTrailLookupError{Index: i, Len: len(f.frames)}
	}
	pos, ori := f.CameraPosInd(i), f.CameraOriInd(i)
	p := r3.Vector{X: f.x.AtVec(pos), Y: f.x.AtVec(pos + 1), Z: f.x.AtVec(pos + 2)}
	var c [4]float64
	for k := range c {
		c[k] = f.x.AtVec(ori + k)
	}
	return p, quatFromComponents(c[:]), nil
}

// CameraPoseTrail implements the PoseTrail interface.
func (f *TrailFilter) CameraPoseTrail(indices []int, cameras [2]Camera, dst [][2]CameraPose) ([][2]CameraPose, error) {
	for _, i := range indices {
		p, q, err := f.Pose(i)
		if err != nil {
			return dst, err
		}
		dst = append(dst, [2]CameraPose{cameraPose(cameras[0], p, q), cameraPose(cameras[1], p, q)})
	}
	return dst, nil
}

// CameraStateLen implements the PoseTrail interface.
func (f *TrailFilter) CameraStateLen() int {
	return PoseStateLen * len(f.frames)
}

// CameraPosInd implements the PoseTrail interface.
func (f *TrailFilter) CameraPosInd(i int) int {
	return PoseStateLen * i
}

// CameraOriInd implements the PoseTrail interface.
func (f *TrailFilter) CameraOriInd(i int) int {
	return PoseStateLen*i + 3
}

// State returns a copy of the state.
func (f *TrailFilter) State() *mat.VecDense {
	if f.x == nil {
		return &mat.VecDense{}
	}
	return mat.VecDenseCopyOf(f.x)
}

// Covariance returns a copy of the covariance.
func (f *TrailFilter) Covariance() mat.Symmetric {
	if f.P == nil {
		return &mat.SymDense{}
	}
	var P mat.SymDense
	P.CopySym(f.P)
	return &P
}

// ApplyCorrection adds dx to the state, renormalizes every orientation and stores P.
func (f *TrailFilter) ApplyCorrection(dx *mat.VecDense, P mat.Symmetric) error {
	if len(f.frames) == 0 {
		return errors.New("cannot correct an empty pose trail")
	}
	if err := checkMatDims(dx, f.x, "dx", "x", rowsAndcols); err != nil {
		return err
	}
	if err := checkMatDims(P, f.P, "P", "Covar", rowsAndcols); err != nil {
		return err
	}
	f.x.AddVec(f.x, dx)
	for i := range f.frames {
		ori := f.CameraOriInd(i)
		var c [4]float64
		for k := range c {
			c[k] = f.x.AtVec(ori + k)
		}
		for k, v := range quatComponents(quatFromComponents(c[:]).Unit()) {
			f.x.SetVec(ori+k, v)
		}
	}
	f.P.CopySym(P)
	return nil
}
