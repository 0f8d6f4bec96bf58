package violet

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/westphae/quaternion"
)

// GroundTruth computes the error of trail estimates from the known body poses of each frame.
type GroundTruth struct {
	poses map[int]BodyPose
}

// NewGroundTruth initializes a ground truth from the true body pose of each frame number.
func NewGroundTruth(poses map[int]BodyPose) *GroundTruth {
	return &GroundTruth{poses}
}

// GroundTruth returns the true poses of every frame of the scene.
func (s *SyntheticScene) GroundTruth() *GroundTruth {
	poses := make(map[int]BodyPose, len(s.Trajectory))
	for k, pose := range s.Trajectory {
		poses[k+1] = pose
	}
	return NewGroundTruth(poses)
}

// PoseError is the error of one retained pose.
type PoseError struct {
	FrameNumber int
	Position    r3.Vector // estimated minus true position
	Angle       float64   // rotation angle between estimated and true orientation, radians
}

// PositionError returns the estimated position p minus the true position of frame.
func (t *GroundTruth) PositionError(frame int, p r3.Vector) (r3.Vector, error) {
	pose, ok := t.poses[frame]
	if !ok {
		return r3.Vector{}, errors.Errorf("no ground truth for frame %d", frame)
	}
	return p.Sub(pose.Position), nil
}

// OrientationError returns the angle of the rotation between q and the true orientation of frame.
func (t *GroundTruth) OrientationError(frame int, q quaternion.Quaternion) (float64, error) {
	pose, ok := t.poses[frame]
	if !ok {
		return 0, errors.Errorf("no ground truth for frame %d", frame)
	}
	d := quaternion.Prod(q.Unit(), pose.Orientation.Conj())
	return 2 * math.Acos(math.Min(1, math.Abs(d.W))), nil
}

// TrailError returns the error of every pose retained by f, oldest first.
func (t *GroundTruth) TrailError(f *TrailFilter) ([]PoseError, error) {
	frames := f.FrameNumbers()
	errs := make([]PoseError, len(frames))
	for i, frame := range frames {
		p, q, err := f.Pose(len(frames) - 1 - i)
		if err != nil {
			return nil, err
		}
		pe := PoseError{FrameNumber: frame}
		if pe.Position, err = t.PositionError(frame, p); err != nil {
			return nil, err
		}
		if pe.Angle, err = t.OrientationError(frame, q); err != nil {
			return nil, err
		}
		errs[i] = pe
	}
	return errs, nil
}
