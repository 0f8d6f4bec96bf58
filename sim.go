package violet

import (
	"math"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/westphae/quaternion"
)

// standardGravity is the world frame gravity, Z up.
var standardGravity = r3.Vector{Z: -9.81}

// BodyPose is a pose of the IMU body. Orientation rotates world vectors into the body.
type BodyPose struct {
	Position    r3.Vector
	Orientation quaternion.Quaternion
}

// SyntheticScene is a Tracker observing known landmarks from a known trajectory.
// Frame n is taken at Trajectory[n-1]. Every landmark visible from both cameras
// is tracked for as long as it stays visible, up to MaxTrackLength frames.
type SyntheticScene struct {
	Cameras        [2]Camera
	Landmarks      []r3.Vector
	Trajectory     []BodyPose
	Period         time.Duration // time between frames
	FieldOfView    float64       // largest visible normalized coordinate
	MaxTrackLength int

	noise  *AWGN // nil for exact coordinates
	tracks []Track
	last   int
}

// NewSyntheticScene returns a scene with a 90° field of view, 20Hz frames and
// tracks of at most 10 frames. A nil noise produces exact coordinates.
func NewSyntheticScene(cameras [2]Camera, landmarks []r3.Vector, trajectory []BodyPose, noise *AWGN) *SyntheticScene {
	return &SyntheticScene{
		Cameras:        cameras,
		Landmarks:      landmarks,
		Trajectory:     trajectory,
		Period:         50 * time.Millisecond,
		FieldOfView:    1,
		MaxTrackLength: 10,
		noise:          noise,
		tracks:         make([]Track, len(landmarks)),
	}
}

// DefaultSyntheticScene returns a stereo rig with a 10cm baseline walking past a
// wall of landmarks for frames frames, with a slow yaw oscillation.
func DefaultSyntheticScene(frames int, sigma float64, seed uint64) *SyntheticScene {
	cams := [2]Camera{
		NewCamera(quaternion.Quaternion{W: 1}, r3.Vector{X: -0.05}),
		NewCamera(quaternion.Quaternion{W: 1}, r3.Vector{X: 0.05}),
	}
	var landmarks []r3.Vector
	for i := -4; i <= 4; i++ {
		for j := -2; j <= 2; j++ {
			z := 5 + 1.5*math.Mod(float64(i*i+j), 3)
			landmarks = append(landmarks, r3.Vector{X: 0.5 * float64(i), Y: 0.4 * float64(j), Z: z})
		}
	}
	trajectory := make([]BodyPose, frames)
	for k := range trajectory {
		s := float64(k)
		trajectory[k] = BodyPose{
			Position:    r3.Vector{X: 0.04 * s, Y: 0.05 * math.Sin(0.2*s), Z: 0.02 * s},
			Orientation: AxisAngle(r3.Vector{Y: 1}, 0.05*math.Sin(0.1*s)),
		}
	}
	var noise *AWGN
	if sigma > 0 {
		noise = NewIsotropicAWGN(sigma, seed)
	}
	return NewSyntheticScene(cams, landmarks, trajectory, noise)
}

// Pose returns the true body pose of frame.
func (s *SyntheticScene) Pose(frame int) (BodyPose, error) {
	if frame < 1 || frame > len(s.Trajectory) {
		return BodyPose{}, errors.Errorf("frame %d outside trajectory of %d frames", frame, len(s.Trajectory))
	}
	return s.Trajectory[frame-1], nil
}

// Project returns the exact normalized coordinates of landmark in both cameras of
// frame. ok is false when either camera cannot see it.
func (s *SyntheticScene) Project(frame, landmark int) (coords [2]r2.Point, ok bool, err error) {
	pose, err := s.Pose(frame)
	if err != nil {
		return coords, false, err
	}
	if landmark < 0 || landmark >= len(s.Landmarks) {
		return coords, false, errors.Errorf("no landmark %d", landmark)
	}
	for j, cam := range s.Cameras {
		_, ip, front := cameraPose(cam, pose.Position, pose.Orientation).Project(s.Landmarks[landmark])
		if !front || math.Abs(ip.X) > s.FieldOfView || math.Abs(ip.Y) > s.FieldOfView {
			return coords, false, nil
		}
		coords[j] = ip
	}
	return coords, true, nil
}

// Track implements the Tracker interface. Frames must be tracked in increasing
// order; a landmark lost in one frame starts a new track when seen again.
func (s *SyntheticScene) Track(frame Frame) ([]Track, error) {
	if frame.Number <= s.last {
		return nil, errors.Errorf("frame %d already tracked, last was %d", frame.Number, s.last)
	}
	if _, err := s.Pose(frame.Number); err != nil {
		return nil, err
	}
	var out []Track
	for l := range s.Landmarks {
		coords, ok, err := s.Project(frame.Number, l)
		if err != nil {
			return nil, err
		}
		track := &s.tracks[l]
		if !ok {
			*track = Track{}
			continue
		}
		if last, seen := track.Latest(); !seen || last.FrameNumber != frame.Number-1 {
			*track = NewTrack()
		}
		if s.noise != nil {
			for j := range coords {
				coords[j] = s.noise.Perturb(coords[j])
			}
		}
		track.Points = append(track.Points, TrackedPoint{FrameNumber: frame.Number, Coordinates: coords})
		if n := len(track.Points); s.MaxTrackLength > 0 && n > s.MaxTrackLength {
			track.Points = append(track.Points[:0], track.Points[n-s.MaxTrackLength:]...)
		}
		out = append(out, Track{ID: track.ID, Points: append([]TrackedPoint(nil), track.Points...)})
	}
	s.last = frame.Number
	return out, nil
}

// Events returns the frames of the trajectory, each preceded by the IMU samples
// measured on the way from the previous frame. The images are left empty.
func (s *SyntheticScene) Events() *SliceSource {
	dt := s.Period.Seconds()
	var events []Event
	for k, pose := range s.Trajectory {
		ts := time.Duration(k) * s.Period
		if k > 0 {
			prev := s.Trajectory[k-1]
			events = append(events,
				Gyroscope{Time: ts, AngularVelocity: angularVelocity(prev.Orientation, pose.Orientation, dt)},
				Accelerometer{Time: ts, SpecificForce: s.specificForce(k, dt)},
			)
		}
		events = append(events, Frame{Time: ts, Number: k + 1})
	}
	return NewSliceSource(events)
}

// angularVelocity returns the body rate turning q0 into q1 over dt, to first order.
func angularVelocity(q0, q1 quaternion.Quaternion, dt float64) r3.Vector {
	// q rotates world into body, so q1*conj(q0) rotates the previous body into the new one.
	d := quaternion.Prod(q1, q0.Conj()).Unit()
	if d.W < 0 {
		d = quaternion.Quaternion{W: -d.W, X: -d.X, Y: -d.Y, Z: -d.Z}
	}
	return r3.Vector{X: -d.X, Y: -d.Y, Z: -d.Z}.Mul(2 / dt)
}

// specificForce returns the accelerometer reading at frame index k, from the
// second difference of the positions.
func (s *SyntheticScene) specificForce(k int, dt float64) r3.Vector {
	var acc r3.Vector
	if k > 0 && k+1 < len(s.Trajectory) {
		p0, p1, p2 := s.Trajectory[k-1].Position, s.Trajectory[k].Position, s.Trajectory[k+1].Position
		acc = p2.Sub(p1.Mul(2)).Add(p0).Mul(1 / (dt * dt))
	}
	return Rotate(s.Trajectory[k].Orientation, acc.Sub(standardGravity))
}
