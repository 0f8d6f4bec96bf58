package violet

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/westphae/quaternion"
	"gonum.org/v1/gonum/mat"
)

// stereoRig returns two cameras looking along the body Z axis, 10cm apart.
func stereoRig() [2]Camera {
	return [2]Camera{
		NewCamera(quaternion.Quaternion{W: 1}, r3.Vector{X: -0.05}),
		NewCamera(quaternion.Quaternion{W: 1}, r3.Vector{X: 0.05}),
	}
}

// twoPoseFilter returns a filter retaining frames 1 and 2 with a tight prior, so
// that the measurement noise dominates the innovation covariance.
func twoPoseFilter(t *testing.T) *TrailFilter {
	f, err := NewTrailFilter(4, 1e-6, 1e-8)
	require.NoError(t, err)
	require.NoError(t, f.Augment(1, r3.Vector{}, quaternion.Quaternion{W: 1}))
	require.NoError(t, f.Augment(2, r3.Vector{X: 0.3, Z: 0.1}, AxisAngle(r3.Vector{X: 0.2, Y: 1}, 0.05)))
	return f
}

// perfectTrack returns the exact projections of point in every retained frame of f.
func perfectTrack(t *testing.T, f *TrailFilter, cams [2]Camera, point r3.Vector) Track {
	track := NewTrack()
	frames := f.FrameNumbers()
	for i, frame := range frames {
		poses, err := f.CameraPoseTrail([]int{len(frames) - 1 - i}, cams, nil)
		require.NoError(t, err)
		pt := TrackedPoint{FrameNumber: frame}
		for j, cp := range poses[0] {
			_, ip, ok := cp.Project(point)
			require.True(t, ok)
			pt.Coordinates[j] = ip
		}
		track.Points = append(track.Points, pt)
	}
	return track
}

func TestVisualUpdatePipeline(t *testing.T) {
	f := twoPoseFilter(t)
	cams := stereoRig()
	point := r3.Vector{X: 0.2, Y: -0.1, Z: 4}
	track := perfectTrack(t, f, cams, point)

	slots, coords := AlignTrack(track, f.FrameNumbers(), nil, nil)
	assert.Equal(t, []int{1, 0}, slots)
	poses, err := f.CameraPoseTrail(slots, cams, nil)
	require.NoError(t, err)
	obs := Observations(poses, coords, slots, nil)
	require.Len(t, obs, 4)
	assert.Equal(t, 1, obs[1].Slot)
	assert.Equal(t, 0, obs[2].Slot)

	var tri Triangulation
	require.NoError(t, Triangulator{}.Triangulate(obs, &tri))
	assert.InDelta(t, 0, tri.A.Distance(point), 1e-9)

	var model MeasurementModel
	require.NoError(t, Linearizer{}.Linearize(&tri, obs, f, &model))
	require.Equal(t, 8, model.Rows())
	for i, o := range obs {
		ac := mulVec3(o.Pose.R, point.Sub(o.Pose.P))
		assert.InDelta(t, ac.X/ac.Z, model.Y.AtVec(2*i), 1e-9)
		assert.InDelta(t, ac.Y/ac.Z, model.Y.AtVec(2*i+1), 1e-9)

		var exp mat.Dense
		exp.Mul(ProjectionJacobian(ac), o.Pose.R)
		exp.Scale(-1, &exp)
		pos := f.CameraPosInd(o.Slot)
		assert.True(t, mat.EqualApprox(&exp, model.H.Slice(2*i, 2*i+2, pos, pos+3), 1e-6), "observation %d", i)
	}
	assert.Less(t, mat.Norm(model.Residual(), 2), 1e-9)
}

func TestVisualUpdateProcess(t *testing.T) {
	for _, fold := range []bool{false, true} {
		f := twoPoseFilter(t)
		cams := stereoRig()
		cfg := &TuningConfig{FoldTriangulationJacobian: ptrBool(fold)}
		sink := &SnapshotSink{}
		vu, err := NewVisualUpdate(cfg, golog.NewTestLogger(t))
		require.NoError(t, err)
		vu.SetDebugSink(sink)

		tracks := []Track{
			perfectTrack(t, f, cams, r3.Vector{X: 0.2, Y: -0.1, Z: 4}),
			perfectTrack(t, f, cams, r3.Vector{X: -1, Y: 0.5, Z: 6}),
		}
		prior := f.Covariance()
		x0 := f.State()
		report, err := vu.Process(f, tracks, cams, f.FrameNumbers())
		require.NoError(t, err)
		assert.Equal(t, 2, report.FrameNumber)
		assert.Equal(t, 2, report.Tracks)
		assert.Equal(t, 2, report.Accepted)
		assert.Equal(t, 16, report.Rows)
		require.NotNil(t, report.Estimate)

		est := report.Estimate
		assert.Less(t, mat.Norm(est.Innovation(), 2), 1e-9)
		assert.True(t, est.IsWithin2σ())
		assert.Less(t, mat.Trace(f.Covariance().(*mat.SymDense)), mat.Trace(prior.(*mat.SymDense)))
		var dx mat.VecDense
		dx.SubVec(f.State(), x0)
		assert.Less(t, mat.Norm(&dx, 2), 1e-8, "perfect measurements moved the state")
		assert.True(t, mat.Equal(f.State(), est.State()))

		frame := sink.Latest()
		require.NotNil(t, frame)
		assert.Equal(t, 2, frame.FrameNumber)
		assert.Len(t, frame.Reprojections, 8)
		assert.Empty(t, frame.Rejections)

		_, err = vu.Process(f, tracks, cams, f.FrameNumbers())
		assert.True(t, errors.Is(err, ErrAlreadyUpdated), "unexpected error %v", err)

		require.NoError(t, f.Augment(3, r3.Vector{X: 0.5, Z: 0.2}, quaternion.Quaternion{W: 1}))
		_, err = vu.Process(f, nil, cams, f.FrameNumbers())
		assert.NoError(t, err)
	}
}

func TestVisualUpdateRejections(t *testing.T) {
	f := twoPoseFilter(t)
	cams := stereoRig()
	logger, logs := golog.NewObservedTestLogger(t)
	sink := &SnapshotSink{}
	vu, err := NewVisualUpdate(nil, logger)
	require.NoError(t, err)
	vu.SetDebugSink(sink)

	good := perfectTrack(t, f, cams, r3.Vector{X: 0.2, Y: -0.1, Z: 4})

	outlier := perfectTrack(t, f, cams, r3.Vector{X: -0.3, Y: 0.2, Z: 5})
	outlier.Points[1].Coordinates[0].X += 0.05

	// Rays of the stereo pair diverge and meet behind the rig.
	behind := NewTrack()
	behind.Points = []TrackedPoint{{FrameNumber: 1, Coordinates: [2]r2.Point{{X: -1}, {X: 1}}}}

	// Parallel rays never meet.
	parallel := NewTrack()
	parallel.Points = []TrackedPoint{{FrameNumber: 1, Coordinates: [2]r2.Point{{X: 0.1}, {X: 0.1}}}}

	// Frame 0 is in the window but not retained by the filter.
	lookup := perfectTrack(t, f, cams, r3.Vector{Z: 3})
	lookup.Points = append([]TrackedPoint{{FrameNumber: 0}}, lookup.Points...)

	stale := NewTrack()
	stale.Points = []TrackedPoint{{FrameNumber: -5}}

	window := append([]int{0}, f.FrameNumbers()...)
	report, err := vu.Process(f, []Track{good, outlier, behind, parallel, lookup, stale}, cams, window)
	require.NoError(t, err)
	assert.Equal(t, &FrameReport{
		FrameNumber:    2,
		Tracks:         6,
		Aligned:        5,
		LookupFailures: 1,
		Degenerate:     1,
		BehindCamera:   1,
		Outliers:       1,
		Accepted:       1,
		Rows:           8,
		MeanNIS:        report.MeanNIS,
		Estimate:       report.Estimate,
	}, report)
	require.NotNil(t, report.Estimate)

	assert.Equal(t, 1, logs.FilterMessage("pose trail lookup failed").Len())
	assert.Equal(t, 4, logs.FilterMessage("track rejected").Len())

	frame := sink.Latest()
	require.NotNil(t, frame)
	assert.Len(t, frame.Rejections, 4)
	assert.Len(t, frame.Detections, 6)
}

func TestVisualUpdateNothingToCorrect(t *testing.T) {
	f := twoPoseFilter(t)
	vu, err := NewVisualUpdate(DefaultTuningConfig(), golog.NewTestLogger(t))
	require.NoError(t, err)

	report, err := vu.Process(f, nil, stereoRig(), nil)
	require.NoError(t, err)
	assert.Nil(t, report.Estimate)

	x0 := f.State()
	report, err = vu.Process(f, []Track{NewTrack()}, stereoRig(), f.FrameNumbers())
	require.NoError(t, err)
	assert.Nil(t, report.Estimate)
	assert.Equal(t, 0, report.Rows)
	assert.True(t, mat.Equal(x0, f.State()))

	// Without a correction the frame may be processed again.
	_, err = vu.Process(f, nil, stereoRig(), f.FrameNumbers())
	assert.NoError(t, err)
}

func TestNewVisualUpdateErrors(t *testing.T) {
	_, err := NewVisualUpdate(&TuningConfig{MeasurementSigma: ptrFloat64(-1)}, nil)
	assert.Error(t, err)

	vu, err := NewVisualUpdate(&TuningConfig{MeasurementSigma: ptrFloat64(0.25), DebugEnabled: ptrBool(true)}, nil)
	require.NoError(t, err)
	assert.Equal(t, IsotropicNoise{Sigma: 0.25}, vu.GetNoise())
	assert.True(t, vu.debug.IsEnabled())
	vu.SetNoise(IsotropicNoise{Sigma: 0.5})
	assert.Equal(t, IsotropicNoise{Sigma: 0.5}, vu.GetNoise())
	vu.SetDebugSink(nil)
	assert.False(t, vu.debug.IsEnabled())
}
