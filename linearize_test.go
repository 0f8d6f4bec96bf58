package violet

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/westphae/quaternion"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// linearizeFixture is a three pose trail looking at one point with a stereo pair
// sharing its center, so that the camera centers are the trail positions.
type linearizeFixture struct {
	filter  *TrailFilter
	cameras [2]Camera
	slots   []int
	coords  [][2]r2.Point
	point   r3.Vector
}

func newLinearizeFixture(t *testing.T) *linearizeFixture {
	f, err := NewTrailFilter(3, 0.01, 0.001)
	require.NoError(t, err)
	fx := &linearizeFixture{
		filter: f,
		cameras: [2]Camera{
			NewCamera(quaternion.Quaternion{W: 1}, r3.Vector{}),
			NewCamera(AxisAngle(r3.Vector{Y: 1}, 0.05), r3.Vector{}),
		},
		slots: []int{2, 1, 0},
		point: r3.Vector{X: 0.2, Y: 0.1, Z: 5},
	}
	poses := []struct {
		p r3.Vector
		q quaternion.Quaternion
	}{
		{r3.Vector{X: -0.5, Y: 0.1}, AxisAngle(r3.Vector{X: 1, Y: 2, Z: 3}, 0.05)},
		{r3.Vector{X: 0.1, Y: -0.2, Z: 0.3}, AxisAngle(r3.Vector{X: -1, Y: 0.5}, 0.1)},
		{r3.Vector{X: 0.6, Y: 0.3, Z: -0.1}, AxisAngle(r3.Vector{Y: 1, Z: -1}, 0.08)},
	}
	for i, pq := range poses {
		require.NoError(t, f.Augment(i+1, pq.p, pq.q))
	}
	trail, err := f.CameraPoseTrail(fx.slots, fx.cameras, nil)
	require.NoError(t, err)
	for i, pair := range trail {
		var c [2]r2.Point
		for j, cp := range pair {
			_, ip, ok := cp.Project(fx.point)
			require.True(t, ok)
			// Small deterministic noise so that the rays do not intersect.
			c[j] = r2.Point{X: ip.X + 1e-3*float64(i-j), Y: ip.Y - 1e-3*float64(j)}
		}
		fx.coords = append(fx.coords, c)
	}
	return fx
}

// measure runs triangulation and linearization on the current filter state.
func (fx *linearizeFixture) measure(l Linearizer, tr Triangulator) (*MeasurementModel, *Triangulation, error) {
	trail, err := fx.filter.CameraPoseTrail(fx.slots, fx.cameras, nil)
	if err != nil {
		return nil, nil, err
	}
	obs := Observations(trail, fx.coords, fx.slots, nil)
	var tri Triangulation
	if err := tr.Triangulate(obs, &tri); err != nil {
		return nil, nil, err
	}
	var model MeasurementModel
	return &model, &tri, l.Linearize(&tri, obs, fx.filter, &model)
}

func TestLinearizeSelfTerms(t *testing.T) {
	fx := newLinearizeFixture(t)
	model, tri, err := fx.measure(Linearizer{}, Triangulator{})
	require.NoError(t, err)
	require.Equal(t, 12, model.Rows())
	if r, c := model.H.Dims(); r != 12 || c != 21 {
		t.Fatalf("H is %dx%d", r, c)
	}

	trail, err := fx.filter.CameraPoseTrail(fx.slots, fx.cameras, nil)
	require.NoError(t, err)
	obs := Observations(trail, fx.coords, fx.slots, nil)
	for i, o := range obs {
		row := 2 * i
		ac := mulVec3(o.Pose.R, tri.A.Sub(o.Pose.P))
		assert.InDelta(t, ac.X/ac.Z, model.Y.AtVec(row), 1e-15)
		assert.InDelta(t, ac.Y/ac.Z, model.Y.AtVec(row+1), 1e-15)
		assert.Equal(t, o.Coordinates.X, model.Z.AtVec(row))
		assert.Equal(t, o.Coordinates.Y, model.Z.AtVec(row+1))

		dh := ProjectionJacobian(ac)
		var pos mat.Dense
		pos.Mul(dh, o.Pose.R)
		pos.Scale(-1, &pos)
		got := model.H.Slice(row, row+2, fx.filter.CameraPosInd(o.Slot), fx.filter.CameraPosInd(o.Slot)+3)
		assert.True(t, mat.EqualApprox(&pos, got, 1e-12), "position block of observation %d", i)

		for m := 0; m < 4; m++ {
			var dRd, col mat.VecDense
			dRd.MulVec(o.Pose.DRDq[m], vec3(tri.A.Sub(o.Pose.P)))
			col.MulVec(dh, &dRd)
			ori := fx.filter.CameraOriInd(o.Slot) + m
			assert.InDelta(t, col.AtVec(0), model.H.At(row, ori), 1e-12)
			assert.InDelta(t, col.AtVec(1), model.H.At(row+1, ori), 1e-12)
		}

		// Columns of the other poses are untouched.
		for s := 0; s < fx.filter.Len(); s++ {
			if s == o.Slot {
				continue
			}
			assert.True(t, IsNil(model.H.Slice(row, row+2, PoseStateLen*s, PoseStateLen*(s+1))))
		}
	}

	r := model.Residual()
	for i := 0; i < r.Len(); i++ {
		assert.Equal(t, model.Z.AtVec(i)-model.Y.AtVec(i), r.AtVec(i))
	}
}

func TestLinearizeFoldedJacobianMatchesFiniteDifferences(t *testing.T) {
	fx := newLinearizeFixture(t)
	l := Linearizer{FoldTriangulation: true}
	model, _, err := fx.measure(l, Triangulator{})
	require.NoError(t, err)

	x0 := fx.filter.State()
	jac := mat.NewDense(model.Rows(), x0.Len(), nil)
	fd.Jacobian(jac, func(y, x []float64) {
		fx.filter.x = mat.NewVecDense(len(x), append([]float64(nil), x...))
		m, _, err := fx.measure(l, Triangulator{})
		if err != nil {
			panic(err)
		}
		copy(y, m.Y.RawVector().Data)
	}, x0.RawVector().Data, &fd.JacobianSettings{Formula: fd.Central})
	fx.filter.x = x0
	assertMatApprox(t, jac, model.H, "folded H")

	// Without the triangulation terms the Jacobian is only an approximation.
	direct, _, err := fx.measure(Linearizer{}, Triangulator{})
	require.NoError(t, err)
	assert.False(t, mat.EqualApprox(jac, direct.H, 1e-6))
}

func TestLinearizeRejectsTrackBehindCamera(t *testing.T) {
	front := cameraPose(NewCamera(quaternion.Quaternion{W: 1}, r3.Vector{}), r3.Vector{}, quaternion.Quaternion{W: 1})
	back := cameraPose(NewCamera(AxisAngle(r3.Vector{Y: 1}, math.Pi), r3.Vector{}), r3.Vector{X: 1}, quaternion.Quaternion{W: 1})
	f, err := NewTrailFilter(2, 1, 1)
	require.NoError(t, err)
	require.NoError(t, f.Augment(1, r3.Vector{}, quaternion.Quaternion{W: 1}))
	require.NoError(t, f.Augment(2, r3.Vector{}, quaternion.Quaternion{W: 1}))

	tri := &Triangulation{A: r3.Vector{Z: 4}}
	obs := []Observation{
		{Pose: &front, Slot: 0},
		{Pose: &back, Slot: 1, Coordinates: r2.Point{X: 0.1}},
	}
	var model MeasurementModel
	err = Linearizer{}.Linearize(tri, obs, f, &model)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBehindCamera), "unexpected error %v", err)
	assert.Equal(t, 0, model.Rows())
	r, c := model.H.Dims()
	assert.Zero(t, r*c, "H kept rows of a rejected track")

	// The same model is reusable for the next track.
	require.NoError(t, Linearizer{}.Linearize(tri, obs[:1], f, &model))
	assert.Equal(t, 2, model.Rows())
}

func TestLinearizeFoldRequiresDerivatives(t *testing.T) {
	cp := cameraPose(NewCamera(quaternion.Quaternion{W: 1}, r3.Vector{}), r3.Vector{}, quaternion.Quaternion{W: 1})
	f, err := NewTrailFilter(2, 1, 1)
	require.NoError(t, err)
	require.NoError(t, f.Augment(1, r3.Vector{}, quaternion.Quaternion{W: 1}))
	var model MeasurementModel
	err = Linearizer{FoldTriangulation: true}.Linearize(&Triangulation{A: r3.Vector{Z: 1}}, []Observation{{Pose: &cp}}, f, &model)
	assert.Error(t, err)
	assert.Error(t, Linearizer{}.Linearize(&Triangulation{}, nil, f, &model))
}
