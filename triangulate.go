package violet

import (
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DefaultMaxCondition is the largest accepted condition number of the ray system.
const DefaultMaxCondition = 1e10

// RayLift selects how normalized coordinates are lifted to a camera-frame ray.
type RayLift uint8

const (
	// UnitDepthLift uses the pinhole ray (x, y, 1).
	UnitDepthLift RayLift = iota
	// PlanarLift uses (x, y, 0). The ray does not pass through the observed
	// point in general and the triangulated point is biased.
	PlanarLift
)

func (l RayLift) String() string {
	switch l {
	case UnitDepthLift:
		return "unit_depth"
	case PlanarLift:
		return "planar"
	default:
		return "unknown"
	}
}

// ParseRayLift returns the lift named s.
func ParseRayLift(s string) (RayLift, error) {
	switch strings.ToLower(s) {
	case "unit_depth", "":
		return UnitDepthLift, nil
	case "planar":
		return PlanarLift, nil
	}
	return 0, errors.Errorf("unknown ray lift %q", s)
}

func (l RayLift) lift(ip r2.Point) r3.Vector {
	if l == PlanarLift {
		return r3.Vector{X: ip.X, Y: ip.Y}
	}
	return r3.Vector{X: ip.X, Y: ip.Y, Z: 1}
}

// Observation is one camera's view of a track at one retained pose.
type Observation struct {
	Pose        *CameraPose
	Coordinates r2.Point
	Slot        int // pose trail slot, newest first
}

// Observations flattens aligned poses and coordinates into dst, observation 2*i+j
// being camera j at aligned pose i.
func Observations(poses [][2]CameraPose, coords [][2]r2.Point, slots []int, dst []Observation) []Observation {
	for i := range poses {
		for j := 0; j < 2; j++ {
			dst = append(dst, Observation{Pose: &poses[i][j], Coordinates: coords[i][j], Slot: slots[i]})
		}
	}
	return dst
}

// Triangulation is a triangulated point with its derivatives with respect to the
// position and orientation of every observation, in observation order.
type Triangulation struct {
	A    r3.Vector
	DaDp []*mat.Dense // 3x3
	DaDq []*mat.Dense // 3x4, columns (W, X, Y, Z)
}

// Reset empties the triangulation, keeping its slices.
func (t *Triangulation) Reset() {
	t.A = r3.Vector{}
	t.DaDp = t.DaDp[:0]
	t.DaDq = t.DaDq[:0]
}

// Triangulator finds the point closest to all observation rays in the least
// squares sense (Szeliski, Computer Vision: Algorithms and Applications, 7.1).
// Every ray counts the same, so the known stereo baseline is not exploited.
type Triangulator struct {
	Lift         RayLift
	MaxCondition float64 // zero selects DefaultMaxCondition
}

type ray struct {
	lifted r3.Vector // camera frame
	norm   float64   // of the world frame ray
	vn     r3.Vector // unit world frame ray
	proj   *mat.SymDense
}

func (tr Triangulator) ray(o Observation) (ray, error) {
	l := tr.Lift.lift(o.Coordinates)
	v := mulVec3(o.Pose.R.T(), l)
	n := v.Norm()
	if n == 0 {
		return ray{}, errors.Wrap(ErrDegenerateGeometry, "zero length ray")
	}
	vn := v.Mul(1 / n)
	return ray{lifted: l, norm: n, vn: vn, proj: projector(vn)}, nil
}

// Triangulate solves a = S⁻¹t with S = Σ(I - vn vnᵗ) and t = Σ(I - vn vnᵗ)p and
// writes a with its derivatives into out. On ErrDegenerateGeometry out is left empty.
func (tr Triangulator) Triangulate(obs []Observation, out *Triangulation) error {
	out.Reset()
	if len(obs) < 2 {
		return errors.Wrapf(ErrDegenerateGeometry, "%d observations", len(obs))
	}
	rays := make([]ray, len(obs))
	S := mat.NewSymDense(3, nil)
	var t r3.Vector
	for i, o := range obs {
		r, err := tr.ray(o)
		if err != nil {
			return err
		}
		rays[i] = r
		S.AddSym(S, r.proj)
		t = t.Add(mulVec3(r.proj, o.Pose.P))
	}

	maxCond := tr.MaxCondition
	if maxCond <= 0 {
		maxCond = DefaultMaxCondition
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(S); !ok {
		return errors.Wrap(ErrDegenerateGeometry, "ray system is not positive definite")
	}
	if c := chol.Cond(); c > maxCond {
		return errors.Wrapf(ErrDegenerateGeometry, "ray system condition %g", c)
	}
	var invS mat.SymDense
	if err := chol.InverseTo(&invS); err != nil {
		return errors.Wrap(ErrDegenerateGeometry, err.Error())
	}
	a := mulVec3(&invS, t)

	for i, o := range obs {
		r := rays[i]
		dadp := mat.NewDense(3, 3, nil)
		dadp.Mul(&invS, r.proj)

		dvdq := mat.NewDense(3, 4, nil)
		for k, dR := range o.Pose.DRDq {
			dv := mulVec3(dR.T(), r.lifted)
			dvdq.SetCol(k, []float64{dv.X, dv.Y, dv.Z})
		}

		var dvndv mat.Dense
		dvndv.Scale(1/r.norm, r.proj)

		// Column k is S⁻¹Q_kS⁻¹t - S⁻¹Q_k p with Q_k = e_k vnᵗ + vn e_kᵗ.
		// S⁻¹t is a, so Q_k(a - p) = (vn·d) e_k + d_k vn with d = a - p.
		d := a.Sub(o.Pose.P)
		vd := r.vn.Dot(d)
		dk := [3]float64{d.X, d.Y, d.Z}
		dadvn := mat.NewDense(3, 3, nil)
		for k := 0; k < 3; k++ {
			var ek r3.Vector
			switch k {
			case 0:
				ek.X = 1
			case 1:
				ek.Y = 1
			case 2:
				ek.Z = 1
			}
			col := mulVec3(&invS, ek.Mul(vd).Add(r.vn.Mul(dk[k])))
			dadvn.SetCol(k, []float64{col.X, col.Y, col.Z})
		}

		var dadv mat.Dense
		dadv.Mul(dadvn, &dvndv)
		dadq := mat.NewDense(3, 4, nil)
		dadq.Mul(&dadv, dvdq)

		out.DaDp = append(out.DaDp, dadp)
		out.DaDq = append(out.DaDq, dadq)
	}
	out.A = a
	return nil
}
