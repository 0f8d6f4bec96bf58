package violet

import (
	"fmt"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// MonteCarloRuns stores repeated triangulations of one point from noisy observations.
type MonteCarloRuns struct {
	Point r3.Vector
	Runs  []MonteCarloRun
}

// MonteCarloRun stores the result of one triangulation.
type MonteCarloRun struct {
	Estimate r3.Vector
	Err      error // non nil when the triangulation failed
}

// axisErrors returns the per axis errors of the successful runs.
func (mc MonteCarloRuns) axisErrors() [3][]float64 {
	var errs [3][]float64
	for _, run := range mc.Runs {
		if run.Err != nil {
			continue
		}
		e := run.Estimate.Sub(mc.Point)
		errs[0] = append(errs[0], e.X)
		errs[1] = append(errs[1], e.Y)
		errs[2] = append(errs[2], e.Z)
	}
	return errs
}

// Mean returns the mean of the errors of the successful runs.
func (mc MonteCarloRuns) Mean() r3.Vector {
	errs := mc.axisErrors()
	if len(errs[0]) == 0 {
		return r3.Vector{}
	}
	return r3.Vector{X: stat.Mean(errs[0], nil), Y: stat.Mean(errs[1], nil), Z: stat.Mean(errs[2], nil)}
}

// StdDev returns the standard deviation of the errors of the successful runs.
func (mc MonteCarloRuns) StdDev() r3.Vector {
	errs := mc.axisErrors()
	if len(errs[0]) < 2 {
		return r3.Vector{}
	}
	return r3.Vector{X: stat.StdDev(errs[0], nil), Y: stat.StdDev(errs[1], nil), Z: stat.StdDev(errs[2], nil)}
}

// Failures returns the number of failed triangulations.
func (mc MonteCarloRuns) Failures() (n int) {
	for _, run := range mc.Runs {
		if run.Err != nil {
			n++
		}
	}
	return
}

// AsCSV is used as a CSV serializer, one line per successful run then the mean and stddev.
func (mc MonteCarloRuns) AsCSV() string {
	lines := []string{"run,ex,ey,ez"}
	for r, run := range mc.Runs {
		if run.Err != nil {
			continue
		}
		e := run.Estimate.Sub(mc.Point)
		lines = append(lines, fmt.Sprintf("%d,%f,%f,%f", r, e.X, e.Y, e.Z))
	}
	mean, dev := mc.Mean(), mc.StdDev()
	lines = append(lines,
		fmt.Sprintf("mean,%f,%f,%f", mean.X, mean.Y, mean.Z),
		fmt.Sprintf("stddev,%f,%f,%f", dev.X, dev.Y, dev.Z),
	)
	return strings.Join(lines, "\n")
}

// NewTriangulationMonteCarlo triangulates point samples times from its noisy
// projections in both cameras of every pose of trajectory. A nil noise observes
// exact coordinates.
func NewTriangulationMonteCarlo(samples int, point r3.Vector, trajectory []BodyPose, cameras [2]Camera, noise *AWGN, tr Triangulator) (MonteCarloRuns, error) {
	if samples < 1 {
		return MonteCarloRuns{}, errors.Errorf("invalid number of samples %d", samples)
	}
	if len(trajectory) == 0 {
		return MonteCarloRuns{}, errors.New("empty trajectory")
	}
	n := len(trajectory)
	poses := make([][2]CameraPose, n)
	exact := make([][2]r2.Point, n)
	slots := make([]int, n)
	for i, pose := range trajectory {
		slots[i] = n - 1 - i
		for j, cam := range cameras {
			poses[i][j] = cameraPose(cam, pose.Position, pose.Orientation)
			_, ip, ok := poses[i][j].Project(point)
			if !ok {
				return MonteCarloRuns{}, errors.Wrapf(ErrBehindCamera, "pose %d camera %d", i, j)
			}
			exact[i][j] = ip
		}
	}

	runs := make([]MonteCarloRun, samples)
	coords := make([][2]r2.Point, n)
	var (
		obs []Observation
		tri Triangulation
	)
	for s := range runs {
		for i := range exact {
			for j, ip := range exact[i] {
				if noise != nil {
					ip = noise.Perturb(ip)
				}
				coords[i][j] = ip
			}
		}
		obs = Observations(poses, coords, slots, obs[:0])
		if err := tr.Triangulate(obs, &tri); err != nil {
			runs[s] = MonteCarloRun{Err: err}
			continue
		}
		runs[s] = MonteCarloRun{Estimate: tri.A}
	}
	return MonteCarloRuns{Point: point, Runs: runs}, nil
}
