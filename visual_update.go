package violet

import (
	"fmt"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// errNotRetained marks a track none of whose frames is in the pose trail.
var errNotRetained = errors.New("track has no retained frame")

// FrameReport summarizes the visual update of one frame.
type FrameReport struct {
	FrameNumber    int
	Tracks         int // tracks provided
	Aligned        int // tracks with at least one retained frame
	LookupFailures int
	Degenerate     int
	BehindCamera   int
	Outliers       int
	Failed         int // other per-track failures
	Accepted       int
	Rows           int // stacked measurement rows
	MeanNIS        float64
	Estimate       *VisualEstimate // nil when no correction was applied
}

func (r *FrameReport) String() string {
	return fmt.Sprintf("frame %d: %d tracks, %d aligned, %d accepted (%d rows), rejected %d lookup %d degenerate %d behind %d outlier %d failed",
		r.FrameNumber, r.Tracks, r.Aligned, r.Accepted, r.Rows, r.LookupFailures, r.Degenerate, r.BehindCamera, r.Outliers, r.Failed)
}

// scratch holds buffers reused across tracks and frames. They carry nothing from
// one track to the next and are truncated before use.
type scratch struct {
	slots  []int
	coords [][2]r2.Point
	poses  [][2]CameraPose
	obs    []Observation
	tri    Triangulation
	model  MeasurementModel

	// Stacked rows of the accepted tracks, H row-major.
	h, y, z []float64
}

func (s *scratch) resetFrame() {
	s.h, s.y, s.z = s.h[:0], s.y[:0], s.z[:0]
}

// VisualUpdate corrects a pose trail filter with the feature tracks of a frame.
// It is not safe for concurrent use.
type VisualUpdate struct {
	triangulator Triangulator
	linearizer   Linearizer
	gate         OutlierGate
	noise        MeasurementNoise
	logger       golog.Logger
	debug        *DebugCollector
	sink         DebugSink

	lastFrame int
	updated   bool
	tmp       scratch
}

// NewVisualUpdate returns a VisualUpdate tuned by cfg. A nil logger selects golog.Global().
func NewVisualUpdate(cfg *TuningConfig, logger golog.Logger) (*VisualUpdate, error) {
	if cfg == nil {
		cfg = DefaultTuningConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = golog.Global()
	}
	v := &VisualUpdate{
		triangulator: Triangulator{Lift: cfg.GetRayLift(), MaxCondition: cfg.GetMaxCondition()},
		linearizer:   Linearizer{FoldTriangulation: cfg.GetFoldTriangulationJacobian()},
		gate:         OutlierGate{Enabled: cfg.GetOutlierGateEnabled(), Probability: cfg.GetOutlierGateProbability()},
		noise:        IsotropicNoise{Sigma: cfg.GetMeasurementSigma()},
		logger:       logger,
		debug:        NewDebugCollector(),
	}
	v.debug.SetEnabled(cfg.GetDebugEnabled())
	return v, nil
}

// SetDebugSink publishes a DebugFrame of every processed frame to sink and
// enables debug collection. A nil sink disables it.
func (v *VisualUpdate) SetDebugSink(sink DebugSink) {
	v.sink = sink
	v.debug.SetEnabled(sink != nil)
}

// SetNoise replaces the isotropic measurement noise of the configuration.
func (v *VisualUpdate) SetNoise(noise MeasurementNoise) {
	v.noise = noise
}

// GetNoise returns the measurement noise.
func (v *VisualUpdate) GetNoise() MeasurementNoise {
	return v.noise
}

// Process runs the visual update of the newest frame of window, the ascending
// frame numbers retained by filter. Tracks that cannot contribute are counted in
// the report and skipped. All accepted tracks are applied in a single correction;
// processing the same newest frame again fails with ErrAlreadyUpdated.
func (v *VisualUpdate) Process(filter Filter, tracks []Track, cameras [2]Camera, window []int) (*FrameReport, error) {
	report := &FrameReport{Tracks: len(tracks)}
	if len(window) == 0 {
		return report, nil
	}
	report.FrameNumber = window[len(window)-1]
	if v.updated && report.FrameNumber == v.lastFrame {
		return report, errors.Wrapf(ErrAlreadyUpdated, "frame %d", report.FrameNumber)
	}

	P := filter.Covariance()
	cols := filter.CameraStateLen()
	v.tmp.resetFrame()
	v.gate.Reset()
	v.debug.BeginFrame(report.FrameNumber)
	defer v.publish()

	for _, track := range tracks {
		v.debug.RecordTrack(track)
		err := v.processTrack(filter, track, cameras, window, P)
		if errors.Is(err, errNotRetained) {
			continue
		}
		report.Aligned++
		if err == nil {
			report.Accepted++
			continue
		}

		var lookup *PoseTrailLookupError
		switch {
		case errors.As(err, &lookup):
			report.LookupFailures++
			v.logger.Warnw("pose trail lookup failed", "track", track.ID, "index", lookup.Index, "retained", lookup.Len)
		case errors.Is(err, ErrDegenerateGeometry):
			report.Degenerate++
		case errors.Is(err, ErrBehindCamera):
			report.BehindCamera++
		case errors.Is(err, ErrOutlier):
			report.Outliers++
		default:
			report.Failed++
		}
		v.debug.RecordRejection(track.ID, err)
		v.logger.Debugw("track rejected", "frame", report.FrameNumber, "track", track.ID, "error", err)
	}
	report.MeanNIS = v.gate.MeanNIS()

	rows := len(v.tmp.y)
	report.Rows = rows
	if rows == 0 {
		v.logger.Debugw("no visual correction", "report", report)
		return report, nil
	}

	model := &MeasurementModel{
		H: mat.NewDense(rows, cols, append([]float64(nil), v.tmp.h...)),
		Y: mat.NewVecDense(rows, append([]float64(nil), v.tmp.y...)),
		Z: mat.NewVecDense(rows, append([]float64(nil), v.tmp.z...)),
	}
	c, err := Correct(P, model.H, model.Residual(), v.noise.MeasurementMatrix(rows))
	if err != nil {
		return report, errors.Wrapf(err, "visual correction of frame %d", report.FrameNumber)
	}
	if err := filter.ApplyCorrection(c.Dx, c.P); err != nil {
		return report, errors.Wrapf(err, "applying visual correction of frame %d", report.FrameNumber)
	}
	v.lastFrame, v.updated = report.FrameNumber, true

	est := NewVisualEstimate(report.FrameNumber, filter.State(), model, c, P)
	report.Estimate = &est
	v.logger.Debugw("visual correction applied", "report", report, "meanNIS", report.MeanNIS)
	return report, nil
}

// processTrack stacks the measurement rows of one track, or returns why it cannot contribute.
func (v *VisualUpdate) processTrack(filter Filter, track Track, cameras [2]Camera, window []int, P mat.Symmetric) error {
	t := &v.tmp
	t.slots, t.coords = AlignTrack(track, window, t.slots[:0], t.coords[:0])
	if len(t.slots) == 0 {
		return errNotRetained
	}

	var err error
	t.poses, err = filter.CameraPoseTrail(t.slots, cameras, t.poses[:0])
	if err != nil {
		return err
	}
	t.obs = Observations(t.poses, t.coords, t.slots, t.obs[:0])
	if err := v.triangulator.Triangulate(t.obs, &t.tri); err != nil {
		return err
	}
	if err := v.linearizer.Linearize(&t.tri, t.obs, filter, &t.model); err != nil {
		return err
	}
	rows := t.model.Rows()
	if _, err := v.gate.Check(t.model.H, P, v.noise.MeasurementMatrix(rows), t.model.Residual()); err != nil {
		return err
	}

	for i := 0; i < rows; i++ {
		t.h = append(t.h, t.model.H.RawRowView(i)...)
	}
	t.y = append(t.y, t.model.Y.RawVector().Data[:rows]...)
	t.z = append(t.z, t.model.Z.RawVector().Data[:rows]...)
	v.debug.RecordReprojections(track.ID, t.obs, &t.model)
	return nil
}

func (v *VisualUpdate) publish() {
	frame := v.debug.Emit()
	if frame == nil {
		return
	}
	if v.sink == nil {
		v.logger.Debugw("debug frame dropped, no sink", "frame", frame.FrameNumber)
		return
	}
	v.sink.Publish(frame)
}
