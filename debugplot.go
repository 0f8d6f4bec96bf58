package violet

import (
	"fmt"
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	detectionColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	flowColor         = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	predictedColor    = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	reprojectionColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// PlotDebugFrame renders the camera 0 view of a debug frame in normalized
// coordinates: detections, optical flow and the reprojection of accepted tracks.
// The image format follows the extension of path.
func PlotDebugFrame(frame *DebugFrame, path string) error {
	if frame == nil {
		return errors.New("nil debug frame")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Frame %d - %d detections, %d rejections", frame.FrameNumber, len(frame.Detections), len(frame.Rejections))
	p.X.Label.Text = "x/z"
	p.Y.Label.Text = "y/z"

	if len(frame.Detections) > 0 {
		pts := make(plotter.XYs, len(frame.Detections))
		for i, d := range frame.Detections {
			pts[i] = plotter.XY{X: d.Coordinates.X, Y: d.Coordinates.Y}
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return errors.Wrap(err, "detections")
		}
		s.GlyphStyle.Color = detectionColor
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add("detection", s)
	}

	for i, f := range frame.Flow {
		l, err := plotter.NewLine(plotter.XYs{{X: f.Previous.X, Y: f.Previous.Y}, {X: f.Current.X, Y: f.Current.Y}})
		if err != nil {
			return errors.Wrapf(err, "flow of track %s", f.TrackID)
		}
		l.Color = flowColor
		l.Width = vg.Points(1)
		p.Add(l)
		if i == 0 {
			p.Legend.Add("flow", l)
		}
	}

	var predicted plotter.XYs
	for _, r := range frame.Reprojections {
		if r.Camera != 0 {
			continue
		}
		predicted = append(predicted, plotter.XY{X: r.Predicted.X, Y: r.Predicted.Y})
		l, err := plotter.NewLine(plotter.XYs{{X: r.Observed.X, Y: r.Observed.Y}, {X: r.Predicted.X, Y: r.Predicted.Y}})
		if err != nil {
			return errors.Wrapf(err, "reprojection of track %s", r.TrackID)
		}
		l.Color = reprojectionColor
		l.Width = vg.Points(0.5)
		l.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		p.Add(l)
		if len(predicted) == 1 {
			p.Legend.Add("reprojection error", l)
		}
	}
	if len(predicted) > 0 {
		s, err := plotter.NewScatter(predicted)
		if err != nil {
			return errors.Wrap(err, "predictions")
		}
		s.GlyphStyle.Color = predictedColor
		s.GlyphStyle.Shape = draw.CrossGlyph{}
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add("predicted", s)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	p.Add(plotter.NewGrid())

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save debug plot of frame %d", frame.FrameNumber)
	}
	return nil
}
