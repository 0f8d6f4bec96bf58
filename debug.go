package violet

import (
	"sync"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
)

// Pre-allocation capacities for debug frame slices.
const (
	defaultDetectionCapacity    = 64
	defaultReprojectionCapacity = 128
	defaultRejectionCapacity    = 16
)

// DebugCollector accumulates debug artifacts during a single frame's processing.
// When enabled, it records the tracks seen, their optical flow, the reprojection
// of accepted tracks and the reason of every rejection.
//
// The collector is stateful: call Record*() methods during processing, then
// Emit() at frame completion to extract the artifacts. Reset() before the next frame.
type DebugCollector struct {
	enabled bool
	current *DebugFrame
}

// DebugFrame contains all debug artifacts for a single frame.
// Consumers must treat it as read-only.
type DebugFrame struct {
	FrameNumber int

	// Newest camera 0 coordinates of every track of the frame.
	Detections []Detection

	// Camera 0 coordinates of the previous and current frame of continued tracks.
	Flow []FlowPair

	// Predicted and observed coordinates of every stacked measurement row pair.
	Reprojections []Reprojection

	// Tracks that did not contribute to the correction.
	Rejections []Rejection
}

// Detection is the newest observation of a track.
type Detection struct {
	TrackID     uuid.UUID
	Coordinates r2.Point
}

// FlowPair is the displacement of a track between consecutive frames.
type FlowPair struct {
	TrackID  uuid.UUID
	Previous r2.Point
	Current  r2.Point
}

// Reprojection compares the projection of a triangulated point with its observation.
type Reprojection struct {
	TrackID   uuid.UUID
	Slot      int // pose trail slot
	Camera    int
	Predicted r2.Point
	Observed  r2.Point
}

// Rejection records why a track was skipped.
type Rejection struct {
	TrackID uuid.UUID
	Reason  string
}

// NewDebugCollector creates a collector that's initially disabled.
// Call SetEnabled(true) to begin collecting artifacts.
func NewDebugCollector() *DebugCollector {
	return &DebugCollector{}
}

// SetEnabled controls whether the collector records artifacts.
// When disabled, all Record*() calls are no-ops.
func (c *DebugCollector) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// IsEnabled returns true if the collector is actively recording.
func (c *DebugCollector) IsEnabled() bool {
	return c.enabled
}

// BeginFrame initialises collection for a new frame.
// Must be called before any Record*() calls.
func (c *DebugCollector) BeginFrame(frameNumber int) {
	if !c.enabled {
		return
	}
	c.current = &DebugFrame{
		FrameNumber:   frameNumber,
		Detections:    make([]Detection, 0, defaultDetectionCapacity),
		Flow:          make([]FlowPair, 0, defaultDetectionCapacity),
		Reprojections: make([]Reprojection, 0, defaultReprojectionCapacity),
		Rejections:    make([]Rejection, 0, defaultRejectionCapacity),
	}
}

// RecordTrack captures the newest detection of a track and, when the track was
// also observed in the previous frame, its flow.
func (c *DebugCollector) RecordTrack(track Track) {
	if !c.enabled || c.current == nil {
		return
	}
	n := len(track.Points)
	if n == 0 {
		return
	}
	cur := track.Points[n-1]
	c.current.Detections = append(c.current.Detections, Detection{TrackID: track.ID, Coordinates: cur.Coordinates[0]})
	if n > 1 && track.Points[n-2].FrameNumber == cur.FrameNumber-1 {
		c.current.Flow = append(c.current.Flow, FlowPair{
			TrackID:  track.ID,
			Previous: track.Points[n-2].Coordinates[0],
			Current:  cur.Coordinates[0],
		})
	}
}

// RecordReprojections captures the predicted and observed coordinates of every
// observation of an accepted track.
func (c *DebugCollector) RecordReprojections(trackID uuid.UUID, obs []Observation, model *MeasurementModel) {
	if !c.enabled || c.current == nil {
		return
	}
	for i, o := range obs {
		row := 2 * i
		c.current.Reprojections = append(c.current.Reprojections, Reprojection{
			TrackID:   trackID,
			Slot:      o.Slot,
			Camera:    i % 2,
			Predicted: r2.Point{X: model.Y.AtVec(row), Y: model.Y.AtVec(row + 1)},
			Observed:  o.Coordinates,
		})
	}
}

// RecordRejection captures why a track was skipped.
func (c *DebugCollector) RecordRejection(trackID uuid.UUID, reason error) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Rejections = append(c.current.Rejections, Rejection{TrackID: trackID, Reason: reason.Error()})
}

// Emit returns the accumulated debug frame and prepares for the next frame.
// Returns nil if collection is disabled or no frame was begun.
func (c *DebugCollector) Emit() *DebugFrame {
	if !c.enabled || c.current == nil {
		return nil
	}
	frame := c.current
	c.current = nil
	return frame
}

// Reset clears any pending artifacts without emitting them.
func (c *DebugCollector) Reset() {
	c.current = nil
}

// DebugSink receives the debug frames of the visual update.
type DebugSink interface {
	Publish(frame *DebugFrame)
}

// SnapshotSink keeps the last published frame for visualization consumers.
// It is safe for concurrent use; the last writer wins.
type SnapshotSink struct {
	mu   sync.RWMutex
	last *DebugFrame
}

// Publish implements the DebugSink interface.
func (s *SnapshotSink) Publish(frame *DebugFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = frame
}

// Latest returns the last published frame, nil if none.
func (s *SnapshotSink) Latest() *DebugFrame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
