package violet

import (
	"image"
	"io"
	"time"

	"github.com/golang/geo/r3"
)

// Event is one timestamped input of the odometry: an IMU sample or a stereo frame.
type Event interface {
	Timestamp() time.Duration
	event()
}

// Gyroscope is an angular velocity sample in the IMU body frame, rad/s.
type Gyroscope struct {
	Time            time.Duration
	AngularVelocity r3.Vector
}

// Accelerometer is a specific force sample in the IMU body frame, m/s².
type Accelerometer struct {
	Time          time.Duration
	SpecificForce r3.Vector
}

// Frame is a synchronized stereo image pair. Pyramids, when present, hold the
// downscaled levels of each image, finest first.
type Frame struct {
	Time     time.Duration
	Number   int
	Images   [2]image.Image
	Pyramids [2][]image.Image
}

// Timestamp implements the Event interface.
func (g Gyroscope) Timestamp() time.Duration { return g.Time }

// Timestamp implements the Event interface.
func (a Accelerometer) Timestamp() time.Duration { return a.Time }

// Timestamp implements the Event interface.
func (f Frame) Timestamp() time.Duration { return f.Time }

func (Gyroscope) event()     {}
func (Accelerometer) event() {}
func (Frame) event()         {}

// Source yields events in timestamp order. Next returns io.EOF once exhausted.
type Source interface {
	Next() (Event, error)
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []Event
	next   int
}

// NewSliceSource returns a source replaying events in the given order.
func NewSliceSource(events []Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next implements the Source interface.
func (s *SliceSource) Next() (Event, error) {
	if s.next >= len(s.events) {
		return nil, io.EOF
	}
	e := s.events[s.next]
	s.next++
	return e, nil
}

// Len returns the number of events not yet replayed.
func (s *SliceSource) Len() int {
	return len(s.events) - s.next
}

// Tracker turns stereo frames into feature tracks. Returned tracks end at the
// given frame and hold every retained observation, oldest first.
type Tracker interface {
	Track(frame Frame) ([]Track, error)
}
