package violet

import (
	"github.com/golang/geo/r2"
	"github.com/google/uuid"
)

// TrackedPoint is one stereo observation of a feature.
type TrackedPoint struct {
	FrameNumber int
	Coordinates [2]r2.Point // normalized coordinates, one per camera
}

// Track is one visually tracked feature. Points are sorted ascending by FrameNumber.
type Track struct {
	ID     uuid.UUID
	Points []TrackedPoint
}

// NewTrack returns an empty track with a fresh ID.
func NewTrack() Track {
	return Track{ID: uuid.New()}
}

// Latest returns the newest point of the track.
func (t Track) Latest() (TrackedPoint, bool) {
	if len(t.Points) == 0 {
		return TrackedPoint{}, false
	}
	return t.Points[len(t.Points)-1], true
}

// AlignTrack appends to slots and coords the track points whose frame number is
// retained in window, which lists frame numbers oldest first. The filter stores
// poses newest first, so window index i is reported as slot len(window)-1-i.
func AlignTrack(track Track, window []int, slots []int, coords [][2]r2.Point) ([]int, [][2]r2.Point) {
	n := len(window)
	i := 0
	for _, pt := range track.Points {
		if i >= n {
			break
		}
		if pt.FrameNumber < window[i] {
			continue
		}
		for i < n && window[i] < pt.FrameNumber {
			i++
		}
		if i < n && window[i] == pt.FrameNumber {
			slots = append(slots, n-1-i)
			coords = append(coords, pt.Coordinates)
		}
	}
	return slots, coords
}
