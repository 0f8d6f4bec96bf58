package violet

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDegenerateGeometry is returned when the rays of a track do not pin down a point.
	ErrDegenerateGeometry = errors.New("degenerate triangulation geometry")
	// ErrBehindCamera is returned when a triangulated point is not in front of every observing camera.
	ErrBehindCamera = errors.New("triangulated point behind camera")
	// ErrOutlier is returned when a track fails the chi-square gate.
	ErrOutlier = errors.New("track residual rejected by outlier gate")
	// ErrAlreadyUpdated is returned when a frame is corrected twice.
	ErrAlreadyUpdated = errors.New("visual update already applied for frame")
)

// PoseTrailLookupError is returned when a requested slot is outside the retained window.
type PoseTrailLookupError struct {
	Index, Len int
}

func (e *PoseTrailLookupError) Error() string {
	return fmt.Sprintf("pose trail index %d outside retained window of %d poses", e.Index, e.Len)
}

// DimensionAgreement defines how two matrices' dimensions should agree.
type DimensionAgreement uint8

const (
	dimErrMsg                    = "dimensions must agree: "
	rows2cols DimensionAgreement = iota + 1
	cols2rows
	cols2cols
	rows2rows
	rowsAndcols
)

// checkMatDims checks the matrix dimensions match provided a DimensionAgreement. Returns an error if not.
func checkMatDims(m1, m2 mat.Matrix, name1, name2 string, method DimensionAgreement) error {
	r1, c1 := m1.Dims()
	r2, c2 := m2.Dims()
	switch method {
	case rows2cols:
		if r1 != c2 {
			return errors.Errorf("%s%s(%dx...) %s(...x%d)", dimErrMsg, name1, r1, name2, c2)
		}
	case cols2rows:
		if c1 != r2 {
			return errors.Errorf("%s%s(...x%d) %s(%dx...)", dimErrMsg, name1, c1, name2, r2)
		}
	case cols2cols:
		if c1 != c2 {
			return errors.Errorf("%s%s(...x%d) %s(...x%d)", dimErrMsg, name1, c1, name2, c2)
		}
	case rows2rows:
		if r1 != r2 {
			return errors.Errorf("%s%s(%dx...) %s(%dx...)", dimErrMsg, name1, r1, name2, r2)
		}
	case rowsAndcols:
		if c1 != c2 || r1 != r2 {
			return errors.Errorf("%s%s(%dx%d) %s(%dx%d)", dimErrMsg, name1, r1, c1, name2, r2, c2)
		}
	}
	return nil
}
