package violet

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// PoseHeaders names the state columns of one trail pose.
var PoseHeaders = []string{"px", "py", "pz", "qw", "qx", "qy", "qz"}

// Exporter defines an export interface.
type Exporter interface {
	Write(Estimate) error
	Close() error
}

// CSVExporter writes the newest trail pose of each estimate with its 2σ bounds.
type CSVExporter struct {
	delimiter string
	hdlr      *os.File
}

// Close closes the file.
func (e CSVExporter) Close() (err error) {
	err = e.WriteRawLn(fmt.Sprintf("# Closing date (UTC): %s", time.Now().UTC()))
	if err != nil {
		return
	}
	return e.hdlr.Close()
}

// Write writes the newest pose of the estimate to the CSV file. The frame column
// is left empty when est does not carry a frame number.
func (e CSVExporter) Write(est Estimate) error {
	r := est.State().Len()
	if r < PoseStateLen {
		return errors.Errorf("estimate holds %d states, less than one pose", r)
	}
	vals := make([]string, 1+PoseStateLen*3)
	if framed, ok := est.(interface{ FrameNumber() int }); ok {
		vals[0] = fmt.Sprintf("%d", framed.FrameNumber())
	}
	for i := 0; i < PoseStateLen; i++ {
		v := est.State().AtVec(i)
		covar := 2 * math.Sqrt(est.Covariance().At(i, i))
		vals[1+3*i] = fmt.Sprintf("%f", v)
		vals[2+3*i] = fmt.Sprintf("%f", v+covar)
		vals[3+3*i] = fmt.Sprintf("%f", v-covar)
	}
	_, err := e.hdlr.WriteString(strings.Join(vals, e.delimiter) + "\n")
	return err
}

// WriteRawLn writes a raw line to the CSV file.
func (e CSVExporter) WriteRawLn(s string) error {
	_, err := e.hdlr.WriteString(s + "\n")
	return err
}

// Name returns the path of the CSV file.
func (e CSVExporter) Name() string {
	return e.hdlr.Name()
}

// NewCSVExporter initializes a new CSV export of trail poses.
func NewCSVExporter(dir, filename string) (e *CSVExporter, err error) {
	f, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return nil, errors.Wrap(err, "create CSV export")
	}
	delimiter := ","
	// Header
	hdr := make([]string, 1+len(PoseHeaders)*3)
	hdr[0] = "frame"
	for i, h := range PoseHeaders {
		hdr[1+3*i] = h
		hdr[2+3*i] = h + "+2s"
		hdr[3+3*i] = h + "-2s"
	}
	if _, err = f.WriteString(fmt.Sprintf("# Creation date (UTC): %s\n%s\n", time.Now().UTC(), strings.Join(hdr, delimiter))); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "write CSV header")
	}
	return &CSVExporter{delimiter, f}, nil
}
