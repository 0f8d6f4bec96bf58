package violet

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// TuningConfig holds the tunable parameters of the visual update.
// Fields left out of a JSON file fall back to the defaults of the Get* methods,
// so partial configs are safe.
type TuningConfig struct {
	// Measurement
	MeasurementSigma *float64 `json:"measurement_sigma,omitempty"` // normalized coordinates

	// Outlier gate
	OutlierGateEnabled     *bool    `json:"outlier_gate_enabled,omitempty"`
	OutlierGateProbability *float64 `json:"outlier_gate_probability,omitempty"`

	// Triangulation
	RayLift                   *string  `json:"ray_lift,omitempty"` // "unit_depth" or "planar"
	FoldTriangulationJacobian *bool    `json:"fold_triangulation_jacobian,omitempty"`
	MaxCondition              *float64 `json:"max_condition,omitempty"`

	// Pose trail
	PoseTrailLength          *int     `json:"pose_trail_length,omitempty"`
	PriorPositionVariance    *float64 `json:"prior_position_variance,omitempty"`
	PriorOrientationVariance *float64 `json:"prior_orientation_variance,omitempty"`

	// Debug
	DebugEnabled *bool `json:"debug_enabled,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultTuningConfig returns a TuningConfig with all fields set to nil, i.e. every Get* default.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to stat config file")
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	cfg := DefaultTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config JSON")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MeasurementSigma != nil && *c.MeasurementSigma <= 0 {
		return errors.Errorf("measurement_sigma must be positive, got %g", *c.MeasurementSigma)
	}
	if c.OutlierGateProbability != nil {
		if p := *c.OutlierGateProbability; p <= 0 || p >= 1 {
			return errors.Errorf("outlier_gate_probability must be between 0 and 1, got %g", p)
		}
	}
	if c.RayLift != nil {
		if _, err := ParseRayLift(*c.RayLift); err != nil {
			return err
		}
	}
	if c.MaxCondition != nil && *c.MaxCondition <= 1 {
		return errors.Errorf("max_condition must be above 1, got %g", *c.MaxCondition)
	}
	if c.PoseTrailLength != nil && *c.PoseTrailLength < 2 {
		return errors.Errorf("pose_trail_length must be at least 2, got %d", *c.PoseTrailLength)
	}
	if c.PriorPositionVariance != nil && *c.PriorPositionVariance <= 0 {
		return errors.Errorf("prior_position_variance must be positive, got %g", *c.PriorPositionVariance)
	}
	if c.PriorOrientationVariance != nil && *c.PriorOrientationVariance <= 0 {
		return errors.Errorf("prior_orientation_variance must be positive, got %g", *c.PriorOrientationVariance)
	}
	return nil
}

// GetMeasurementSigma returns the measurement_sigma value or the default.
func (c *TuningConfig) GetMeasurementSigma() float64 {
	if c.MeasurementSigma == nil {
		return 1e-3
	}
	return *c.MeasurementSigma
}

// GetOutlierGateEnabled returns the outlier_gate_enabled value or the default.
func (c *TuningConfig) GetOutlierGateEnabled() bool {
	if c.OutlierGateEnabled == nil {
		return true
	}
	return *c.OutlierGateEnabled
}

// GetOutlierGateProbability returns the outlier_gate_probability value or the default.
func (c *TuningConfig) GetOutlierGateProbability() float64 {
	if c.OutlierGateProbability == nil {
		return DefaultGateProbability
	}
	return *c.OutlierGateProbability
}

// GetRayLift returns the ray_lift value or the default. Invalid values fall back to the default.
func (c *TuningConfig) GetRayLift() RayLift {
	if c.RayLift == nil {
		return UnitDepthLift
	}
	l, err := ParseRayLift(*c.RayLift)
	if err != nil {
		return UnitDepthLift
	}
	return l
}

// GetFoldTriangulationJacobian returns the fold_triangulation_jacobian value or the default.
func (c *TuningConfig) GetFoldTriangulationJacobian() bool {
	if c.FoldTriangulationJacobian == nil {
		return false
	}
	return *c.FoldTriangulationJacobian
}

// GetMaxCondition returns the max_condition value or the default.
func (c *TuningConfig) GetMaxCondition() float64 {
	if c.MaxCondition == nil {
		return DefaultMaxCondition
	}
	return *c.MaxCondition
}

// GetPoseTrailLength returns the pose_trail_length value or the default.
func (c *TuningConfig) GetPoseTrailLength() int {
	if c.PoseTrailLength == nil {
		return 10
	}
	return *c.PoseTrailLength
}

// GetPriorPositionVariance returns the prior_position_variance value or the default.
func (c *TuningConfig) GetPriorPositionVariance() float64 {
	if c.PriorPositionVariance == nil {
		return 1e-2
	}
	return *c.PriorPositionVariance
}

// GetPriorOrientationVariance returns the prior_orientation_variance value or the default.
func (c *TuningConfig) GetPriorOrientationVariance() float64 {
	if c.PriorOrientationVariance == nil {
		return 1e-4
	}
	return *c.PriorOrientationVariance
}

// GetDebugEnabled returns the debug_enabled value or the default.
func (c *TuningConfig) GetDebugEnabled() bool {
	if c.DebugEnabled == nil {
		return false
	}
	return *c.DebugEnabled
}

// NewTrailFilter returns an empty TrailFilter sized by the pose trail parameters.
func (c *TuningConfig) NewTrailFilter() (*TrailFilter, error) {
	return NewTrailFilter(c.GetPoseTrailLength(), c.GetPriorPositionVariance(), c.GetPriorOrientationVariance())
}
