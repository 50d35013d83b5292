// Package config defines the settings of a multi-camera calibration run.
package config

import (
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/multicalib/logging"
	"go.viam.com/multicalib/rimage/transform"
)

// TermCriteriaType selects which conditions end the extrinsic refinement.
type TermCriteriaType string

const (
	// TermCriteriaCount stops after MaxCount iterations.
	TermCriteriaCount = TermCriteriaType("count")
	// TermCriteriaEps stops once the relative parameter change drops to Epsilon.
	TermCriteriaEps = TermCriteriaType("eps")
	// TermCriteriaCountEps stops on whichever of the two happens first.
	TermCriteriaCountEps = TermCriteriaType("count+eps")
)

// Default values used by NewDefaultConfig.
const (
	DefaultMinMatches = 20
	DefaultMaxCount   = 200
	DefaultEpsilon    = 1e-7
)

// TermCriteria is the stopping rule of the refinement loop.
type TermCriteria struct {
	Type     TermCriteriaType `json:"type"`
	MaxCount int              `json:"max_count,omitempty"`
	Epsilon  float64          `json:"epsilon,omitempty"`
}

// Validate ensures all parts of the criteria are valid.
func (tc *TermCriteria) Validate(path string) error {
	switch tc.Type {
	case TermCriteriaCount:
		if tc.MaxCount <= 0 {
			return utils.NewConfigValidationError(path, errors.New("max_count must be positive for count criteria"))
		}
	case TermCriteriaEps:
		if tc.Epsilon <= 0 {
			return utils.NewConfigValidationError(path, errors.New("epsilon must be positive for eps criteria"))
		}
	case TermCriteriaCountEps:
		if tc.MaxCount <= 0 && tc.Epsilon <= 0 {
			return utils.NewConfigValidationError(path, errors.New("count+eps criteria needs max_count or epsilon"))
		}
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown criteria type %q", tc.Type))
	}
	return nil
}

// Done reports whether refinement should stop before running iteration iter, given the
// relative change produced by the previous iteration.
func (tc TermCriteria) Done(iter int, change float64) bool {
	countDone := tc.MaxCount > 0 && iter >= tc.MaxCount
	epsDone := change <= tc.Epsilon
	switch tc.Type {
	case TermCriteriaCount:
		return countDone
	case TermCriteriaEps:
		return epsDone
	case TermCriteriaCountEps:
		return countDone || epsDone
	default:
		return true
	}
}

// Config describes one calibration run.
type Config struct {
	CameraType transform.CameraModelType `json:"camera_type"`
	NumCameras int                       `json:"num_cameras"`
	// MinMatches is the number of correspondences an image must exceed to contribute an observation.
	MinMatches int          `json:"min_matches"`
	Criteria   TermCriteria `json:"criteria"`
	// Parallel spreads the Jacobian assembly over utils.ParallelFactor workers.
	Parallel bool `json:"parallel,omitempty"`
	// FailOnDisconnected makes an unreachable camera an error instead of a warning.
	FailOnDisconnected bool   `json:"fail_on_disconnected,omitempty"`
	LogLevel           string `json:"log_level,omitempty"`
}

// NewDefaultConfig returns the settings used when a config file leaves a field unset.
func NewDefaultConfig() *Config {
	return &Config{
		CameraType: transform.PinholeModelType,
		MinMatches: DefaultMinMatches,
		Criteria: TermCriteria{
			Type:     TermCriteriaCountEps,
			MaxCount: DefaultMaxCount,
			Epsilon:  DefaultEpsilon,
		},
		LogLevel: "info",
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	switch c.CameraType {
	case transform.PinholeModelType, transform.OmnidirModelType:
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "camera_type")
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown camera_type %q", c.CameraType))
	}
	if c.NumCameras <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("num_cameras must be positive, got %d", c.NumCameras))
	}
	if c.MinMatches < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("min_matches cannot be negative, got %d", c.MinMatches))
	}
	if err := c.Criteria.Validate(joinPath(path, "criteria")); err != nil {
		return err
	}
	if c.LogLevel != "" {
		if _, err := logging.LevelFromString(c.LogLevel); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	return nil
}

// Level returns the configured log level, defaulting to INFO.
func (c *Config) Level() logging.Level {
	if c.LogLevel == "" {
		return logging.INFO
	}
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
