package calibration

import (
	"context"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/multicalib/config"
	"go.viam.com/multicalib/logging"
	"go.viam.com/multicalib/rimage/transform"
)

// Calibrator runs the full extrinsic calibration of a camera rig.
type Calibrator struct {
	cfg          *config.Config
	observations [][]Observation
	intrinsics   IntrinsicCalibrator
	logger       logging.Logger

	graph        *PoseGraph
	initialError float64
}

// NewCalibrator returns a Calibrator for observations, indexed by camera.
func NewCalibrator(
	cfg *config.Config,
	observations [][]Observation,
	intrinsics IntrinsicCalibrator,
	logger logging.Logger,
) (*Calibrator, error) {
	if cfg == nil {
		return nil, errors.New("calibrator needs a config")
	}
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	if len(observations) != cfg.NumCameras {
		return nil, errors.Errorf("expected observations for %d cameras, got %d", cfg.NumCameras, len(observations))
	}
	if intrinsics == nil {
		return nil, errors.New("calibrator needs an intrinsic calibrator")
	}
	return &Calibrator{cfg: cfg, observations: observations, intrinsics: intrinsics, logger: logger}, nil
}

// Run calibrates every camera, builds and initializes the pose graph, then refines all poses
// jointly.
func (c *Calibrator) Run(ctx context.Context) (*Result, error) {
	ctx, span := trace.StartSpan(ctx, "calibration::Calibrator::Run")
	defer span.End()

	calibrations, err := CalibrateCameras(ctx, c.intrinsics, c.observations)
	if err != nil {
		return nil, err
	}
	models := make([]transform.Projector, len(calibrations))
	for camera, calib := range calibrations {
		if calib.Model.ModelType() != c.cfg.CameraType {
			return nil, errors.Errorf("camera %d has a %s model, config asks for %s",
				camera, calib.Model.ModelType(), c.cfg.CameraType)
		}
		models[camera] = calib.Model
	}

	graphLogger := c.logger.Sublogger("graph")
	graph, err := BuildPoseGraph(c.cfg.MinMatches, calibrations, c.observations)
	if err != nil {
		return nil, err
	}
	c.graph = graph
	graphLogger.Debugw("pose graph built", "cameras", graph.NumCameras,
		"photos", len(graph.Vertices)-graph.NumCameras, "edges", len(graph.Edges),
		"edges_per_camera", graph.CameraEdgeCounts())

	disconnected, err := graph.Initialize(graphLogger)
	if err != nil {
		return nil, err
	}
	if len(disconnected) > 0 && c.cfg.FailOnDisconnected {
		return nil, errors.Errorf("cameras %v are not connected to camera %d", disconnected, RootVertex)
	}

	bundle, err := NewBundle(graph, models, c.observations)
	if err != nil {
		return nil, err
	}
	params, err := graph.Parameters()
	if err != nil {
		return nil, err
	}
	refiner := NewRefiner(bundle, c.cfg.Criteria, c.cfg.Parallel, c.logger.Sublogger("refiner"))
	refined, err := refiner.Refine(ctx, params)
	if err != nil {
		return nil, err
	}
	c.initialError = refined.InitialError
	if err := graph.SetParameters(refined.Params); err != nil {
		return nil, err
	}

	statistics, err := bundle.CameraStatistics(refined.Params)
	if err != nil {
		return nil, err
	}
	return newResult(graph, models, refined, disconnected, statistics)
}

// InitialError is the mean reprojection error before refinement of the last Run.
func (c *Calibrator) InitialError() float64 {
	return c.initialError
}

// Graph returns the pose graph of the last Run, or nil before Run.
func (c *Calibrator) Graph() *PoseGraph {
	return c.graph
}
