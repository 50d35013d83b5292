package calibration

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/multicalib/logging"
	"go.viam.com/multicalib/rimage/transform"
	"go.viam.com/multicalib/utils"
)

// ImagePose is the estimated pose of the target in the camera frame for one observation.
type ImagePose struct {
	// Index of the observation within the camera's observation list.
	Index int
	Rvec  r3.Vector
	Tvec  r3.Vector
}

// CameraCalibration is the outcome of intrinsic calibration for one camera: its projection
// model and a target pose for each observation it kept.
type CameraCalibration struct {
	Model transform.Projector
	Poses []ImagePose
}

// IntrinsicCalibrator turns the observations of a single camera into a CameraCalibration.
type IntrinsicCalibrator interface {
	Calibrate(ctx context.Context, camera int, observations []Observation) (*CameraCalibration, error)
}

func modelFor(models []transform.Projector, camera int) (transform.Projector, error) {
	if camera < 0 || camera >= len(models) {
		return nil, utils.NewInvariantError("no camera model for camera %d of %d", camera, len(models))
	}
	return models[camera], nil
}

// PrecomputedCalibrator uses known camera models and the extrinsic guess stored with every
// observation.
type PrecomputedCalibrator struct {
	Models []transform.Projector
}

// Calibrate returns the stored model and poses. Every observation must carry extrinsics.
func (pc *PrecomputedCalibrator) Calibrate(
	ctx context.Context,
	camera int,
	observations []Observation,
) (*CameraCalibration, error) {
	model, err := modelFor(pc.Models, camera)
	if err != nil {
		return nil, err
	}
	calib := &CameraCalibration{Model: model, Poses: make([]ImagePose, 0, len(observations))}
	for i, obs := range observations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !obs.HasExtrinsics {
			return nil, errors.Errorf("camera %d image %q has no extrinsic guess", camera, obs.Name)
		}
		calib.Poses = append(calib.Poses, ImagePose{Index: i, Rvec: obs.Rvec, Tvec: obs.Tvec})
	}
	return calib, nil
}

// PlanarPoseCalibrator uses known camera models. Observations without an extrinsic guess get one
// from the homography of the planar target. Observations whose pose cannot be estimated are dropped.
type PlanarPoseCalibrator struct {
	Models []transform.Projector
	Logger logging.Logger
}

// Calibrate returns the stored model and a pose for every usable observation.
func (pc *PlanarPoseCalibrator) Calibrate(
	ctx context.Context,
	camera int,
	observations []Observation,
) (*CameraCalibration, error) {
	model, err := modelFor(pc.Models, camera)
	if err != nil {
		return nil, err
	}
	calib := &CameraCalibration{Model: model, Poses: make([]ImagePose, 0, len(observations))}
	for i, obs := range observations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if obs.HasExtrinsics {
			calib.Poses = append(calib.Poses, ImagePose{Index: i, Rvec: obs.Rvec, Tvec: obs.Tvec})
			continue
		}
		om, t, err := transform.EstimatePlanarPose(model, obs.ObjectPoints, obs.ImagePoints)
		if err != nil {
			if pc.Logger != nil {
				pc.Logger.Warnw("dropping image without a pose estimate", "camera", camera, "image", obs.Name, "error", err)
			}
			continue
		}
		calib.Poses = append(calib.Poses, ImagePose{Index: i, Rvec: om, Tvec: t})
	}
	return calib, nil
}

// CalibrateCameras runs the intrinsic calibrator on every camera concurrently.
func CalibrateCameras(
	ctx context.Context,
	calibrator IntrinsicCalibrator,
	observations [][]Observation,
) ([]*CameraCalibration, error) {
	results := make([]*CameraCalibration, len(observations))
	funcs := make([]utils.SimpleFunc, 0, len(observations))
	for camera := range observations {
		camera := camera
		funcs = append(funcs, func(ctx context.Context) error {
			calib, err := calibrator.Calibrate(ctx, camera, observations[camera])
			if err != nil {
				return errors.Wrapf(err, "intrinsic calibration of camera %d failed", camera)
			}
			if calib == nil || calib.Model == nil {
				return utils.NewInvariantError("intrinsic calibration of camera %d returned no model", camera)
			}
			results[camera] = calib
			return nil
		})
	}
	if _, err := utils.RunInParallel(ctx, funcs); err != nil {
		return nil, err
	}
	return results, nil
}
