package calibration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multicalib/logging"
	"go.viam.com/multicalib/rimage/transform"
	"go.viam.com/multicalib/utils"
)

// Dataset is the correspondence data of a calibration run: the intrinsics of every camera and
// the matched target points of every image.
type Dataset struct {
	Cameras []CameraEntry `json:"cameras"`
	Images  []ImageEntry  `json:"images"`
}

// CameraEntry holds the intrinsic attributes of one camera, in camera index order. The
// attributes decode into IntrinsicsConfig.
type CameraEntry struct {
	Intrinsics map[string]interface{} `json:"intrinsics"`
}

// ImageEntry is one image. The camera index and timestamp are decoded from Name.
type ImageEntry struct {
	Name string `json:"name"`
	// ObjectPoints are (x, y) on the target plane or (x, y, z).
	ObjectPoints [][]float64 `json:"object_points"`
	ImagePoints  [][]float64 `json:"image_points"`
	Rvec         []float64   `json:"rvec,omitempty"`
	Tvec         []float64   `json:"tvec,omitempty"`
}

// IntrinsicsConfig is the intrinsic calibration of one camera. The camera matrix is given either
// as CameraMatrix, row major, or through its individual entries.
type IntrinsicsConfig struct {
	CameraMatrix []float64 `json:"camera_matrix,omitempty"`
	Fx           float64   `json:"fx,omitempty"`
	Fy           float64   `json:"fy,omitempty"`
	Skew         float64   `json:"skew,omitempty"`
	Ppx          float64   `json:"ppx,omitempty"`
	Ppy          float64   `json:"ppy,omitempty"`
	// Distortion coefficients in OpenCV order.
	Distortion []float64 `json:"distortion,omitempty"`
	Xi         float64   `json:"xi,omitempty"`
}

// DecodeIntrinsics decodes an attribute map into an IntrinsicsConfig.
func DecodeIntrinsics(attributes map[string]interface{}) (*IntrinsicsConfig, error) {
	var conf IntrinsicsConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &conf,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating decoder")
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "error decoding intrinsics")
	}
	return &conf, nil
}

// Matrix returns the 3x3 camera matrix.
func (ic *IntrinsicsConfig) Matrix() (*mat.Dense, error) {
	if len(ic.CameraMatrix) == 0 {
		return mat.NewDense(3, 3, []float64{
			ic.Fx, ic.Skew, ic.Ppx,
			0, ic.Fy, ic.Ppy,
			0, 0, 1,
		}), nil
	}
	if len(ic.CameraMatrix) != 9 {
		return nil, utils.NewShapeMismatchError("camera_matrix", 9, len(ic.CameraMatrix))
	}
	return mat.NewDense(3, 3, append([]float64(nil), ic.CameraMatrix...)), nil
}

// Projector builds the camera model of the given type.
func (ic *IntrinsicsConfig) Projector(modelType transform.CameraModelType) (transform.Projector, error) {
	k, err := ic.Matrix()
	if err != nil {
		return nil, err
	}
	return transform.NewProjector(modelType, k, ic.Distortion, ic.Xi)
}

// ReadDataset reads a dataset file, expanding environment variables first.
func ReadDataset(ctx context.Context, path string, logger logging.Logger) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ds, err := DecodeDataset(bytes.NewReader(buf))
	if err != nil {
		return nil, errors.Wrapf(err, "error reading dataset %q", path)
	}
	logger.Debugw("read dataset", "path", path, "cameras", len(ds.Cameras), "images", len(ds.Images))
	return ds, nil
}

// DecodeDataset decodes a JSON dataset.
func DecodeDataset(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, errors.Wrap(err, "failed to decode dataset from json")
	}
	return &ds, nil
}

// Models builds the camera model of every camera entry.
func (ds *Dataset) Models(modelType transform.CameraModelType) ([]transform.Projector, error) {
	models := make([]transform.Projector, 0, len(ds.Cameras))
	for i, cam := range ds.Cameras {
		conf, err := DecodeIntrinsics(cam.Intrinsics)
		if err != nil {
			return nil, errors.Wrapf(err, "camera %d", i)
		}
		model, err := conf.Projector(modelType)
		if err != nil {
			return nil, errors.Wrapf(err, "camera %d", i)
		}
		models = append(models, model)
	}
	return models, nil
}

// Observations groups the images by camera, keeping dataset order within each camera. Images
// whose camera index is not below numCameras are skipped with a warning.
func (ds *Dataset) Observations(numCameras int, logger logging.Logger) ([][]Observation, error) {
	observations := make([][]Observation, numCameras)
	for i, img := range ds.Images {
		camera, timestamp, err := ParseImageName(img.Name)
		if err != nil {
			return nil, err
		}
		if camera >= numCameras {
			logger.Warnw("skipping image of unknown camera", "image", img.Name, "camera", camera, "num_cameras", numCameras)
			continue
		}
		obs, err := img.observation(timestamp)
		if err != nil {
			return nil, errors.Wrapf(err, "image %d (%s)", i, img.Name)
		}
		observations[camera] = append(observations[camera], obs)
	}
	return observations, nil
}

func (img *ImageEntry) observation(timestamp int) (Observation, error) {
	if len(img.ObjectPoints) != len(img.ImagePoints) {
		return Observation{}, utils.NewShapeMismatchError("image_points", len(img.ObjectPoints), len(img.ImagePoints))
	}
	obs := Observation{
		Name:         img.Name,
		Timestamp:    timestamp,
		ObjectPoints: make([]r3.Vector, len(img.ObjectPoints)),
		ImagePoints:  make([]r2.Point, len(img.ImagePoints)),
	}
	for i, p := range img.ObjectPoints {
		switch len(p) {
		case 2:
			obs.ObjectPoints[i] = r3.Vector{X: p[0], Y: p[1]}
		case 3:
			obs.ObjectPoints[i] = r3.Vector{X: p[0], Y: p[1], Z: p[2]}
		default:
			return Observation{}, utils.NewShapeMismatchError("object point", "2 or 3", len(p))
		}
	}
	for i, p := range img.ImagePoints {
		if len(p) != 2 {
			return Observation{}, utils.NewShapeMismatchError("image point", 2, len(p))
		}
		obs.ImagePoints[i] = r2.Point{X: p[0], Y: p[1]}
	}
	switch {
	case len(img.Rvec) == 0 && len(img.Tvec) == 0:
	case len(img.Rvec) == 3 && len(img.Tvec) == 3:
		obs.Rvec = r3.Vector{X: img.Rvec[0], Y: img.Rvec[1], Z: img.Rvec[2]}
		obs.Tvec = r3.Vector{X: img.Tvec[0], Y: img.Tvec[1], Z: img.Tvec[2]}
		obs.HasExtrinsics = true
	default:
		return Observation{}, utils.NewShapeMismatchError("rvec/tvec", "3 and 3", []int{len(img.Rvec), len(img.Tvec)})
	}
	return obs, nil
}
