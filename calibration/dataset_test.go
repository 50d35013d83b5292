package calibration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/multicalib/logging"
	"go.viam.com/multicalib/rimage/transform"
	"go.viam.com/multicalib/utils"
)

const testDataset = `{
  "cameras": [
    {"intrinsics": {"camera_matrix": [600, 0, 320, 0, 610, 240, 0, 0, 1], "distortion": [-0.05, 0.01]}},
    {"intrinsics": {"fx": 500, "fy": "505", "ppx": 300, "ppy": 200, "xi": 0.8}}
  ],
  "images": [
    {"name": "cam/0-10.png", "object_points": [[0, 0], [1, 0, 0]], "image_points": [[1, 2], [3, 4]]},
    {"name": "cam/1-10.png", "object_points": [[0, 0]], "image_points": [[5, 6]], "rvec": [0.1, 0, 0], "tvec": [0, 0, 1]},
    {"name": "cam/0-11.png", "object_points": [[0, 1]], "image_points": [[7, 8]]},
    {"name": "cam/5-11.png", "object_points": [[0, 1]], "image_points": [[7, 8]]}
  ]
}`

func TestDecodeDataset(t *testing.T) {
	ds, err := DecodeDataset(strings.NewReader(testDataset))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(ds.Cameras), test.ShouldEqual, 2)
	test.That(t, len(ds.Images), test.ShouldEqual, 4)

	logger, logs := logging.NewObservedTestLogger(t)
	obs, err := ds.Observations(2, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logs.FilterMessage("skipping image of unknown camera").Len(), test.ShouldEqual, 1)
	test.That(t, len(obs[0]), test.ShouldEqual, 2)
	test.That(t, len(obs[1]), test.ShouldEqual, 1)

	test.That(t, obs[0][0].Timestamp, test.ShouldEqual, 10)
	test.That(t, obs[0][1].Timestamp, test.ShouldEqual, 11)
	test.That(t, obs[0][0].ObjectPoints, test.ShouldResemble, []r3.Vector{{}, {X: 1}})
	test.That(t, obs[0][0].ImagePoints, test.ShouldResemble, []r2.Point{{X: 1, Y: 2}, {X: 3, Y: 4}})
	test.That(t, obs[0][0].HasExtrinsics, test.ShouldBeFalse)
	test.That(t, obs[1][0].HasExtrinsics, test.ShouldBeTrue)
	test.That(t, obs[1][0].Rvec, test.ShouldResemble, r3.Vector{X: 0.1})
	test.That(t, obs[1][0].Tvec, test.ShouldResemble, r3.Vector{Z: 1})

	_, err = DecodeDataset(strings.NewReader("{"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDatasetModels(t *testing.T) {
	ds, err := DecodeDataset(strings.NewReader(testDataset))
	test.That(t, err, test.ShouldBeNil)

	models, err := ds.Models(transform.PinholeModelType)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(models), test.ShouldEqual, 2)
	test.That(t, models[0].CameraMatrix().At(1, 1), test.ShouldEqual, 610.)
	test.That(t, models[0].DistortionCoefficients(), test.ShouldResemble, []float64{-0.05, 0.01, 0, 0, 0})
	test.That(t, models[1].CameraMatrix().At(1, 1), test.ShouldEqual, 505.)

	models, err = ds.Models(transform.OmnidirModelType)
	test.That(t, err, test.ShouldBeNil)
	omni, ok := models[1].(*transform.OmnidirCameraModel)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, omni.Xi, test.ShouldEqual, 0.8)

	_, err = DecodeIntrinsics(map[string]interface{}{"focal": 3})
	test.That(t, err, test.ShouldNotBeNil)
	ic, err := DecodeIntrinsics(map[string]interface{}{"camera_matrix": []float64{1, 2, 3}})
	test.That(t, err, test.ShouldBeNil)
	_, err = ic.Matrix()
	test.That(t, utils.IsInvariantViolation(err), test.ShouldBeTrue)
}

func TestDatasetObservationShapes(t *testing.T) {
	for _, img := range []ImageEntry{
		{Name: "0-1.png", ObjectPoints: [][]float64{{0, 0}}, ImagePoints: nil},
		{Name: "0-1.png", ObjectPoints: [][]float64{{0}}, ImagePoints: [][]float64{{1, 1}}},
		{Name: "0-1.png", ObjectPoints: [][]float64{{0, 0}}, ImagePoints: [][]float64{{1, 1, 1}}},
		{Name: "0-1.png", ObjectPoints: [][]float64{{0, 0}}, ImagePoints: [][]float64{{1, 1}}, Rvec: []float64{1, 2, 3}},
	} {
		ds := &Dataset{Images: []ImageEntry{img}}
		_, err := ds.Observations(1, logging.NewTestLogger(t))
		test.That(t, utils.IsInvariantViolation(err), test.ShouldBeTrue)
	}

	ds := &Dataset{Images: []ImageEntry{{Name: "bad.png"}}}
	_, err := ds.Observations(1, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadDataset(t *testing.T) {
	t.Setenv("MULTICALIB_TEST_FX", "612")
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.json")
	content := strings.Replace(testDataset, `"fx": 500`, `"fx": ${MULTICALIB_TEST_FX}`, 1)
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)

	ds, err := ReadDataset(context.Background(), path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	ic, err := DecodeIntrinsics(ds.Cameras[1].Intrinsics)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ic.Fx, test.ShouldEqual, 612.)

	_, err = ReadDataset(context.Background(), filepath.Join(dir, "missing.json"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ReadDataset(ctx, path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
