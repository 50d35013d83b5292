package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/multicalib/logging"
	"go.viam.com/multicalib/rimage/transform"
)

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "calib.json")
	t.Setenv("MULTICALIB_TEST_CAMERAS", "4")
	contents := `{
		"camera_type": "omnidir",
		"num_cameras": ${MULTICALIB_TEST_CAMERAS},
		"criteria": {"type": "count", "max_count": 30}
	}`
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)

	cfg, err := Read(context.Background(), path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.CameraType, test.ShouldEqual, transform.OmnidirModelType)
	test.That(t, cfg.NumCameras, test.ShouldEqual, 4)
	test.That(t, cfg.MinMatches, test.ShouldEqual, DefaultMinMatches)
	test.That(t, cfg.Criteria, test.ShouldResemble, TermCriteria{Type: TermCriteriaCount, MaxCount: 30, Epsilon: DefaultEpsilon})

	_, err = Read(context.Background(), filepath.Join(dir, "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromReaderErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := FromReader(context.Background(), "inline", strings.NewReader("{"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "decode")

	_, err = FromReader(context.Background(), "inline", strings.NewReader(`{"num_cameras": 0}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "inline")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FromReader(ctx, "inline", strings.NewReader(`{"num_cameras": 2}`), logger)
	test.That(t, err, test.ShouldEqual, context.Canceled)
}

func TestFromAttributes(t *testing.T) {
	cfg, err := FromAttributes(map[string]interface{}{
		"camera_type": "pinhole",
		"num_cameras": "2",
		"min_matches": 8,
		"parallel":    true,
		"criteria":    map[string]interface{}{"type": "eps", "epsilon": 1e-5},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.NumCameras, test.ShouldEqual, 2)
	test.That(t, cfg.MinMatches, test.ShouldEqual, 8)
	test.That(t, cfg.Parallel, test.ShouldBeTrue)
	test.That(t, cfg.Criteria.Type, test.ShouldEqual, TermCriteriaEps)
	test.That(t, cfg.Criteria.Epsilon, test.ShouldEqual, 1e-5)

	_, err = FromAttributes(map[string]interface{}{"num_cameras": -1})
	test.That(t, err, test.ShouldNotBeNil)
}
