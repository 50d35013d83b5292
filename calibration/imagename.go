package calibration

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseImageName decodes the camera index and timestamp from an image path whose file name has
// the form "<camera>-<timestamp>.<ext>". Both '/' and '\' are accepted as directory separators.
func ParseImageName(path string) (int, int, error) {
	name := path
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		name = name[:idx]
	}
	cameraStr, timestampStr, ok := strings.Cut(name, "-")
	if !ok {
		return 0, 0, errors.Errorf("image name %q does not match <camera>-<timestamp>", path)
	}
	camera, err := strconv.Atoi(cameraStr)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "bad camera index in image name %q", path)
	}
	if camera < 0 {
		return 0, 0, errors.Errorf("negative camera index in image name %q", path)
	}
	timestamp, err := strconv.Atoi(timestampStr)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "bad timestamp in image name %q", path)
	}
	return camera, timestamp, nil
}
