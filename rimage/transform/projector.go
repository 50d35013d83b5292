package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multicalib/spatialmath"
)

// CameraModelType names a projection model.
type CameraModelType string

const (
	// PinholeModelType is a perspective camera with Brown-Conrady distortion.
	PinholeModelType = CameraModelType("pinhole")
	// OmnidirModelType is the unified (Mei) omnidirectional camera model.
	OmnidirModelType = CameraModelType("omnidir")
)

// Projector projects target points into an image given the pose (om, t) of the target in the
// camera frame. When wantJacobian is set the second return value is the 2n x 6 derivative of
// the interleaved pixel coordinates with respect to (om, t).
type Projector interface {
	ModelType() CameraModelType
	ProjectPoints(obj []r3.Vector, om, t r3.Vector, wantJacobian bool) ([]r2.Point, *mat.Dense, error)
	// UndistortPoints maps pixels to ideal perspective coordinates on the z=1 plane.
	UndistortPoints(img []r2.Point) ([]r2.Point, error)
	CameraMatrix() *mat.Dense
	// DistortionCoefficients are in the OpenCV order.
	DistortionCoefficients() []float64
}

// ErrPointAtCenter is returned when a point cannot be projected because it lies at the center of projection.
var ErrPointAtCenter = errors.New("point lies at the center of projection")

// pointJacobian holds the derivative of one camera frame point with respect to (om, t).
type pointJacobian [3][6]float64

// transformPoints moves obj into the camera frame and optionally returns dX/d(om, t) per point.
func transformPoints(obj []r3.Vector, om, t r3.Vector, wantJacobian bool) ([]r3.Vector, []pointJacobian) {
	rot, dRdom := spatialmath.Rodrigues(om)
	camPts := make([]r3.Vector, len(obj))
	var jacs []pointJacobian
	if wantJacobian {
		jacs = make([]pointJacobian, len(obj))
	}
	for i, p := range obj {
		pv := [3]float64{p.X, p.Y, p.Z}
		var x [3]float64
		for r := 0; r < 3; r++ {
			x[r] = rot.At(r, 0)*p.X + rot.At(r, 1)*p.Y + rot.At(r, 2)*p.Z
		}
		camPts[i] = r3.Vector{X: x[0] + t.X, Y: x[1] + t.Y, Z: x[2] + t.Z}
		if !wantJacobian {
			continue
		}
		for r := 0; r < 3; r++ {
			for k := 0; k < 3; k++ {
				sum := 0.
				for c := 0; c < 3; c++ {
					sum += dRdom.At(3*r+c, k) * pv[c]
				}
				jacs[i][r][k] = sum
			}
			jacs[i][r][3+r] = 1
		}
	}
	return camPts, jacs
}

// chainPixelJacobian writes rows 2i and 2i+1 of dst from d(pixel)/d(normalized point) (2x3)
// and d(point)/d(om, t) (3x6).
func chainPixelJacobian(dst *mat.Dense, i int, dPix [2][3]float64, dX *pointJacobian) {
	for r := 0; r < 2; r++ {
		for c := 0; c < 6; c++ {
			dst.Set(2*i+r, c, dPix[r][0]*dX[0][c]+dPix[r][1]*dX[1][c]+dPix[r][2]*dX[2][c])
		}
	}
}

// NewProjector builds the camera model of the given type from a camera matrix, distortion
// coefficients in OpenCV order, and xi (ignored by the pinhole model).
func NewProjector(modelType CameraModelType, k mat.Matrix, distortion []float64, xi float64) (Projector, error) {
	switch modelType {
	case PinholeModelType:
		intrinsics, err := NewPinholeCameraIntrinsicsFromMatrix(k)
		if err != nil {
			return nil, err
		}
		bc, err := NewBrownConradyFromOpenCV(distortion)
		if err != nil {
			return nil, err
		}
		return &PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: bc}, nil
	case OmnidirModelType:
		if r, c := k.Dims(); r != 3 || c != 3 {
			return nil, errors.Errorf("camera matrix must be 3x3, got %dx%d", r, c)
		}
		if len(distortion) > 4 {
			return nil, errors.Errorf("omnidirectional distortion takes at most 4 coefficients, got %d", len(distortion))
		}
		d := make([]float64, 4)
		copy(d, distortion)
		model := &OmnidirCameraModel{
			Fx: k.At(0, 0), Fy: k.At(1, 1), Skew: k.At(0, 1), Ppx: k.At(0, 2), Ppy: k.At(1, 2),
			Xi: xi, K1: d[0], K2: d[1], P1: d[2], P2: d[3],
		}
		return model, model.CheckValid()
	default:
		return nil, errors.Errorf("unknown camera model type %q", modelType)
	}
}
