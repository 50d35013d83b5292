package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PinholeCameraModel is the model of a pinhole camera.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// ModelType returns PinholeModelType.
func (params *PinholeCameraModel) ModelType() CameraModelType {
	return PinholeModelType
}

// CameraMatrix returns the 3x3 intrinsic matrix.
func (params *PinholeCameraModel) CameraMatrix() *mat.Dense {
	return params.GetCameraMatrix()
}

// DistortionCoefficients returns (k1, k2, p1, p2, k3).
func (params *PinholeCameraModel) DistortionCoefficients() []float64 {
	if bc, ok := params.Distortion.(*BrownConrady); ok {
		return bc.OpenCVCoefficients()
	}
	if params.Distortion == nil {
		return []float64{0, 0, 0, 0, 0}
	}
	return params.Distortion.Parameters()
}

func (params *PinholeCameraModel) distorter() Distorter {
	if params.Distortion == nil {
		return (*BrownConrady)(nil)
	}
	return params.Distortion
}

// ProjectPoints projects obj, given in the target frame, into the image.
func (params *PinholeCameraModel) ProjectPoints(
	obj []r3.Vector,
	om, t r3.Vector,
	wantJacobian bool,
) ([]r2.Point, *mat.Dense, error) {
	if err := params.CheckValid(); err != nil {
		return nil, nil, err
	}
	camPts, dX := transformPoints(obj, om, t, wantJacobian)
	dist := params.distorter()

	pixels := make([]r2.Point, len(obj))
	var jac *mat.Dense
	if wantJacobian && len(obj) > 0 {
		jac = mat.NewDense(2*len(obj), 6, nil)
	}
	for i, p := range camPts {
		if p.Z == 0 {
			return nil, nil, errors.Wrapf(ErrPointAtCenter, "point %d", i)
		}
		invZ := 1. / p.Z
		x, y := p.X*invZ, p.Y*invZ
		xd, yd := dist.Transform(x, y)
		pixels[i] = r2.Point{X: params.Fx*xd + params.Ppx, Y: params.Fy*yd + params.Ppy}
		if jac == nil {
			continue
		}
		dd := dist.Jacobian(x, y)
		// d(x, y)/dX
		dn := [2][3]float64{
			{invZ, 0, -x * invZ},
			{0, invZ, -y * invZ},
		}
		var dPix [2][3]float64
		for c := 0; c < 3; c++ {
			dPix[0][c] = params.Fx * (dd[0]*dn[0][c] + dd[1]*dn[1][c])
			dPix[1][c] = params.Fy * (dd[2]*dn[0][c] + dd[3]*dn[1][c])
		}
		chainPixelJacobian(jac, i, dPix, &dX[i])
	}
	return pixels, jac, nil
}

// UndistortPoints maps pixels to undistorted normalized coordinates.
func (params *PinholeCameraModel) UndistortPoints(img []r2.Point) ([]r2.Point, error) {
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	dist := params.distorter()
	out := make([]r2.Point, len(img))
	for i, p := range img {
		x, y := dist.Undistort((p.X-params.Ppx)/params.Fx, (p.Y-params.Ppy)/params.Fy)
		out[i] = r2.Point{X: x, Y: y}
	}
	return out, nil
}
