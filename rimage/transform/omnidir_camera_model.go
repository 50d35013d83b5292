package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// OmnidirCameraModel is the unified projection model of Mei and Rives. A camera frame point is
// first projected onto the unit sphere, then perspectively projected from a center shifted by
// Xi along the optical axis, distorted with the radial (K1, K2) and tangential (P1, P2) terms,
// and finally mapped to pixels by the camera matrix, which may have a skew term.
type OmnidirCameraModel struct {
	Fx   float64 `json:"fx"`
	Fy   float64 `json:"fy"`
	Skew float64 `json:"skew"`
	Ppx  float64 `json:"ppx"`
	Ppy  float64 `json:"ppy"`
	Xi   float64 `json:"xi"`
	K1   float64 `json:"k1"`
	K2   float64 `json:"k2"`
	P1   float64 `json:"p1"`
	P2   float64 `json:"p2"`
}

// CheckValid checks if the fields for OmnidirCameraModel have valid inputs.
func (params *OmnidirCameraModel) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Fx <= 0 || params.Fy <= 0 {
		return NewNoIntrinsicsError("Invalid focal length")
	}
	if params.Xi < 0 {
		return NewNoIntrinsicsError("Invalid mirror parameter xi")
	}
	return nil
}

// ModelType returns OmnidirModelType.
func (params *OmnidirCameraModel) ModelType() CameraModelType {
	return OmnidirModelType
}

// CameraMatrix returns the 3x3 intrinsic matrix including skew.
func (params *OmnidirCameraModel) CameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		params.Fx, params.Skew, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// DistortionCoefficients returns (k1, k2, p1, p2).
func (params *OmnidirCameraModel) DistortionCoefficients() []float64 {
	return []float64{params.K1, params.K2, params.P1, params.P2}
}

func (params *OmnidirCameraModel) distortion() *BrownConrady {
	return &BrownConrady{RadialK1: params.K1, RadialK2: params.K2, TangentialP1: params.P1, TangentialP2: params.P2}
}

// ProjectPoints projects obj, given in the target frame, into the image.
func (params *OmnidirCameraModel) ProjectPoints(
	obj []r3.Vector,
	om, t r3.Vector,
	wantJacobian bool,
) ([]r2.Point, *mat.Dense, error) {
	if err := params.CheckValid(); err != nil {
		return nil, nil, err
	}
	camPts, dX := transformPoints(obj, om, t, wantJacobian)
	dist := params.distortion()

	pixels := make([]r2.Point, len(obj))
	var jac *mat.Dense
	if wantJacobian && len(obj) > 0 {
		jac = mat.NewDense(2*len(obj), 6, nil)
	}
	for i, p := range camPts {
		norm := p.Norm()
		if norm == 0 {
			return nil, nil, errors.Wrapf(ErrPointAtCenter, "point %d", i)
		}
		s := p.Mul(1 / norm)
		denom := s.Z + params.Xi
		if denom == 0 {
			return nil, nil, errors.Wrapf(ErrPointAtCenter, "point %d", i)
		}
		x, y := s.X/denom, s.Y/denom
		xd, yd := dist.Transform(x, y)
		pixels[i] = r2.Point{
			X: params.Fx*xd + params.Skew*yd + params.Ppx,
			Y: params.Fy*yd + params.Ppy,
		}
		if jac == nil {
			continue
		}

		// d(sphere point)/dX = (I - s s^T) / |X|
		sv := [3]float64{s.X, s.Y, s.Z}
		var dS [3][3]float64
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				v := -sv[r] * sv[c]
				if r == c {
					v++
				}
				dS[r][c] = v / norm
			}
		}
		// d(x, y)/d(sphere point)
		du := [2][3]float64{
			{1 / denom, 0, -x / denom},
			{0, 1 / denom, -y / denom},
		}
		var dn [2][3]float64
		for r := 0; r < 2; r++ {
			for c := 0; c < 3; c++ {
				dn[r][c] = du[r][0]*dS[0][c] + du[r][1]*dS[1][c] + du[r][2]*dS[2][c]
			}
		}
		dd := dist.Jacobian(x, y)
		var dPix [2][3]float64
		for c := 0; c < 3; c++ {
			dxd := dd[0]*dn[0][c] + dd[1]*dn[1][c]
			dyd := dd[2]*dn[0][c] + dd[3]*dn[1][c]
			dPix[0][c] = params.Fx*dxd + params.Skew*dyd
			dPix[1][c] = params.Fy * dyd
		}
		chainPixelJacobian(jac, i, dPix, &dX[i])
	}
	return pixels, jac, nil
}

// UndistortPoints lifts pixels back onto the unit sphere and returns their perspective
// coordinates. Pixels whose ray points behind the camera cannot be represented and are an error.
func (params *OmnidirCameraModel) UndistortPoints(img []r2.Point) ([]r2.Point, error) {
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	dist := params.distortion()
	out := make([]r2.Point, len(img))
	for i, p := range img {
		yd := (p.Y - params.Ppy) / params.Fy
		xd := (p.X - params.Ppx - params.Skew*yd) / params.Fx
		x, y := dist.Undistort(xd, yd)

		r2n := x*x + y*y
		disc := 1 + (1-params.Xi*params.Xi)*r2n
		if disc < 0 {
			return nil, errors.Errorf("pixel %d (%v) is outside the valid image circle", i, p)
		}
		lambda := (params.Xi + math.Sqrt(disc)) / (r2n + 1)
		z := lambda - params.Xi
		if z <= 0 {
			return nil, errors.Errorf("pixel %d (%v) views a ray behind the camera", i, p)
		}
		out[i] = r2.Point{X: lambda * x / z, Y: lambda * y / z}
	}
	return out, nil
}
