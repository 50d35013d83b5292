package transform

import "github.com/pkg/errors"

// BrownConrady is the radial and tangential lens distortion model used by OpenCV:
//
//	x_d = x * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p1*x*y + p2*(r² + 2*x²)
//	y_d = y * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p2*x*y + p1*(r² + 2*y²)
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewBrownConrady takes in a slice of floats that will be passed into the struct in order,
// (k1, k2, k3, p1, p2). Missing trailing values are zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > 5 {
		return nil, errors.Errorf("list of parameters too long, expected max 5, got %d", len(inp))
	}
	padded := make([]float64, 5)
	copy(padded, inp)
	return &BrownConrady{padded[0], padded[1], padded[2], padded[3], padded[4]}, nil
}

// NewBrownConradyFromOpenCV takes coefficients in the OpenCV order (k1, k2, p1, p2[, k3]).
func NewBrownConradyFromOpenCV(coeffs []float64) (*BrownConrady, error) {
	if len(coeffs) > 5 {
		return nil, errors.Errorf("list of parameters too long, expected max 5, got %d", len(coeffs))
	}
	padded := make([]float64, 5)
	copy(padded, coeffs)
	return &BrownConrady{
		RadialK1:     padded[0],
		RadialK2:     padded[1],
		TangentialP1: padded[2],
		TangentialP2: padded[3],
		RadialK3:     padded[4],
	}, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.RadialK3, bc.TangentialP1, bc.TangentialP2}
}

// OpenCVCoefficients returns the parameters in the OpenCV order (k1, k2, p1, p2, k3).
func (bc *BrownConrady) OpenCVCoefficients() []float64 {
	if bc == nil {
		return []float64{0, 0, 0, 0, 0}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2, bc.RadialK3}
}

// Transform distorts the point (x, y) on the normalized image plane.
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	r2 := x*x + y*y
	radDist := 1. + bc.RadialK1*r2 + bc.RadialK2*r2*r2 + bc.RadialK3*r2*r2*r2
	xd := x*radDist + 2.*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2.*x*x)
	yd := y*radDist + 2.*bc.TangentialP2*x*y + bc.TangentialP1*(r2+2.*y*y)
	return xd, yd
}

// Jacobian returns dxd/dx, dxd/dy, dyd/dx, dyd/dy at (x, y).
func (bc *BrownConrady) Jacobian(x, y float64) [4]float64 {
	if bc == nil {
		return [4]float64{1, 0, 0, 1}
	}
	r2 := x*x + y*y
	r4 := r2 * r2
	radDist := 1. + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r4*r2
	dRad := bc.RadialK1 + 2.*bc.RadialK2*r2 + 3.*bc.RadialK3*r4
	dRadDx := 2. * x * dRad
	dRadDy := 2. * y * dRad

	return [4]float64{
		radDist + x*dRadDx + 2.*bc.TangentialP1*y + 6.*bc.TangentialP2*x,
		x*dRadDy + 2.*bc.TangentialP1*x + 2.*bc.TangentialP2*y,
		y*dRadDx + 2.*bc.TangentialP2*y + 2.*bc.TangentialP1*x,
		radDist + y*dRadDy + 2.*bc.TangentialP2*x + 6.*bc.TangentialP1*y,
	}
}

// Undistort finds the undistorted point that Transform maps to (xd, yd) with Newton-Raphson
// iterations started at the distorted point.
func (bc *BrownConrady) Undistort(xd, yd float64) (float64, float64) {
	if bc == nil {
		return xd, yd
	}
	const maxIterations = 20
	const tolerance = 1e-12

	xu, yu := xd, yd
	for i := 0; i < maxIterations; i++ {
		xEst, yEst := bc.Transform(xu, yu)
		errX := xEst - xd
		errY := yEst - yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}
		j := bc.Jacobian(xu, yu)
		det := j[0]*j[3] - j[1]*j[2]
		if det == 0 {
			break
		}
		xu -= (j[3]*errX - j[1]*errY) / det
		yu -= (-j[2]*errX + j[0]*errY) / det
	}
	return xu, yu
}
