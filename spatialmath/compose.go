package spatialmath

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// MotionJacobian holds the partial derivatives of a composed motion (om3, T3) with respect to
// the two motions it was composed from. Every entry is a 3x3 matrix.
type MotionJacobian struct {
	DOm3DOm1 *mat.Dense
	DOm3DT1  *mat.Dense
	DOm3DOm2 *mat.Dense
	DOm3DT2  *mat.Dense
	DT3DOm1  *mat.Dense
	DT3DT1   *mat.Dense
	DT3DOm2  *mat.Dense
	DT3DT2   *mat.Dense
}

// ComposeMotion applies the rigid motion (om1, T1) followed by (om2, T2):
//
//	R3 = R2 * R1
//	T3 = R2 * T1 + T2
//
// and returns the result as a rotation vector and translation along with the analytic partial
// derivatives of om3 and T3 with respect to all four inputs.
func ComposeMotion(om1, t1, om2, t2 r3.Vector) (r3.Vector, r3.Vector, *MotionJacobian) {
	r1, dR1dom1 := Rodrigues(om1)
	r2, dR2dom2 := Rodrigues(om2)

	var r3m mat.Dense
	r3m.Mul(r2, r1)
	dR3dR2, dR3dR1 := MatMulDeriv(r2, r1)
	om3, dom3dR3 := RodriguesFromMatrix(&r3m)

	var tmp mat.Dense
	jac := &MotionJacobian{
		DOm3DOm1: mat.NewDense(3, 3, nil),
		DOm3DOm2: mat.NewDense(3, 3, nil),
		DOm3DT1:  mat.NewDense(3, 3, nil),
		DOm3DT2:  mat.NewDense(3, 3, nil),
		DT3DOm1:  mat.NewDense(3, 3, nil),
		DT3DOm2:  mat.NewDense(3, 3, nil),
		DT3DT2:   eye(3),
	}
	tmp.Mul(dom3dR3, dR3dR1)
	jac.DOm3DOm1.Mul(&tmp, dR1dom1)
	tmp.Reset()
	tmp.Mul(dom3dR3, dR3dR2)
	jac.DOm3DOm2.Mul(&tmp, dR2dom2)

	t1m := mat.NewDense(3, 1, []float64{t1.X, t1.Y, t1.Z})
	var t3t mat.Dense
	t3t.Mul(r2, t1m)
	dT3tdR2, dT3tdT1 := MatMulDeriv(r2, t1m)
	jac.DT3DOm2.Mul(dT3tdR2, dR2dom2)
	jac.DT3DT1 = dT3tdT1

	t3 := r3.Vector{X: t3t.At(0, 0), Y: t3t.At(1, 0), Z: t3t.At(2, 0)}.Add(t2)
	return om3, t3, jac
}
