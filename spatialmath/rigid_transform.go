package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multicalib/utils"
)

// NewRigidTransform builds the 4x4 homogeneous transform [R(om) t; 0 1].
func NewRigidTransform(om, t r3.Vector) *mat.Dense {
	rot, _ := Rodrigues(om)
	return NewRigidTransformFromMatrix(rot, t)
}

// NewRigidTransformFromMatrix builds the 4x4 homogeneous transform [rot t; 0 1].
func NewRigidTransformFromMatrix(rot mat.Matrix, t r3.Vector) *mat.Dense {
	transform := eye(4)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			transform.Set(i, j, rot.At(i, j))
		}
	}
	transform.Set(0, 3, t.X)
	transform.Set(1, 3, t.Y)
	transform.Set(2, 3, t.Z)
	return transform
}

// IdentityTransform returns the 4x4 identity.
func IdentityTransform() *mat.Dense {
	return eye(4)
}

// CheckRigidTransform verifies that m is a 4x4 homogeneous matrix.
func CheckRigidTransform(m mat.Matrix) error {
	if m == nil {
		return utils.NewInvariantError("rigid transform is nil")
	}
	if r, c := m.Dims(); r != 4 || c != 4 {
		return utils.NewShapeMismatchError("rigid transform", "4x4", []int{r, c})
	}
	const tol = 1e-6
	for j := 0; j < 3; j++ {
		if math.Abs(m.At(3, j)) > tol {
			return utils.NewInvariantError("rigid transform has non-zero projective row %v", mat.Row(nil, 3, m))
		}
	}
	if math.Abs(m.At(3, 3)-1) > tol {
		return utils.NewInvariantError("rigid transform has non-unit homogeneous scale %v", m.At(3, 3))
	}
	return nil
}

// RotationBlock returns a copy of the upper left 3x3 block of a rigid transform.
func RotationBlock(m mat.Matrix) *mat.Dense {
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, m.At(i, j))
		}
	}
	return rot
}

// TranslationOf returns the translation column of a rigid transform.
func TranslationOf(m mat.Matrix) r3.Vector {
	return r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}
}

// RigidTransformToVectors splits a rigid transform into a rotation vector and a translation.
func RigidTransformToVectors(m mat.Matrix) (r3.Vector, r3.Vector, error) {
	if err := CheckRigidTransform(m); err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	om, _ := RodriguesFromMatrix(RotationBlock(m))
	return om, TranslationOf(m), nil
}

// InvertRigidTransform returns [R^T -R^T t; 0 1].
func InvertRigidTransform(m mat.Matrix) *mat.Dense {
	rot := RotationBlock(m)
	t := TranslationOf(m)
	var rt mat.Dense
	rt.CloneFrom(rot.T())
	tv := mat.NewVecDense(3, []float64{t.X, t.Y, t.Z})
	var nt mat.VecDense
	nt.MulVec(&rt, tv)
	return NewRigidTransformFromMatrix(&rt, r3.Vector{X: -nt.AtVec(0), Y: -nt.AtVec(1), Z: -nt.AtVec(2)})
}

// ComposeTransforms returns the product a*b of two rigid transforms.
func ComposeTransforms(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// TransformPoint applies a rigid transform to a point.
func TransformPoint(m mat.Matrix, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*p.X + m.At(0, 1)*p.Y + m.At(0, 2)*p.Z + m.At(0, 3),
		Y: m.At(1, 0)*p.X + m.At(1, 1)*p.Y + m.At(1, 2)*p.Z + m.At(1, 3),
		Z: m.At(2, 0)*p.X + m.At(2, 1)*p.Y + m.At(2, 2)*p.Z + m.At(2, 3),
	}
}

// RotationAngleBetween returns the angle in radians of the rotation taking rot1 to rot2.
func RotationAngleBetween(rot1, rot2 mat.Matrix) float64 {
	var rel mat.Dense
	rel.Mul(RotationBlock(rot1).T(), RotationBlock(rot2))
	om, _ := RodriguesFromMatrix(&rel)
	return om.Norm()
}
