package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// All 3x3 matrix derivatives in this package flatten the matrix row-major, so element (i, j)
// of a rotation matrix is row 3*i+j of a 9xN jacobian (or column 3*i+j of an Nx9 one).

const (
	// smallAngle is the rotation angle below which the first order expansion of the exponential
	// map is used.
	smallAngle = 1e-12
	// degenerateSine is the value of sin(theta) below which the logarithm map is treated as
	// either the identity or a half turn.
	degenerateSine = 1e-5
)

// Skew returns the cross product matrix of v, such that Skew(v)*u = v x u.
func Skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

func basis(i int) r3.Vector {
	switch i {
	case 0:
		return r3.Vector{X: 1}
	case 1:
		return r3.Vector{Y: 1}
	default:
		return r3.Vector{Z: 1}
	}
}

func component(v r3.Vector, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Rodrigues converts a rotation vector (axis scaled by angle) to a 3x3 rotation matrix. The
// second return value is the 9x3 jacobian dR/dom.
func Rodrigues(om r3.Vector) (*mat.Dense, *mat.Dense) {
	theta := om.Norm()
	jacobian := mat.NewDense(9, 3, nil)

	if theta < smallAngle {
		rot := eye(3)
		for i := 0; i < 3; i++ {
			setColumnFlat(jacobian, i, Skew(basis(i)))
		}
		return rot, jacobian
	}

	k := Skew(om)
	var k2 mat.Dense
	k2.Mul(k, k)

	sinTerm := math.Sin(theta) / theta
	cosTerm := (1 - math.Cos(theta)) / (theta * theta)

	rot := eye(3)
	var scaled mat.Dense
	scaled.Scale(sinTerm, k)
	rot.Add(rot, &scaled)
	scaled.Scale(cosTerm, &k2)
	rot.Add(rot, &scaled)

	// dR/dom_i = (om_i [om]x + [om x (I - R) e_i]x) R / theta^2
	theta2 := theta * theta
	for i := 0; i < 3; i++ {
		col := basis(i).Sub(r3.Vector{X: rot.At(0, i), Y: rot.At(1, i), Z: rot.At(2, i)})
		var m mat.Dense
		m.Scale(component(om, i), k)
		m.Add(&m, Skew(om.Cross(col)))
		m.Scale(1/theta2, &m)
		var d mat.Dense
		d.Mul(&m, rot)
		setColumnFlat(jacobian, i, &d)
	}
	return rot, jacobian
}

// RodriguesFromMatrix converts a rotation matrix to a rotation vector. The matrix is first
// projected onto the nearest rotation. The second return value is the 3x9 jacobian dom/dR.
// At exactly a half turn the jacobian is undefined and returned as zero.
func RodriguesFromMatrix(rot mat.Matrix) (r3.Vector, *mat.Dense) {
	r := nearestRotation(rot)
	jacobian := mat.NewDense(3, 9, nil)

	v := r3.Vector{
		X: 0.5 * (r.At(2, 1) - r.At(1, 2)),
		Y: 0.5 * (r.At(0, 2) - r.At(2, 0)),
		Z: 0.5 * (r.At(1, 0) - r.At(0, 1)),
	}
	// dv/dR is constant.
	dv := mat.NewDense(3, 9, nil)
	dv.Set(0, 7, 0.5)
	dv.Set(0, 5, -0.5)
	dv.Set(1, 2, 0.5)
	dv.Set(1, 6, -0.5)
	dv.Set(2, 3, 0.5)
	dv.Set(2, 1, -0.5)

	s := v.Norm()
	c := (r.At(0, 0) + r.At(1, 1) + r.At(2, 2) - 1) * 0.5
	c = math.Max(-1, math.Min(1, c))

	if s < degenerateSine {
		if c > 0 {
			// theta / sin(theta) is 1 to first order.
			jacobian.Copy(dv)
			return v, jacobian
		}
		return halfTurnAxis(r), jacobian
	}

	theta := math.Atan2(s, c)

	ds := mat.NewVecDense(9, nil)
	ds.MulVec(dv.T(), mat.NewVecDense(3, []float64{v.X / s, v.Y / s, v.Z / s}))
	dc := mat.NewVecDense(9, nil)
	dc.SetVec(0, 0.5)
	dc.SetVec(4, 0.5)
	dc.SetVec(8, 0.5)

	// theta = atan2(s, c), f = theta / s
	norm2 := s*s + c*c
	f := theta / s
	df := mat.NewVecDense(9, nil)
	for k := 0; k < 9; k++ {
		dtheta := (c*ds.AtVec(k) - s*dc.AtVec(k)) / norm2
		df.SetVec(k, (dtheta*s-theta*ds.AtVec(k))/(s*s))
	}

	for i := 0; i < 3; i++ {
		vi := component(v, i)
		for k := 0; k < 9; k++ {
			jacobian.Set(i, k, vi*df.AtVec(k)+f*dv.At(i, k))
		}
	}
	return v.Mul(f), jacobian
}

// halfTurnAxis recovers the rotation vector of a rotation by pi from the diagonal of its matrix.
func halfTurnAxis(r mat.Matrix) r3.Vector {
	signOf := func(x float64) float64 {
		if x < 0 {
			return -1
		}
		return 1
	}
	rx := math.Sqrt(math.Max((r.At(0, 0)+1)*0.5, 0))
	ry := math.Sqrt(math.Max((r.At(1, 1)+1)*0.5, 0)) * signOf(r.At(0, 1))
	rz := math.Sqrt(math.Max((r.At(2, 2)+1)*0.5, 0)) * signOf(r.At(0, 2))
	if math.Abs(rx) < math.Abs(ry) && math.Abs(rx) < math.Abs(rz) && (r.At(1, 2) > 0) != (ry*rz > 0) {
		rz = -rz
	}
	axis := r3.Vector{X: rx, Y: ry, Z: rz}
	return axis.Normalize().Mul(math.Pi)
}

// nearestRotation returns U*V^T from the SVD of m, the closest rotation in the Frobenius norm.
func nearestRotation(m mat.Matrix) *mat.Dense {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return mat.DenseCopyOf(m)
	}
	var u, v, out mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	out.Mul(&u, v.T())
	if mat.Det(&out) < 0 {
		// reflect the last singular direction to stay in SO(3)
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		out.Mul(&u, v.T())
	}
	return &out
}

// MatMulDeriv returns the derivatives of the product A*B with respect to A and B. For A of size
// p x n and B of size n x q, dAB/dA is pq x pn and dAB/dB is pq x nq.
func MatMulDeriv(a, b mat.Matrix) (*mat.Dense, *mat.Dense) {
	p, n := a.Dims()
	nb, q := b.Dims()
	if n != nb {
		panic(mat.ErrShape)
	}
	dA := mat.NewDense(p*q, p*n, nil)
	dB := mat.NewDense(p*q, n*q, nil)
	for i := 0; i < p; i++ {
		for j := 0; j < q; j++ {
			row := i*q + j
			for k := 0; k < n; k++ {
				dA.Set(row, i*n+k, b.At(k, j))
				dB.Set(row, k*q+j, a.At(i, k))
			}
		}
	}
	return dA, dB
}

// setColumnFlat writes the row-major flattening of the 3x3 matrix m into column col of dst.
func setColumnFlat(dst *mat.Dense, col int, m mat.Matrix) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			dst.Set(3*i+j, col, m.At(i, j))
		}
	}
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
