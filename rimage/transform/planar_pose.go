package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multicalib/spatialmath"
)

// planarTolerance is the largest |z| allowed for an object point relative to the target extent.
const planarTolerance = 1e-6

// EstimatePlanarPose estimates the pose (om, t) of a planar target, whose points lie on z = 0 in
// the target frame, from one view of it. The homography between the target plane and the
// undistorted image is found with the normalized direct linear transform and decomposed into a
// rotation and translation. The result is meant as an initial guess for refinement.
func EstimatePlanarPose(model Projector, obj []r3.Vector, img []r2.Point) (r3.Vector, r3.Vector, error) {
	if len(obj) != len(img) {
		return r3.Vector{}, r3.Vector{}, errors.Errorf(
			"object and image points must have the same number of elements, got %d and %d", len(obj), len(img))
	}
	if len(obj) < 4 {
		return r3.Vector{}, r3.Vector{}, errors.Errorf("need at least 4 points to estimate a planar pose, got %d", len(obj))
	}
	extent := 0.
	for _, p := range obj {
		extent = math.Max(extent, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}
	if extent == 0 {
		return r3.Vector{}, r3.Vector{}, errors.New("object points are degenerate")
	}
	src := make([]r2.Point, len(obj))
	for i, p := range obj {
		if math.Abs(p.Z) > planarTolerance*extent {
			return r3.Vector{}, r3.Vector{}, errors.Errorf("object point %d (%v) is not on the z = 0 plane", i, p)
		}
		src[i] = r2.Point{X: p.X, Y: p.Y}
	}
	dst, err := model.UndistortPoints(img)
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}

	h, err := computeHomography(src, dst)
	if err != nil {
		return r3.Vector{}, r3.Vector{}, err
	}
	om, t := decomposePlanarHomography(h)
	return om, t, nil
}

// computeHomography returns H such that dst ~ H * src, normalizing both point sets first as
// described in Multiple View Geometry, Alg 4.2.
func computeHomography(src, dst []r2.Point) (*mat.Dense, error) {
	srcN, t1 := normalizePoints(src)
	dstN, t2 := normalizePoints(dst)
	if t1 == nil || t2 == nil {
		return nil, errors.New("points are degenerate, cannot compute homography")
	}

	nPoints := len(src)
	a := mat.NewDense(2*nPoints, 9, nil)
	for i := range srcN {
		s, d := srcN[i], dstN[i]
		a.SetRow(2*i, []float64{s.X, s.Y, 1, 0, 0, 0, -d.X * s.X, -d.X * s.Y, -d.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, s.X, s.Y, 1, -d.Y * s.X, -d.Y * s.Y, -d.Y})
	}
	mats := performSVD(a)
	if mats == nil {
		return nil, errors.New("svd failed while computing homography")
	}
	lastColV := mats.V.ColView(8)
	hData := make([]float64, 9)
	for i := range hData {
		hData[i] = lastColV.AtVec(i)
	}
	hn := mat.NewDense(3, 3, hData)

	// denormalize: T2^-1 * Hn * T1
	var t2Inv, h mat.Dense
	if err := t2Inv.Inverse(t2); err != nil {
		return nil, errors.Wrap(err, "cannot invert normalizing transform")
	}
	h.Mul(&t2Inv, hn)
	h.Mul(&h, t1)
	return &h, nil
}

// decomposePlanarHomography recovers the target pose from a homography between the z = 0 plane
// and ideal perspective coordinates, H ~ [r1 r2 t].
func decomposePlanarHomography(h *mat.Dense) (r3.Vector, r3.Vector) {
	h1 := r3.Vector{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
	h2 := r3.Vector{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}
	h3 := r3.Vector{X: h.At(0, 2), Y: h.At(1, 2), Z: h.At(2, 2)}

	lambda := 2. / (h1.Norm() + h2.Norm())
	// the target origin is in front of the camera
	if h3.Z < 0 {
		lambda = -lambda
	}
	r1 := h1.Mul(lambda)
	r2 := h2.Mul(lambda)
	rz := r1.Cross(r2)
	t := h3.Mul(lambda)

	rot := mat.NewDense(3, 3, []float64{
		r1.X, r2.X, rz.X,
		r1.Y, r2.Y, rz.Y,
		r1.Z, r2.Z, rz.Z,
	})
	om, _ := spatialmath.RodriguesFromMatrix(rot)
	return om, t
}

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 11.1.
// It returns a nil transform when all points coincide.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := len(pts)
	mu := r2.Point{X: 0, Y: 0}
	for _, pt := range pts {
		mu.X += pt.X
		mu.Y += pt.Y
	}
	mu = mu.Mul(1. / float64(nPoints))
	d := 0.0
	for _, pt := range pts {
		x2 := (pt.X - mu.X) * (pt.X - mu.X)
		y2 := (pt.Y - mu.Y) * (pt.Y - mu.Y)
		d += math.Sqrt(x2+y2) / float64(nPoints)
	}
	if d == 0 {
		return nil, nil
	}
	scale := math.Sqrt(2) / d
	transformData := []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	}
	T := mat.NewDense(3, 3, transformData)
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = r2.Point{X: scale * (pts[i].X - mu.X), Y: scale * (pts[i].Y - mu.Y)}
	}
	return pointsTransformed, T
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U *mat.Dense
	V *mat.Dense
	S []float64
}

// performSVD performs SVD on inputMatrix and returns matrices U, V and the singular values.
func performSVD(inputMatrix *mat.Dense) *matsSVD {
	var svd mat.SVD
	if ok := svd.Factorize(inputMatrix, mat.SVDFull); !ok {
		return nil
	}
	u, v := &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	return &matsSVD{U: u, V: v, S: svd.Values(nil)}
}
