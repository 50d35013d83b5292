package transform

import (
	"testing"

	"go.viam.com/test"
)

func TestBrownConradyParameters(t *testing.T) {
	bc, err := NewBrownConrady([]float64{0.1, 0.2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{0.1, 0.2, 0, 0, 0})
	test.That(t, bc.CheckValid(), test.ShouldBeNil)
	test.That(t, bc.ModelType(), test.ShouldEqual, BrownConradyDistortionType)

	_, err = NewBrownConrady([]float64{1, 2, 3, 4, 5, 6})
	test.That(t, err, test.ShouldNotBeNil)

	bc, err = NewBrownConradyFromOpenCV([]float64{0.1, 0.2, 0.3, 0.4, 0.5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.RadialK3, test.ShouldEqual, 0.5)
	test.That(t, bc.TangentialP1, test.ShouldEqual, 0.3)
	test.That(t, bc.OpenCVCoefficients(), test.ShouldResemble, []float64{0.1, 0.2, 0.3, 0.4, 0.5})

	var nilBC *BrownConrady
	test.That(t, nilBC.CheckValid(), test.ShouldNotBeNil)
	x, y := nilBC.Transform(0.3, 0.4)
	test.That(t, x, test.ShouldEqual, 0.3)
	test.That(t, y, test.ShouldEqual, 0.4)
}

func TestBrownConradyJacobian(t *testing.T) {
	bc := &BrownConrady{RadialK1: -0.2, RadialK2: 0.05, RadialK3: -0.01, TangentialP1: 0.002, TangentialP2: -0.003}
	const h = 1e-7
	for _, pt := range [][2]float64{{0.1, 0.2}, {-0.4, 0.3}, {0, 0}, {0.5, -0.5}} {
		j := bc.Jacobian(pt[0], pt[1])
		xp, yp := bc.Transform(pt[0]+h, pt[1])
		xm, ym := bc.Transform(pt[0]-h, pt[1])
		test.That(t, j[0], test.ShouldAlmostEqual, (xp-xm)/(2*h), 1e-6)
		test.That(t, j[2], test.ShouldAlmostEqual, (yp-ym)/(2*h), 1e-6)
		xp, yp = bc.Transform(pt[0], pt[1]+h)
		xm, ym = bc.Transform(pt[0], pt[1]-h)
		test.That(t, j[1], test.ShouldAlmostEqual, (xp-xm)/(2*h), 1e-6)
		test.That(t, j[3], test.ShouldAlmostEqual, (yp-ym)/(2*h), 1e-6)
	}
}

func TestBrownConradyUndistort(t *testing.T) {
	bc := &BrownConrady{RadialK1: -0.2, RadialK2: 0.05, TangentialP1: 0.002, TangentialP2: -0.003}
	for _, pt := range [][2]float64{{0.1, 0.2}, {-0.4, 0.3}, {0, 0}} {
		xd, yd := bc.Transform(pt[0], pt[1])
		x, y := bc.Undistort(xd, yd)
		test.That(t, x, test.ShouldAlmostEqual, pt[0], 1e-9)
		test.That(t, y, test.ShouldAlmostEqual, pt[1], 1e-9)
	}
}

func TestNewDistorter(t *testing.T) {
	d, err := NewDistorter(BrownConradyDistortionType, []float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Parameters()[0], test.ShouldEqual, 0.1)

	d, err = NewDistorter(NoDistortionType, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Parameters(), test.ShouldResemble, []float64{0, 0, 0, 0, 0})

	_, err = NewDistorter("kannala_brandt", nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "kannala_brandt")
}
