package calibration

import (
	"context"
	"fmt"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multicalib/logging"
	"go.viam.com/multicalib/rimage/transform"
	"go.viam.com/multicalib/spatialmath"
)

type rigPose struct {
	om, t r3.Vector
}

type rigShot struct {
	timestamp int
	target    rigPose
	cameras   []int
	// points overrides the number of target points seen.
	points int
}

// syntheticRig is a rig of cameras with known poses observing a planar grid.
type syntheticRig struct {
	models       []transform.Projector
	cameras      []rigPose
	shots        []rigShot
	observations [][]Observation
}

func rigGrid(n int) []r3.Vector {
	pts := make([]r3.Vector, 0, n)
	for i := 0; len(pts) < n; i++ {
		pts = append(pts, r3.Vector{X: 0.04 * float64(i%6), Y: 0.04 * float64(i/6)})
	}
	return pts
}

func testModel(t *testing.T) transform.Projector {
	t.Helper()
	k := mat.NewDense(3, 3, []float64{
		600, 0, 320,
		0, 610, 240,
		0, 0, 1,
	})
	model, err := transform.NewProjector(transform.PinholeModelType, k, []float64{-0.05, 0.01, 0.001, -0.001}, 0)
	test.That(t, err, test.ShouldBeNil)
	return model
}

func testOmnidirModel(t *testing.T) transform.Projector {
	t.Helper()
	k := mat.NewDense(3, 3, []float64{
		450, 0.3, 320,
		0, 455, 240,
		0, 0, 1,
	})
	model, err := transform.NewProjector(transform.OmnidirModelType, k, []float64{-0.04, 0.003, 0.0004, -0.0002}, 0.85)
	test.That(t, err, test.ShouldBeNil)
	return model
}

// newSyntheticRig projects every shot into the cameras that see it. Observations carry the
// exact target pose in the camera frame as their extrinsic guess.
func newSyntheticRig(t *testing.T, cameras []rigPose, shots []rigShot) *syntheticRig {
	t.Helper()
	return newSyntheticRigWithModel(t, testModel, cameras, shots)
}

func newSyntheticRigWithModel(
	t *testing.T,
	newModel func(*testing.T) transform.Projector,
	cameras []rigPose,
	shots []rigShot,
) *syntheticRig {
	t.Helper()
	rig := &syntheticRig{cameras: cameras, shots: shots, observations: make([][]Observation, len(cameras))}
	for range cameras {
		rig.models = append(rig.models, newModel(t))
	}
	for _, shot := range shots {
		n := shot.points
		if n == 0 {
			n = 30
		}
		obj := rigGrid(n)
		for _, camera := range shot.cameras {
			net := spatialmath.ComposeTransforms(rig.cameraPose(camera), rig.targetPose(shot))
			om, tr, err := spatialmath.RigidTransformToVectors(net)
			test.That(t, err, test.ShouldBeNil)
			img, _, err := rig.models[camera].ProjectPoints(obj, om, tr, false)
			test.That(t, err, test.ShouldBeNil)
			rig.observations[camera] = append(rig.observations[camera], Observation{
				Name:          fmt.Sprintf("%d-%d.png", camera, shot.timestamp),
				Timestamp:     shot.timestamp,
				ObjectPoints:  obj,
				ImagePoints:   img,
				Rvec:          om,
				Tvec:          tr,
				HasExtrinsics: true,
			})
		}
	}
	return rig
}

func (rig *syntheticRig) cameraPose(camera int) *mat.Dense {
	return spatialmath.NewRigidTransform(rig.cameras[camera].om, rig.cameras[camera].t)
}

func (rig *syntheticRig) targetPose(shot rigShot) *mat.Dense {
	return spatialmath.NewRigidTransform(shot.target.om, shot.target.t)
}

func (rig *syntheticRig) calibrations(t *testing.T) []*CameraCalibration {
	t.Helper()
	calibs, err := CalibrateCameras(context.Background(), &PrecomputedCalibrator{Models: rig.models}, rig.observations)
	test.That(t, err, test.ShouldBeNil)
	return calibs
}

// build returns the initialized pose graph and bundle of the rig.
func (rig *syntheticRig) build(t *testing.T, minMatches int) (*PoseGraph, *Bundle) {
	t.Helper()
	graph, err := BuildPoseGraph(minMatches, rig.calibrations(t), rig.observations)
	test.That(t, err, test.ShouldBeNil)
	_, err = graph.Initialize(logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	bundle, err := NewBundle(graph, rig.models, rig.observations)
	test.That(t, err, test.ShouldBeNil)
	return graph, bundle
}

// twoCameraRig has two pinhole cameras sharing three shots.
func twoCameraRig(t *testing.T) *syntheticRig {
	t.Helper()
	return twoCameraRigWithModel(t, testModel)
}

func twoCameraRigWithModel(t *testing.T, newModel func(*testing.T) transform.Projector) *syntheticRig {
	t.Helper()
	return newSyntheticRigWithModel(t, newModel,
		[]rigPose{
			{},
			{om: r3.Vector{Y: 0.08, Z: 0.02}, t: r3.Vector{X: -0.2, Y: 0.01, Z: 0.02}},
		},
		[]rigShot{
			{timestamp: 100, target: rigPose{om: r3.Vector{X: 0.1, Y: -0.1, Z: 0.05}, t: r3.Vector{X: -0.05, Y: -0.1, Z: 1.0}}, cameras: []int{0, 1}},
			{timestamp: 200, target: rigPose{om: r3.Vector{X: -0.2, Y: 0.15}, t: r3.Vector{X: -0.1, Y: -0.05, Z: 0.9}}, cameras: []int{0, 1}},
			{timestamp: 300, target: rigPose{om: r3.Vector{X: 0.05, Z: -0.3}, t: r3.Vector{X: 0.02, Y: -0.08, Z: 1.2}}, cameras: []int{1, 0}},
		})
}

// chainRig has three cameras where camera 2 only shares a shot with camera 1.
func chainRig(t *testing.T) *syntheticRig {
	t.Helper()
	return newSyntheticRig(t,
		[]rigPose{
			{},
			{om: r3.Vector{Y: 0.1}, t: r3.Vector{X: -0.15}},
			{om: r3.Vector{Y: 0.2, X: 0.03}, t: r3.Vector{X: -0.3, Z: 0.05}},
		},
		[]rigShot{
			{timestamp: 1, target: rigPose{om: r3.Vector{X: 0.1}, t: r3.Vector{X: -0.1, Y: -0.1, Z: 1.0}}, cameras: []int{0, 1}},
			{timestamp: 2, target: rigPose{om: r3.Vector{Y: 0.2}, t: r3.Vector{X: 0.05, Y: -0.1, Z: 1.1}}, cameras: []int{1, 2}},
		})
}

func assertTransformsClose(t *testing.T, actual, expected mat.Matrix, tol float64) {
	t.Helper()
	test.That(t, mat.EqualApprox(actual, expected, tol), test.ShouldBeTrue)
}
