package calibration

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/multicalib/rimage/transform"
	"go.viam.com/multicalib/utils"
)

func TestEvaluatorGroundTruth(t *testing.T) {
	rig := twoCameraRig(t)
	graph, bundle := rig.build(t, 20)
	params, err := graph.Parameters()
	test.That(t, err, test.ShouldBeNil)

	meanErr, err := bundle.MeanError(params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meanErr, test.ShouldAlmostEqual, 0, 1e-6)

	for e, edge := range graph.Edges {
		tf, err := bundle.EdgeTransform(params, e)
		test.That(t, err, test.ShouldBeNil)
		assertTransformsClose(t, tf, edge.Transform, 1e-9)
	}

	stats, err := bundle.CameraStatistics(params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(stats), test.ShouldEqual, 2)
	for camera, s := range stats {
		test.That(t, s.Camera, test.ShouldEqual, camera)
		test.That(t, s.Edges, test.ShouldEqual, 3)
		test.That(t, s.Points, test.ShouldEqual, 90)
		test.That(t, s.Max, test.ShouldAlmostEqual, 0, 1e-6)
	}
}

func TestEvaluatorTinyRotation(t *testing.T) {
	rig := newSyntheticRig(t,
		[]rigPose{{}, {om: r3.Vector{Y: 8e-6}, t: r3.Vector{X: -0.1}}},
		[]rigShot{{timestamp: 1, target: rigPose{t: r3.Vector{X: -0.05, Y: -0.1, Z: 1}}, cameras: []int{0, 1}}})
	graph, bundle := rig.build(t, 20)
	params, err := graph.Parameters()
	test.That(t, err, test.ShouldBeNil)

	for e, edge := range graph.Edges {
		if edge.CameraVertex != 1 {
			continue
		}
		om, _, err := bundle.edgeMotion(params, e)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, om.Y, test.ShouldAlmostEqual, 8e-6, 1e-12)
	}
	meanErr, err := bundle.MeanError(params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meanErr, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestEvaluatorPerturbed(t *testing.T) {
	rig := twoCameraRig(t)
	graph, bundle := rig.build(t, 20)
	params, err := graph.Parameters()
	test.That(t, err, test.ShouldBeNil)
	edgesBefore := make([]Edge, len(graph.Edges))
	copy(edgesBefore, graph.Edges)

	// Shift camera 1 sideways by a centimeter.
	params[paramOffset(1)+3] += 0.01
	perEdge, err := bundle.PointErrors(params)
	test.That(t, err, test.ShouldBeNil)
	for e, edge := range graph.Edges {
		for _, v := range perEdge[e] {
			if edge.CameraVertex == RootVertex {
				test.That(t, v, test.ShouldAlmostEqual, 0, 1e-6)
			} else {
				// about fx * 0.01 / depth pixels
				test.That(t, v, test.ShouldBeBetween, 3, 9)
			}
		}
	}

	meanErr, err := bundle.MeanError(params)
	test.That(t, err, test.ShouldBeNil)
	stats, err := bundle.CameraStatistics(params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meanErr, test.ShouldAlmostEqual, (stats[0].Mean+stats[1].Mean)/2, 1e-9)
	test.That(t, stats[1].RMS, test.ShouldBeGreaterThanOrEqualTo, stats[1].Mean)
	test.That(t, stats[1].Max, test.ShouldBeGreaterThanOrEqualTo, stats[1].Median)

	// Evaluation never touches the edges.
	test.That(t, graph.Edges, test.ShouldResemble, edgesBefore)
	_, err = bundle.EdgeTransform(params[:6], 0)
	test.That(t, utils.IsInvariantViolation(err), test.ShouldBeTrue)
}

func TestMeanErrorNoEdges(t *testing.T) {
	graph := NewPoseGraph(2)
	graph.PhotoVertex(3)
	bundle, err := NewBundle(graph, []transform.Projector{testModel(t), testModel(t)}, [][]Observation{nil, nil})
	test.That(t, err, test.ShouldBeNil)
	params, err := graph.Parameters()
	test.That(t, err, test.ShouldBeNil)
	meanErr, err := bundle.MeanError(params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, meanErr, test.ShouldEqual, 0)

	stats, err := bundle.CameraStatistics(params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats[1], test.ShouldResemble, CameraStatistics{Camera: 1})
}
