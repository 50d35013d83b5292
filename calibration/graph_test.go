package calibration

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/multicalib/spatialmath"
	"go.viam.com/multicalib/utils"
)

func TestNewPoseGraph(t *testing.T) {
	g := NewPoseGraph(3)
	test.That(t, len(g.Vertices), test.ShouldEqual, 3)
	test.That(t, g.Edges, test.ShouldBeEmpty)
	for v, vertex := range g.Vertices {
		test.That(t, g.IsCamera(v), test.ShouldBeTrue)
		test.That(t, vertex.IsCamera, test.ShouldBeTrue)
		test.That(t, vertex.Timestamp, test.ShouldEqual, Invalid)
		assertTransformsClose(t, vertex.Pose, spatialmath.IdentityTransform(), 0)
	}
	test.That(t, g.IsCamera(3), test.ShouldBeFalse)
	test.That(t, g.IsCamera(-1), test.ShouldBeFalse)
}

func TestPhotoVertex(t *testing.T) {
	g := NewPoseGraph(2)
	// Timestamps that equal camera indices still get their own photo vertices.
	first := g.PhotoVertex(0)
	test.That(t, first, test.ShouldEqual, 2)
	test.That(t, g.PhotoVertex(1), test.ShouldEqual, 3)
	test.That(t, g.PhotoVertex(0), test.ShouldEqual, first)
	test.That(t, len(g.Vertices), test.ShouldEqual, 4)
	test.That(t, g.Vertices[first].IsCamera, test.ShouldBeFalse)
	test.That(t, g.Vertices[first].Timestamp, test.ShouldEqual, 0)
}

func TestAddEdge(t *testing.T) {
	g := NewPoseGraph(2)
	tf := spatialmath.NewRigidTransform(r3.Vector{X: 0.1}, r3.Vector{Z: 1})

	e, err := g.AddEdge(1, 4, 17, tf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e, test.ShouldEqual, 0)
	test.That(t, g.Edges[0], test.ShouldResemble, Edge{CameraVertex: 1, PhotoVertex: 2, PhotoIndex: 4, Transform: tf})

	_, err = g.AddEdge(2, 0, 17, tf)
	test.That(t, utils.IsInvariantViolation(err), test.ShouldBeTrue)

	bad := spatialmath.IdentityTransform()
	bad.Set(3, 0, 1)
	_, err = g.AddEdge(0, 0, 17, bad)
	test.That(t, utils.IsInvariantViolation(err), test.ShouldBeTrue)
	test.That(t, len(g.Edges), test.ShouldEqual, 1)
}

func TestBuildPoseGraph(t *testing.T) {
	rig := newSyntheticRig(t,
		[]rigPose{{}, {t: r3.Vector{X: -0.1}}},
		[]rigShot{
			{timestamp: 5, target: rigPose{t: r3.Vector{Z: 1}}, cameras: []int{0, 1}},
			{timestamp: 6, target: rigPose{t: r3.Vector{Z: 1.1}}, cameras: []int{1}, points: 20},
			{timestamp: 7, target: rigPose{t: r3.Vector{Z: 1.2}}, cameras: []int{0}, points: 21},
		})

	g, err := BuildPoseGraph(20, rig.calibrations(t), rig.observations)
	test.That(t, err, test.ShouldBeNil)
	// The 20 point image of timestamp 6 does not exceed the threshold.
	test.That(t, len(g.Edges), test.ShouldEqual, 3)
	test.That(t, len(g.Vertices), test.ShouldEqual, 4)
	test.That(t, g.Vertices[2].Timestamp, test.ShouldEqual, 5)
	test.That(t, g.Vertices[3].Timestamp, test.ShouldEqual, 7)
	test.That(t, g.CameraEdgeCounts(), test.ShouldResemble, []int{2, 1})

	for _, edge := range g.Edges {
		obs := rig.observations[edge.CameraVertex][edge.PhotoIndex]
		test.That(t, g.Vertices[edge.PhotoVertex].Timestamp, test.ShouldEqual, obs.Timestamp)
		assertTransformsClose(t, edge.Transform, spatialmath.NewRigidTransform(obs.Rvec, obs.Tvec), 1e-12)
	}

	g, err = BuildPoseGraph(19, rig.calibrations(t), rig.observations)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(g.Edges), test.ShouldEqual, 4)

	_, err = BuildPoseGraph(20, rig.calibrations(t)[:1], rig.observations)
	test.That(t, utils.IsInvariantViolation(err), test.ShouldBeTrue)

	calibs := rig.calibrations(t)
	calibs[1].Poses[0].Index = 10
	_, err = BuildPoseGraph(20, calibs, rig.observations)
	test.That(t, utils.IsInvariantViolation(err), test.ShouldBeTrue)
}

func TestAdjacency(t *testing.T) {
	g := NewPoseGraph(3)
	tf := spatialmath.IdentityTransform()
	for _, e := range []struct{ camera, timestamp int }{{2, 10}, {0, 10}, {1, 11}, {0, 11}, {0, 10}} {
		_, err := g.AddEdge(e.camera, 0, e.timestamp, tf)
		test.That(t, err, test.ShouldBeNil)
	}
	adj := g.Adjacency()
	test.That(t, len(adj), test.ShouldEqual, 5)
	// The repeated (0, 10) edge replaces the earlier one.
	test.That(t, adj[0], test.ShouldResemble, []Neighbor{{Vertex: 3, Edge: 4}, {Vertex: 4, Edge: 3}})
	test.That(t, adj[3], test.ShouldResemble, []Neighbor{{Vertex: 0, Edge: 4}, {Vertex: 2, Edge: 0}})

	m := g.AdjacencyMatrix()
	for i := range m {
		for j := range m[i] {
			test.That(t, m[i][j], test.ShouldEqual, m[j][i])
		}
		test.That(t, m[i][i], test.ShouldEqual, 0)
	}
	test.That(t, m[1][4], test.ShouldEqual, 3)
	test.That(t, m[0][1], test.ShouldEqual, 0)
}
