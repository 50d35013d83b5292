package calibration

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/multicalib/spatialmath"
	"go.viam.com/multicalib/utils"
)

// PoseGraph holds the vertices and edges of one calibration run. The first NumCameras vertices
// are the cameras, in camera index order. Photo vertices follow, one per distinct timestamp, in
// order of first sighting.
type PoseGraph struct {
	NumCameras int
	Vertices   []Vertex
	Edges      []Edge
}

// Neighbor is an entry of the adjacency list.
type Neighbor struct {
	Vertex int
	Edge   int
}

// NewPoseGraph returns a graph with numCameras camera vertices at the identity and no photos.
func NewPoseGraph(numCameras int) *PoseGraph {
	g := &PoseGraph{NumCameras: numCameras, Vertices: make([]Vertex, 0, numCameras)}
	for i := 0; i < numCameras; i++ {
		g.Vertices = append(g.Vertices, newCameraVertex())
	}
	return g
}

// BuildPoseGraph creates an edge for every calibrated pose whose observation has more than
// minMatches correspondences.
func BuildPoseGraph(minMatches int, calibrations []*CameraCalibration, observations [][]Observation) (*PoseGraph, error) {
	if len(calibrations) != len(observations) {
		return nil, utils.NewShapeMismatchError("camera calibrations", len(observations), len(calibrations))
	}
	g := NewPoseGraph(len(calibrations))
	for camera, calib := range calibrations {
		if calib == nil {
			return nil, utils.NewInvariantError("camera %d has no calibration", camera)
		}
		for _, pose := range calib.Poses {
			if pose.Index < 0 || pose.Index >= len(observations[camera]) {
				return nil, utils.NewInvariantError("camera %d pose refers to image %d of %d",
					camera, pose.Index, len(observations[camera]))
			}
			obs := observations[camera][pose.Index]
			if len(obs.ObjectPoints) <= minMatches {
				continue
			}
			if _, err := g.AddEdge(camera, pose.Index, obs.Timestamp, spatialmath.NewRigidTransform(pose.Rvec, pose.Tvec)); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// IsCamera reports whether v is a camera vertex.
func (g *PoseGraph) IsCamera(v int) bool {
	return v >= 0 && v < g.NumCameras
}

// PhotoVertex returns the photo vertex of timestamp, appending a new one at the identity when
// no photo vertex has that timestamp yet.
func (g *PoseGraph) PhotoVertex(timestamp int) int {
	for i := g.NumCameras; i < len(g.Vertices); i++ {
		if g.Vertices[i].Timestamp == timestamp {
			return i
		}
	}
	g.Vertices = append(g.Vertices, newPhotoVertex(timestamp))
	return len(g.Vertices) - 1
}

// AddEdge records that camera saw the target at timestamp in its observation photoIndex, with
// transform mapping the target frame to the camera frame. It returns the edge index.
func (g *PoseGraph) AddEdge(camera, photoIndex, timestamp int, transform *mat.Dense) (int, error) {
	if !g.IsCamera(camera) {
		return Invalid, utils.NewInvariantError("edge camera %d is not a camera vertex", camera)
	}
	if err := spatialmath.CheckRigidTransform(transform); err != nil {
		return Invalid, err
	}
	photo := g.PhotoVertex(timestamp)
	g.Edges = append(g.Edges, Edge{
		CameraVertex: camera,
		PhotoVertex:  photo,
		PhotoIndex:   photoIndex,
		Transform:    transform,
	})
	return len(g.Edges) - 1, nil
}

// Adjacency returns, for every vertex, its neighbors in increasing vertex order together with
// the edge that connects them. When several edges connect the same pair the last one is used.
func (g *PoseGraph) Adjacency() [][]Neighbor {
	byVertex := make([]map[int]int, len(g.Vertices))
	link := func(a, b, e int) {
		if byVertex[a] == nil {
			byVertex[a] = map[int]int{}
		}
		byVertex[a][b] = e
	}
	for e, edge := range g.Edges {
		link(edge.CameraVertex, edge.PhotoVertex, e)
		link(edge.PhotoVertex, edge.CameraVertex, e)
	}
	adj := make([][]Neighbor, len(g.Vertices))
	for v, neighbors := range byVertex {
		for n, e := range neighbors {
			adj[v] = append(adj[v], Neighbor{Vertex: n, Edge: e})
		}
		sort.Slice(adj[v], func(i, j int) bool { return adj[v][i].Vertex < adj[v][j].Vertex })
	}
	return adj
}

// AdjacencyMatrix returns the dense symmetric form of the adjacency, where cell (i, j) holds the
// index plus one of the edge between i and j, or zero.
func (g *PoseGraph) AdjacencyMatrix() [][]int {
	m := make([][]int, len(g.Vertices))
	for i := range m {
		m[i] = make([]int, len(g.Vertices))
	}
	for v, neighbors := range g.Adjacency() {
		for _, n := range neighbors {
			m[v][n.Vertex] = n.Edge + 1
		}
	}
	return m
}

// CameraEdgeCounts returns the number of edges incident to each camera.
func (g *PoseGraph) CameraEdgeCounts() []int {
	counts := make([]int, g.NumCameras)
	for _, e := range g.Edges {
		counts[e.CameraVertex]++
	}
	return counts
}
