package calibration

import (
	"github.com/samber/lo"

	"go.viam.com/multicalib/logging"
	"go.viam.com/multicalib/spatialmath"
	"go.viam.com/multicalib/utils"
)

// Traversal is the breadth first spanning tree of the pose graph.
type Traversal struct {
	Root int
	// Order lists the reachable vertices in visiting order, starting with the root.
	Order []int
	// Predecessor of each vertex in the tree, Invalid for the root and unreachable vertices.
	Predecessor []int
	// PredecessorEdge is the edge to the predecessor, Invalid when there is none.
	PredecessorEdge []int
}

// Traverse runs a breadth first search over adj from root. Neighbors are visited in the order
// of the adjacency list.
func Traverse(adj [][]Neighbor, root int) (*Traversal, error) {
	if root < 0 || root >= len(adj) {
		return nil, utils.NewInvariantError("traversal root %d outside of %d vertices", root, len(adj))
	}
	t := &Traversal{
		Root:            root,
		Order:           []int{root},
		Predecessor:     make([]int, len(adj)),
		PredecessorEdge: make([]int, len(adj)),
	}
	for i := range t.Predecessor {
		t.Predecessor[i] = Invalid
		t.PredecessorEdge[i] = Invalid
	}
	visited := make([]bool, len(adj))
	visited[root] = true
	queue := []int{root}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, n := range adj[v] {
			if visited[n.Vertex] {
				continue
			}
			visited[n.Vertex] = true
			queue = append(queue, n.Vertex)
			t.Order = append(t.Order, n.Vertex)
			t.Predecessor[n.Vertex] = v
			t.PredecessorEdge[n.Vertex] = n.Edge
		}
	}
	return t, nil
}

// Reachable reports whether v was visited.
func (t *Traversal) Reachable(v int) bool {
	return v == t.Root || t.Predecessor[v] != Invalid
}

// Initialize sets the pose of every vertex reachable from the root by walking the spanning tree.
// Edge transforms map the target frame to the camera frame, so with P the pose of the
// predecessor and T the connecting edge transform:
//
//	camera vertex: pose = T * P^-1
//	photo vertex:  pose = P^-1 * T
//
// Cameras that cannot be reached keep their current pose and are returned as disconnected.
func (g *PoseGraph) Initialize(logger logging.Logger) ([]int, error) {
	tree, err := Traverse(g.Adjacency(), RootVertex)
	if err != nil {
		return nil, err
	}
	for _, v := range tree.Order[1:] {
		pre := tree.Predecessor[v]
		transform := g.Edges[tree.PredecessorEdge[v]].Transform
		preInv := spatialmath.InvertRigidTransform(g.Vertices[pre].Pose)
		if g.IsCamera(v) {
			g.Vertices[v].Pose = spatialmath.ComposeTransforms(transform, preInv)
		} else {
			g.Vertices[v].Pose = spatialmath.ComposeTransforms(preInv, transform)
		}
	}

	disconnected := lo.Filter(lo.Range(g.NumCameras), func(v, _ int) bool {
		return !tree.Reachable(v)
	})
	for _, v := range disconnected {
		logger.Warnw("camera is not connected to the root camera, its pose is meaningless", "camera", v)
	}
	unreachablePhotos := len(g.Vertices) - g.NumCameras - lo.CountBy(tree.Order, func(v int) bool { return !g.IsCamera(v) })
	if unreachablePhotos > 0 {
		logger.Debugw("photo instants not connected to the root camera", "count", unreachablePhotos)
	}
	return disconnected, nil
}
