// Package calibration estimates the relative poses of a rig of cameras that observe a shared
// calibration target over time.
//
// Every camera and every distinct capture timestamp ("photo") becomes a vertex of a pose graph.
// Each accepted observation of the target by a camera becomes an edge carrying the rigid
// transform from the target frame to that camera's frame. Camera 0 is the root of the graph and
// defines the world frame. Poses are initialized by a breadth first traversal from the root and
// then jointly refined by a damped Gauss-Newton minimization of the reprojection error.
package calibration

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multicalib/spatialmath"
)

// Invalid marks a missing vertex, such as the predecessor of the root or of an unreachable vertex.
const Invalid = -1

// RootVertex is the camera that defines the world frame. Its pose is always the identity.
const RootVertex = 0

// Vertex is a camera or a photo instant in the pose graph. The pose of a camera vertex maps the
// world frame to the camera frame. The pose of a photo vertex maps the target frame to the world
// frame.
type Vertex struct {
	Pose *mat.Dense
	// Timestamp of a photo vertex. Camera vertices have no timestamp.
	Timestamp int
	IsCamera  bool
}

func newCameraVertex() Vertex {
	return Vertex{Pose: spatialmath.IdentityTransform(), Timestamp: Invalid, IsCamera: true}
}

func newPhotoVertex(timestamp int) Vertex {
	return Vertex{Pose: spatialmath.IdentityTransform(), Timestamp: timestamp}
}

// Edge is one accepted observation. Transform maps the target frame of the photo to the frame
// of the camera.
type Edge struct {
	CameraVertex int
	PhotoVertex  int
	// PhotoIndex indexes the observation within the camera's observation list.
	PhotoIndex int
	Transform  *mat.Dense
}

// Observation is one image of the target taken by one camera.
type Observation struct {
	Name         string
	Timestamp    int
	ObjectPoints []r3.Vector
	ImagePoints  []r2.Point
	// Rvec and Tvec are an optional guess of the target pose in the camera frame.
	Rvec          r3.Vector
	Tvec          r3.Vector
	HasExtrinsics bool
}
