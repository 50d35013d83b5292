package calibration

import (
	"github.com/golang/geo/r3"

	"go.viam.com/multicalib/spatialmath"
	"go.viam.com/multicalib/utils"
)

// ParamsPerVertex is the number of parameters of a vertex pose: a rotation vector followed by a
// translation.
const ParamsPerVertex = 6

// paramOffset returns the offset of vertex v in the parameter vector. The root has no parameters.
func paramOffset(v int) int {
	return (v - 1) * ParamsPerVertex
}

// EncodeParameters packs the rotation and translation vectors of vertices 1..n into a flat
// parameter vector.
func EncodeParameters(rvecs, tvecs []r3.Vector) ([]float64, error) {
	if len(rvecs) != len(tvecs) {
		return nil, utils.NewShapeMismatchError("translation vectors", len(rvecs), len(tvecs))
	}
	params := make([]float64, 0, ParamsPerVertex*len(rvecs))
	for i := range rvecs {
		params = append(params,
			rvecs[i].X, rvecs[i].Y, rvecs[i].Z,
			tvecs[i].X, tvecs[i].Y, tvecs[i].Z)
	}
	return params, nil
}

// DecodeParameters is the inverse of EncodeParameters.
func DecodeParameters(params []float64) ([]r3.Vector, []r3.Vector, error) {
	if len(params)%ParamsPerVertex != 0 {
		return nil, nil, utils.NewShapeMismatchError("parameter vector length", "multiple of 6", len(params))
	}
	n := len(params) / ParamsPerVertex
	rvecs := make([]r3.Vector, n)
	tvecs := make([]r3.Vector, n)
	for i := 0; i < n; i++ {
		rvecs[i], tvecs[i] = vectorsAt(params, i*ParamsPerVertex)
	}
	return rvecs, tvecs, nil
}

func vectorsAt(params []float64, offset int) (r3.Vector, r3.Vector) {
	p := params[offset : offset+ParamsPerVertex]
	return r3.Vector{X: p[0], Y: p[1], Z: p[2]}, r3.Vector{X: p[3], Y: p[4], Z: p[5]}
}

// vertexMotion returns the rotation and translation of vertex v from params, the identity for the root.
func vertexMotion(params []float64, v int) (r3.Vector, r3.Vector) {
	if v == RootVertex {
		return r3.Vector{}, r3.Vector{}
	}
	return vectorsAt(params, paramOffset(v))
}

// NumParameters is the length of the parameter vector of the graph.
func (g *PoseGraph) NumParameters() int {
	if len(g.Vertices) == 0 {
		return 0
	}
	return ParamsPerVertex * (len(g.Vertices) - 1)
}

// Parameters encodes the poses of every non-root vertex.
func (g *PoseGraph) Parameters() ([]float64, error) {
	if len(g.Vertices) == 0 {
		return nil, nil
	}
	rvecs := make([]r3.Vector, 0, len(g.Vertices)-1)
	tvecs := make([]r3.Vector, 0, len(g.Vertices)-1)
	for v := 1; v < len(g.Vertices); v++ {
		om, t, err := spatialmath.RigidTransformToVectors(g.Vertices[v].Pose)
		if err != nil {
			return nil, err
		}
		rvecs = append(rvecs, om)
		tvecs = append(tvecs, t)
	}
	return EncodeParameters(rvecs, tvecs)
}

// checkParameters verifies that params has one block per non-root vertex.
func (g *PoseGraph) checkParameters(params []float64) error {
	if len(params) != g.NumParameters() {
		return utils.NewShapeMismatchError("parameter vector length", g.NumParameters(), len(params))
	}
	return nil
}

// SetParameters decodes params into the poses of every non-root vertex. The root stays at the identity.
func (g *PoseGraph) SetParameters(params []float64) error {
	if err := g.checkParameters(params); err != nil {
		return err
	}
	rvecs, tvecs, err := DecodeParameters(params)
	if err != nil {
		return err
	}
	for i := range rvecs {
		g.Vertices[i+1].Pose = spatialmath.NewRigidTransform(rvecs[i], tvecs[i])
	}
	g.Vertices[RootVertex].Pose = spatialmath.IdentityTransform()
	return nil
}
