package calibration

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multicalib/rimage/transform"
	"go.viam.com/multicalib/spatialmath"
	"go.viam.com/multicalib/utils"
)

// Bundle couples a pose graph with the camera models and correspondences its edges refer to.
// It evaluates the reprojection residuals of a parameter vector and their derivatives.
type Bundle struct {
	Graph        *PoseGraph
	Models       []transform.Projector
	Observations [][]Observation
	// rowOffsets[e] is the first residual row of edge e. The last entry is the residual count.
	rowOffsets []int
}

// NewBundle validates that every edge refers to an existing camera model and observation.
func NewBundle(graph *PoseGraph, models []transform.Projector, observations [][]Observation) (*Bundle, error) {
	if len(models) != graph.NumCameras {
		return nil, utils.NewShapeMismatchError("camera models", graph.NumCameras, len(models))
	}
	if len(observations) != graph.NumCameras {
		return nil, utils.NewShapeMismatchError("camera observations", graph.NumCameras, len(observations))
	}
	b := &Bundle{Graph: graph, Models: models, Observations: observations, rowOffsets: make([]int, len(graph.Edges)+1)}
	for e, edge := range graph.Edges {
		if !graph.IsCamera(edge.CameraVertex) || graph.IsCamera(edge.PhotoVertex) || edge.PhotoVertex >= len(graph.Vertices) {
			return nil, utils.NewInvariantError("edge %d joins vertices %d and %d", e, edge.CameraVertex, edge.PhotoVertex)
		}
		if models[edge.CameraVertex] == nil {
			return nil, utils.NewInvariantError("camera %d has no model", edge.CameraVertex)
		}
		camObs := observations[edge.CameraVertex]
		if edge.PhotoIndex < 0 || edge.PhotoIndex >= len(camObs) {
			return nil, utils.NewInvariantError("edge %d refers to image %d of %d", e, edge.PhotoIndex, len(camObs))
		}
		obs := camObs[edge.PhotoIndex]
		if len(obs.ObjectPoints) != len(obs.ImagePoints) {
			return nil, utils.NewShapeMismatchError("image points of "+obs.Name, len(obs.ObjectPoints), len(obs.ImagePoints))
		}
		b.rowOffsets[e+1] = b.rowOffsets[e] + 2*len(obs.ObjectPoints)
	}
	return b, nil
}

// NumResiduals is the number of rows of the Jacobian, two per observed point.
func (b *Bundle) NumResiduals() int {
	return b.rowOffsets[len(b.rowOffsets)-1]
}

// NumParameters is the number of columns of the Jacobian.
func (b *Bundle) NumParameters() int {
	return b.Graph.NumParameters()
}

func (b *Bundle) observation(e int) *Observation {
	edge := b.Graph.Edges[e]
	return &b.Observations[edge.CameraVertex][edge.PhotoIndex]
}

// EdgeJacobian returns the derivatives of the residuals of edge e with respect to the camera
// and photo vertex parameters, both 2n x 6, and the residuals themselves as interleaved x, y
// differences between observed and projected points. The camera block is nil when the camera
// is the root.
func (b *Bundle) EdgeJacobian(params []float64, e int) (*mat.Dense, *mat.Dense, []float64, error) {
	edge := b.Graph.Edges[e]
	obs := b.observation(e)
	omPhoto, tPhoto := vertexMotion(params, edge.PhotoVertex)
	omCam, tCam := vertexMotion(params, edge.CameraVertex)
	om, t, motion := spatialmath.ComposeMotion(omPhoto, tPhoto, omCam, tCam)

	projected, projJac, err := b.Models[edge.CameraVertex].ProjectPoints(obs.ObjectPoints, om, t, true)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "projecting edge %d", e)
	}
	residual := make([]float64, 2*len(projected))
	for i, p := range projected {
		residual[2*i] = obs.ImagePoints[i].X - p.X
		residual[2*i+1] = obs.ImagePoints[i].Y - p.Y
	}
	if projJac == nil {
		return nil, nil, residual, nil
	}
	rows, _ := projJac.Dims()
	dOm := projJac.Slice(0, rows, 0, 3)
	dT := projJac.Slice(0, rows, 3, 6)

	photo := mat.NewDense(rows, ParamsPerVertex, nil)
	chainBlock(photo, 0, dOm, dT, motion.DOm3DOm1, motion.DT3DOm1)
	chainBlock(photo, 3, dOm, dT, motion.DOm3DT1, motion.DT3DT1)

	var camera *mat.Dense
	if edge.CameraVertex != RootVertex {
		camera = mat.NewDense(rows, ParamsPerVertex, nil)
		chainBlock(camera, 0, dOm, dT, motion.DOm3DOm2, motion.DT3DOm2)
		chainBlock(camera, 3, dOm, dT, motion.DOm3DT2, motion.DT3DT2)
	}
	return camera, photo, residual, nil
}

// chainBlock writes dOm*dOmdX + dT*dTdX into columns [col, col+3) of dst.
func chainBlock(dst *mat.Dense, col int, dOm, dT mat.Matrix, dOmdX, dTdX *mat.Dense) {
	rows, _ := dst.Dims()
	var a, c mat.Dense
	a.Mul(dOm, dOmdX)
	c.Mul(dT, dTdX)
	a.Add(&a, &c)
	dst.Slice(0, rows, col, col+3).(*mat.Dense).Copy(&a)
}

// Jacobian assembles the full Jacobian J and residual E for params. Each edge fills only its own
// rows, so when parallel is set edges are split into groups that are computed concurrently.
func (b *Bundle) Jacobian(ctx context.Context, params []float64, parallel bool) (*mat.Dense, *mat.VecDense, error) {
	ctx, span := trace.StartSpan(ctx, "calibration::Bundle::Jacobian")
	defer span.End()

	if err := b.Graph.checkParameters(params); err != nil {
		return nil, nil, err
	}
	nRows, nCols := b.NumResiduals(), b.NumParameters()
	if nRows == 0 || nCols == 0 {
		return nil, nil, utils.NewInvariantError("cannot build a %dx%d jacobian", nRows, nCols)
	}
	jac := mat.NewDense(nRows, nCols, nil)
	residual := mat.NewVecDense(nRows, nil)
	edgeErrs := make([]error, len(b.Graph.Edges))

	fill := func(e int) {
		edge := b.Graph.Edges[e]
		r0, r1 := b.rowOffsets[e], b.rowOffsets[e+1]
		if r0 == r1 {
			return
		}
		camera, photo, res, err := b.EdgeJacobian(params, e)
		if err != nil {
			edgeErrs[e] = err
			return
		}
		pc := paramOffset(edge.PhotoVertex)
		jac.Slice(r0, r1, pc, pc+ParamsPerVertex).(*mat.Dense).Copy(photo)
		if camera != nil {
			cc := paramOffset(edge.CameraVertex)
			jac.Slice(r0, r1, cc, cc+ParamsPerVertex).(*mat.Dense).Copy(camera)
		}
		for i, v := range res {
			residual.SetVec(r0+i, v)
		}
	}

	if parallel {
		if err := utils.GroupWorkParallel(ctx, len(b.Graph.Edges), nil,
			func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
				return func(memberNum, workNum int) { fill(workNum) }, nil
			}); err != nil {
			return nil, nil, err
		}
	} else {
		for e := range b.Graph.Edges {
			fill(e)
		}
	}
	for _, err := range edgeErrs {
		if err != nil {
			return nil, nil, err
		}
	}
	return jac, residual, nil
}

// edgeMotion returns the net target to camera motion of edge e under params.
func (b *Bundle) edgeMotion(params []float64, e int) (r3.Vector, r3.Vector, error) {
	edge := b.Graph.Edges[e]
	omPhoto, tPhoto := vertexMotion(params, edge.PhotoVertex)
	if edge.CameraVertex == RootVertex {
		return omPhoto, tPhoto, nil
	}
	omCam, tCam := vertexMotion(params, edge.CameraVertex)
	net := spatialmath.ComposeTransforms(
		spatialmath.NewRigidTransform(omCam, tCam),
		spatialmath.NewRigidTransform(omPhoto, tPhoto))
	return spatialmath.RigidTransformToVectors(net)
}
