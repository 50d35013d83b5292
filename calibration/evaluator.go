package calibration

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multicalib/spatialmath"
	"go.viam.com/multicalib/utils"
)

// EdgeTransform returns the target to camera transform of edge e implied by params, that is the
// camera pose composed with the photo pose.
func (b *Bundle) EdgeTransform(params []float64, e int) (*mat.Dense, error) {
	if err := b.Graph.checkParameters(params); err != nil {
		return nil, err
	}
	om, t, err := b.edgeMotion(params, e)
	if err != nil {
		return nil, err
	}
	return spatialmath.NewRigidTransform(om, t), nil
}

// PointErrors returns, for every edge, the pixel distance between each observed point and its
// reprojection under params.
func (b *Bundle) PointErrors(params []float64) ([][]float64, error) {
	if err := b.Graph.checkParameters(params); err != nil {
		return nil, err
	}
	out := make([][]float64, len(b.Graph.Edges))
	for e, edge := range b.Graph.Edges {
		om, t, err := b.edgeMotion(params, e)
		if err != nil {
			return nil, err
		}
		obs := b.observation(e)
		projected, _, err := b.Models[edge.CameraVertex].ProjectPoints(obs.ObjectPoints, om, t, false)
		if err != nil {
			return nil, errors.Wrapf(err, "projecting edge %d", e)
		}
		out[e] = make([]float64, len(projected))
		for i, p := range projected {
			out[e][i] = obs.ImagePoints[i].Sub(p).Norm()
		}
	}
	return out, nil
}

// MeanError is the mean reprojection error in pixels over every observed point. It is zero when
// there are no points.
func (b *Bundle) MeanError(params []float64) (float64, error) {
	perEdge, err := b.PointErrors(params)
	if err != nil {
		return 0, err
	}
	total, count := 0., 0
	for _, errs := range perEdge {
		for _, v := range errs {
			total += v
		}
		count += len(errs)
	}
	if count == 0 {
		return 0, nil
	}
	return total / float64(count), nil
}

// CameraStatistics summarizes the reprojection error of the points seen by one camera.
type CameraStatistics struct {
	Camera int     `json:"camera"`
	Edges  int     `json:"edges"`
	Points int     `json:"points"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
	RMS    float64 `json:"rms"`
}

// CameraStatistics returns the reprojection statistics of every camera under params. Cameras
// without edges have zero statistics.
func (b *Bundle) CameraStatistics(params []float64) ([]CameraStatistics, error) {
	perEdge, err := b.PointErrors(params)
	if err != nil {
		return nil, err
	}
	perCamera := make([][]float64, b.Graph.NumCameras)
	out := make([]CameraStatistics, b.Graph.NumCameras)
	for e, edge := range b.Graph.Edges {
		perCamera[edge.CameraVertex] = append(perCamera[edge.CameraVertex], perEdge[e]...)
		out[edge.CameraVertex].Edges++
	}
	for camera, errs := range perCamera {
		out[camera].Camera = camera
		out[camera].Points = len(errs)
		if len(errs) == 0 {
			continue
		}
		data := stats.Float64Data(errs)
		if out[camera].Mean, err = stats.Mean(data); err != nil {
			return nil, err
		}
		if out[camera].Median, err = stats.Median(data); err != nil {
			return nil, err
		}
		if out[camera].Max, err = stats.Max(data); err != nil {
			return nil, err
		}
		squares := make(stats.Float64Data, len(errs))
		for i, v := range errs {
			squares[i] = utils.Square(v)
		}
		meanSquare, err := stats.Mean(squares)
		if err != nil {
			return nil, err
		}
		out[camera].RMS = math.Sqrt(meanSquare)
	}
	return out, nil
}
