package calibration

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multicalib/rimage/transform"
	"go.viam.com/multicalib/spatialmath"
	"go.viam.com/multicalib/utils"
)

// CameraResult is the calibrated state of one camera.
type CameraResult struct {
	CameraMatrix [][]float64 `json:"camera_matrix"`
	Distortion   []float64   `json:"distortion"`
	// Xi is only set for omnidirectional cameras.
	Xi *float64 `json:"xi,omitempty"`
	// Pose maps the frame of camera 0 to the frame of this camera.
	Pose [][]float64 `json:"pose"`
	// PoseAxisAngle is the rotation of Pose with Theta in degrees.
	PoseAxisAngle spatialmath.R4AA `json:"pose_axis_angle"`
	Translation   []float64        `json:"translation"`
	Disconnected  bool             `json:"disconnected,omitempty"`
}

// Result is the outcome of a calibration run.
type Result struct {
	NumCameras int            `json:"num_cameras"`
	Cameras    []CameraResult `json:"cameras"`
	// TargetPoses maps each photo timestamp to the target to world transform.
	TargetPoses  map[string][][]float64 `json:"target_poses"`
	MeanError    float64                `json:"mean_error"`
	InitialError float64                `json:"initial_error"`
	Iterations   int                    `json:"iterations"`
	Disconnected []int                  `json:"disconnected,omitempty"`
	Statistics   []CameraStatistics     `json:"statistics"`
}

func newResult(
	graph *PoseGraph,
	models []transform.Projector,
	refined *RefineResult,
	disconnected []int,
	statistics []CameraStatistics,
) (*Result, error) {
	res := &Result{
		NumCameras:   graph.NumCameras,
		Cameras:      make([]CameraResult, graph.NumCameras),
		TargetPoses:  map[string][][]float64{},
		MeanError:    refined.FinalError,
		InitialError: refined.InitialError,
		Iterations:   refined.Iterations,
		Disconnected: disconnected,
		Statistics:   statistics,
	}
	isDisconnected := map[int]bool{}
	for _, v := range disconnected {
		isDisconnected[v] = true
	}
	for camera := 0; camera < graph.NumCameras; camera++ {
		model := models[camera]
		pose := graph.Vertices[camera].Pose
		om, t, err := spatialmath.RigidTransformToVectors(pose)
		if err != nil {
			return nil, errors.Wrapf(err, "camera %d pose", camera)
		}
		aa := spatialmath.R3ToR4(om)
		aa.Theta = utils.RadToDeg(aa.Theta)
		cr := CameraResult{
			CameraMatrix:  denseRows(model.CameraMatrix()),
			Distortion:    model.DistortionCoefficients(),
			Pose:          denseRows(pose),
			PoseAxisAngle: *aa,
			Translation:   []float64{t.X, t.Y, t.Z},
			Disconnected:  isDisconnected[camera],
		}
		if omni, ok := model.(*transform.OmnidirCameraModel); ok {
			xi := omni.Xi
			cr.Xi = &xi
		}
		res.Cameras[camera] = cr
	}
	for v := graph.NumCameras; v < len(graph.Vertices); v++ {
		vertex := graph.Vertices[v]
		res.TargetPoses[strconv.Itoa(vertex.Timestamp)] = denseRows(vertex.Pose)
	}
	return res, nil
}

func denseRows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		for j := range rows[i] {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}

// WriteJSON writes the result as indented JSON.
func (r *Result) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteFile writes the result as JSON to path.
func (r *Result) WriteFile(path string) error {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create result file %q", path)
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	return r.WriteJSON(f)
}

// String renders a table of the camera poses and their reprojection errors.
func (r *Result) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Camera", "Translation", "Rotation", "Edges", "Mean (px)", "Max (px)"})
	for i, cam := range r.Cameras {
		row := table.Row{
			fmt.Sprintf("%d", i),
			fmt.Sprintf("X:%.4f, Y:%.4f, Z:%.4f", cam.Translation[0], cam.Translation[1], cam.Translation[2]),
			fmt.Sprintf("%.2f deg about (%.3f, %.3f, %.3f)",
				cam.PoseAxisAngle.Theta, cam.PoseAxisAngle.RX, cam.PoseAxisAngle.RY, cam.PoseAxisAngle.RZ),
		}
		if i < len(r.Statistics) {
			s := r.Statistics[i]
			row = append(row, s.Edges, fmt.Sprintf("%.4f", s.Mean), fmt.Sprintf("%.4f", s.Max))
		} else {
			row = append(row, "", "", "")
		}
		if cam.Disconnected {
			row[0] = fmt.Sprintf("%d (disconnected)", i)
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"", "", "mean error",
		fmt.Sprintf("%d iterations", r.Iterations),
		fmt.Sprintf("%.4f", r.MeanError),
		fmt.Sprintf("initial %.4f", r.InitialError)})
	return t.Render()
}
