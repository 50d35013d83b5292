package calibration

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/multicalib/config"
	"go.viam.com/multicalib/logging"
)

const (
	// ridge is added to the diagonal of the normal equations to keep them solvable.
	ridge = 1e-10
	// alphaSmooth is the initial step damping. The step scale ramps from it towards 1.
	alphaSmooth = 0.01
)

// stepScale is the damping factor of iteration iter, 1 - (1 - alphaSmooth)^(iter+1).
func stepScale(iter int) float64 {
	return 1 - math.Pow(1-alphaSmooth, float64(iter)+1)
}

// Refiner minimizes the reprojection error of a bundle with damped Gauss-Newton steps.
type Refiner struct {
	bundle   *Bundle
	criteria config.TermCriteria
	parallel bool
	logger   logging.Logger
}

// RefineResult is the outcome of a refinement.
type RefineResult struct {
	Params       []float64
	InitialError float64
	FinalError   float64
	Iterations   int
	// Change is the relative size of the last step.
	Change float64
}

// NewRefiner returns a Refiner over bundle.
func NewRefiner(bundle *Bundle, criteria config.TermCriteria, parallel bool, logger logging.Logger) *Refiner {
	return &Refiner{bundle: bundle, criteria: criteria, parallel: parallel, logger: logger}
}

// Refine iterates from initial until the termination criteria are met. The criteria are checked
// before every iteration. Each iteration solves
//
//	step = alpha(k) * (J^T J + ridge I)^-1 J^T E
//
// and adds step to the parameters. initial is not modified.
func (r *Refiner) Refine(ctx context.Context, initial []float64) (*RefineResult, error) {
	ctx, span := trace.StartSpan(ctx, "calibration::Refiner::Refine")
	defer span.End()

	if err := r.bundle.Graph.checkParameters(initial); err != nil {
		return nil, err
	}
	params := append([]float64(nil), initial...)
	initialErr, err := r.bundle.MeanError(params)
	if err != nil {
		return nil, err
	}
	result := &RefineResult{Params: params, InitialError: initialErr, FinalError: initialErr, Change: 1}
	if r.bundle.NumResiduals() == 0 || r.bundle.NumParameters() == 0 {
		r.logger.Warnw("nothing to refine", "residuals", r.bundle.NumResiduals(), "parameters", r.bundle.NumParameters())
		return result, nil
	}

	change := 1.
	iter := 0
	for ; !r.criteria.Done(iter, change); iter++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "refinement stopped at iteration %d", iter)
		}
		jac, residual, err := r.bundle.Jacobian(ctx, params, r.parallel)
		if err != nil {
			return nil, err
		}
		step, err := dampedStep(jac, residual, stepScale(iter))
		if err != nil {
			return nil, err
		}
		floats.Add(params, step)
		change = relativeChange(step, params)

		if r.logger.GetLevel() == logging.DEBUG {
			meanErr, err := r.bundle.MeanError(params)
			if err != nil {
				return nil, err
			}
			r.logger.Debugw("refinement iteration", "iteration", iter, "mean_error", meanErr, "change", change)
		}
	}

	result.Iterations = iter
	result.Change = change
	if result.FinalError, err = r.bundle.MeanError(params); err != nil {
		return nil, err
	}
	r.logger.Infow("refinement finished", "iterations", iter, "initial_error", result.InitialError,
		"final_error", result.FinalError, "change", change)
	return result, nil
}

// dampedStep solves (J^T J + ridge I) x = J^T E and scales x by alpha.
func dampedStep(jac *mat.Dense, residual *mat.VecDense, alpha float64) ([]float64, error) {
	_, n := jac.Dims()
	normal := mat.NewSymDense(n, nil)
	normal.SymOuterK(1, jac.T())
	for i := 0; i < n; i++ {
		normal.SetSym(i, i, normal.At(i, i)+ridge)
	}
	var rhs mat.VecDense
	rhs.MulVec(jac.T(), residual)

	var step mat.VecDense
	var chol mat.Cholesky
	var err error
	if ok := chol.Factorize(normal); ok {
		err = chol.SolveVecTo(&step, &rhs)
	} else {
		// Not numerically positive definite, fall back to a general solve.
		err = step.SolveVec(normal, &rhs)
	}
	// Parameters no observation depends on make the system ill-conditioned. The solution is
	// still written, and the ridge keeps their step at zero.
	var cond mat.Condition
	if err != nil && !errors.As(err, &cond) {
		return nil, errors.Wrap(err, "solving normal equations")
	}
	step.ScaleVec(alpha, &step)
	return step.RawVector().Data, nil
}

// relativeChange is |step| / |params|, or |step| when params is zero.
func relativeChange(step, params []float64) float64 {
	stepNorm := floats.Norm(step, 2)
	paramsNorm := floats.Norm(params, 2)
	if paramsNorm == 0 {
		return stepNorm
	}
	return stepNorm / paramsNorm
}
