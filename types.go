package surrogate

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"
)

//////
// Const, vars, types.
//////

// Number is any integer or floating point element type accepted as input.
// Inputs are cast to float64, the working precision.
type Number interface {
	constraints.Integer | constraints.Float
}

// Family identifies a regressor family.
type Family string

// Supported families.
const (
	GaussianProcess Family = "GaussianProcess"
	MeanPrediction  Family = "MeanPrediction"
	RandomForest    Family = "RandomForest"
	NGBoost         Family = "NGBoost"
	BayesianLinear  Family = "BayesianLinear"
)

// Families lists every supported family.
var Families = []Family{GaussianProcess, MeanPrediction, RandomForest, NGBoost, BayesianLinear}

// ParseFamily validates a family name.
func ParseFamily(name string) (Family, error) {
	for _, f := range Families {
		if string(f) == name {
			return f, nil
		}
	}

	return "", fmt.Errorf("%w: unknown surrogate family %q", ErrUnsupportedConfig, name)
}

// PosteriorMode tells whether a model produces full covariances over a batch
// or only per-point variances.
type PosteriorMode int

const (
	// PosteriorMarginal models predict each point independently, returning
	// a variance per point.
	PosteriorMarginal PosteriorMode = iota

	// PosteriorJoint models return a full (Q, Q) covariance per batch.
	PosteriorJoint
)

func (m PosteriorMode) String() string {
	if m == PosteriorJoint {
		return "joint"
	}

	return "marginal"
}

// Model is the contract every regressor and every wrapper around a
// regressor implements. Wrappers compose by holding another Model.
//
// Fit:
//   - x is (n, d) in the computational representation, y is (n, 1).
//   - Both are float64 copies owned by the callee.
//
// Posterior:
//   - candidates has shape (*T, Q, D), at least two dimensions.
//   - mean has shape (*T, Q).
//   - covar is (*T, Q, Q) for PosteriorJoint models and (*T, Q) variances
//     for PosteriorMarginal models.
type Model interface {
	// Family of the underlying regressor.
	Family() Family

	// PosteriorMode of the model.
	PosteriorMode() PosteriorMode

	// ModelParams the model was configured with.
	ModelParams() Params

	// Fit trains the model.
	Fit(space SearchSpace, x, y *mat.Dense) error

	// Posterior evaluates the predictive distribution at candidates.
	Posterior(candidates *Tensor) (mean, covar *Tensor, err error)
}

// Unwrapper is implemented by wrappers to expose the model they delegate to.
type Unwrapper interface {
	Unwrap() Model
}

// ProgressUpdate represents the current state of an optimization run.
type ProgressUpdate struct {
	// RunID identifies the run emitting the update.
	RunID string

	// Phase is "InitialSampling" or "Optimization".
	Phase string

	// CurrentIteration is the current iteration number.
	CurrentIteration int

	// TotalIterations is the total number of iterations of the phase.
	TotalIterations int

	// CurrentParams holds the parameter values just evaluated.
	CurrentParams []float64

	// CurrentBestParams holds the best parameters found so far.
	CurrentBestParams []float64

	// CurrentBestValue holds the best objective value found so far.
	CurrentBestValue float64

	// LastValue holds the objective value of the last evaluation.
	LastValue float64
}

// ParameterRange defines the valid range for one input dimension of the
// optimization problem.
//
// Type Parameter:
//   - T: The numeric type for this parameter range
//
// Fields:
// - Min: The minimum (inclusive) value
// - Max: The maximum (inclusive) value
//
// Usage:
//
//	temperature := ParameterRange[int]{Min: 20, Max: 120}
//	ratio := ParameterRange[float64]{Min: 0, Max: 1}
//
// Integer ranges form a discrete search space that every surrogate family
// supports. Float ranges form a continuous one that only the Gaussian process
// supports.
type ParameterRange[T Number] struct {
	Min T
	Max T
}

// ObjectiveFunc is the function being minimised. It returns the measured
// value for one parameter combination, or an error when the evaluation
// failed. Failed evaluations are recorded with a penalty value so the
// surrogate learns to avoid them.
type ObjectiveFunc[T Number] func(params ...T) (float64, error)

// Prediction is the marginal predictive distribution at one candidate.
type Prediction struct {
	Mean     float64
	Variance float64
}

// AcquisitionFunc scores a candidate from its predictive distribution.
// Lower values indicate more promising points.
//
// Built-in acquisition functions:
// - UCB: Confidence bound
// - ProbabilityOfImprovement: Probability of finding a better value
// - ExpectedImprovement: Expected magnitude of improvement
// - ThompsonSampling: Random sampling from the posterior
//
// Implementation notes for custom acquisition functions:
// - Zero variance must not produce NaN
// - Must return lower values for more promising points.
type AcquisitionFunc func(p Prediction, params AcquisitionParams) float64

// AcquisitionParams holds the parameters of the acquisition functions.
type AcquisitionParams struct {
	// Beta controls the exploration-exploitation trade-off of UCB.
	// Typical values range from 0.1 to 5.0.
	Beta float64

	// Xi is the minimum improvement over BestSoFar that PI and EI look for.
	// Typical values range from 0.01 to 0.1.
	Xi float64

	// BestSoFar is the lowest objective value observed so far. It is updated
	// by Optimize before every iteration.
	BestSoFar float64

	// RandomState is the random number generator used by Thompson Sampling.
	// Do not share it between concurrent runs.
	RandomState *rand.Rand
}

// OptimizationConfig holds the configuration of an optimization run.
//
// Default values recommendations:
// - Iterations: 30 (increase for more thorough optimization)
// - InitialSamples: 8 (increase for a more stable initial model)
// - NumCandidates: 64 (increase for a more thorough search per iteration)
//
// Note:
// - Create separate configs for parallel optimizations.
type OptimizationConfig struct {
	// Iterations is the number of model-guided evaluations after the initial
	// design.
	Iterations int

	// InitialSamples is the number of random evaluations used to seed the
	// surrogate.
	InitialSamples int

	// NumCandidates is the number of random candidates scored per iteration.
	NumCandidates int

	// Family of the surrogate model.
	Family Family

	// ModelParams for the surrogate family.
	ModelParams Params

	// AcquisitionFunc selects the next point. See AcquisitionFunc.
	AcquisitionFunc AcquisitionFunc

	// AcqParams holds the parameters for the acquisition function.
	AcqParams AcquisitionParams

	// ProgressChan receives progress updates. If nil, no updates are sent.
	// Updates are dropped when the channel is full.
	ProgressChan chan<- ProgressUpdate

	// Logger receives structured run logs. Defaults to a no-op logger.
	Logger *zap.Logger

	// Seed for candidate generation. Zero seeds from the clock.
	Seed int64
}
