package surrogate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

//////
// Exported functionalities.
//////

// DefaultConfig returns a default optimization configuration using a
// Gaussian process surrogate and UCB.
func DefaultConfig() OptimizationConfig {
	return OptimizationConfig{
		Iterations:      30,
		InitialSamples:  8,
		NumCandidates:   64,
		Family:          GaussianProcess,
		AcquisitionFunc: UCB,
		AcqParams: AcquisitionParams{
			BestSoFar:   math.MaxFloat64,
			Beta:        2.0,
			RandomState: rand.New(rand.NewSource(time.Now().UnixNano())),
			Xi:          0.01,
		},
	}
}

// Optimize minimises objective over the box given by ranges with Bayesian
// optimization, and returns the best parameters found.
//
// Type Parameter:
//   - T: The numeric type of the parameters
//
// How it works:
// 1. Evaluates InitialSamples random points
// 2. For each iteration:
//   - Fits the configured surrogate to every observation so far
//   - Scores NumCandidates random candidates, as a (NumCandidates, 1, D)
//     batch, with AcquisitionFunc
//   - Evaluates the candidate with the lowest score
//
// 3. Returns the best parameters found
//
// Integer ranges form a discrete search space and work with every family.
// Float ranges form a continuous search space, which only GaussianProcess
// supports; other families fail with ErrUnsupportedConfig.
//
// Failed evaluations are recorded with a penalty above the worst value seen,
// so the surrogate learns to avoid them.
//
// The context is checked before every evaluation. On cancellation the best
// parameters so far are returned with the context error.
//
// Usage example:
//
//	best, err := Optimize(ctx, DefaultConfig(),
//	    func(params ...float64) (float64, error) {
//	        return loss(params[0], params[1]), nil
//	    },
//	    ParameterRange[float64]{Min: 0, Max: 1},
//	    ParameterRange[float64]{Min: -5, Max: 5},
//	)
func Optimize[T Number](
	ctx context.Context,
	config OptimizationConfig,
	objective ObjectiveFunc[T],
	ranges ...ParameterRange[T],
) ([]T, error) {
	if err := validateRun(config, ranges); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	runID := uuid.NewString()
	logger = logger.Named("optimize").With(zap.String("run_id", runID))

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))

	if config.AcqParams.RandomState == nil {
		config.AcqParams.RandomState = rand.New(rand.NewSource(seed + 1))
	}

	s, err := New(config.Family, config.ModelParams, WithLogger(logger))
	if err != nil {
		return nil, err
	}

	space := rangeSpace(ranges)
	d := len(ranges)

	r := &run[T]{
		id:       runID,
		config:   config,
		best:     make([]T, d),
		bestVal:  math.MaxFloat64,
		worstVal: -math.MaxFloat64,
	}

	// Phase 1: Initial random sampling.
	for i := 0; i < config.InitialSamples; i++ {
		if err := ctx.Err(); err != nil {
			return r.result(), err
		}

		params := randomParams(rng, ranges)
		value, ok := evaluate(objective, params)
		r.observe(params, value, ok)
		r.progress("InitialSampling", i+1, config.InitialSamples, params)
	}

	logger.Debug("initial design evaluated",
		zap.Int("samples", config.InitialSamples),
		zap.Float64("best", r.bestVal),
	)

	// Phase 2: Bayesian optimization loop.
	for i := 0; i < config.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return r.result(), err
		}

		x := mat.NewDense(len(r.y), d, r.x)
		y := mat.NewDense(len(r.y), 1, r.targets())

		if err := s.Fit(space, x, y); err != nil {
			return r.result(), fmt.Errorf("iteration %d: %w", i+1, err)
		}

		candidates := make([][]T, config.NumCandidates)
		flat := make([]float64, 0, config.NumCandidates*d)

		for j := range candidates {
			candidates[j] = randomParams(rng, ranges)
			flat = append(flat, paramsToFloat64s(candidates[j])...)
		}

		batch := wrap(flat, config.NumCandidates, 1, d)

		config.AcqParams.BestSoFar = r.bestVal

		scores, err := score(s, batch, config.AcquisitionFunc, config.AcqParams)
		if err != nil {
			return r.result(), fmt.Errorf("iteration %d: %w", i+1, err)
		}

		next := candidates[argmin(scores)]
		value, ok := evaluate(objective, next)
		r.observe(next, value, ok)
		r.progress("Optimization", i+1, config.Iterations, next)

		logger.Debug("iteration evaluated",
			zap.Int("iteration", i+1),
			zap.String("active", string(s.Active().Family())),
			zap.Bool("failed", r.failed[len(r.failed)-1]),
			zap.Float64("best", r.bestVal),
		)
	}

	logger.Info("optimization finished",
		zap.Int("evaluations", len(r.y)),
		zap.Float64("best", r.bestVal),
	)

	return r.result(), nil
}

// Recommend scores the rows of candidates with acq and returns the indices
// of the k most promising ones, best first.
func Recommend(s *Surrogate, candidates mat.Matrix, k int, acq AcquisitionFunc, params AcquisitionParams) ([]int, error) {
	c, err := prepareInputs(candidates)
	if err != nil {
		return nil, err
	}

	n, d := c.Dims()
	if k < 1 || k > n {
		return nil, fmt.Errorf("%w: cannot recommend %d of %d candidates", ErrInvalidInput, k, n)
	}

	scores, err := score(s, wrap(c.RawMatrix().Data, n, 1, d), acq, params)
	if err != nil {
		return nil, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	return idx[:k], nil
}

//////
// Run state.
//////

type run[T Number] struct {
	id       string
	config   OptimizationConfig
	x        []float64
	y        []float64
	failed   []bool
	best     []T
	bestVal  float64
	worstVal float64
	hasBest  bool
}

// observe records one evaluation. Failed evaluations only stand in for the
// best parameters until the first success.
func (r *run[T]) observe(params []T, value float64, ok bool) {
	r.x = append(r.x, paramsToFloat64s(params)...)
	r.y = append(r.y, value)
	r.failed = append(r.failed, !ok)

	if !ok {
		if !r.hasBest && len(r.y) == 1 {
			copy(r.best, params)
		}

		return
	}

	if !r.hasBest || value < r.bestVal {
		r.bestVal = value
		r.hasBest = true
		copy(r.best, params)
	}

	r.worstVal = math.Max(r.worstVal, value)
}

// penalty is the value recorded for failed evaluations: above the worst
// successful value by at least the observed range.
func (r *run[T]) penalty() float64 {
	if !r.hasBest {
		return 1
	}

	return r.worstVal + math.Max(r.worstVal-r.bestVal, 1)
}

// targets returns the observations with failures replaced by the current
// penalty.
func (r *run[T]) targets() []float64 {
	y := make([]float64, len(r.y))
	penalty := r.penalty()

	for i, v := range r.y {
		if r.failed[i] {
			v = penalty
		}

		y[i] = v
	}

	return y
}

func (r *run[T]) result() []T {
	return append([]T(nil), r.best...)
}

func (r *run[T]) progress(phase string, iteration, total int, params []T) {
	if r.config.ProgressChan == nil {
		return
	}

	update := ProgressUpdate{
		RunID:             r.id,
		Phase:             phase,
		CurrentIteration:  iteration,
		TotalIterations:   total,
		CurrentParams:     paramsToFloat64s(params),
		CurrentBestParams: paramsToFloat64s(r.best),
		CurrentBestValue:  r.bestVal,
		LastValue:         r.targets()[len(r.y)-1],
	}

	select {
	case r.config.ProgressChan <- update:
	default:
		// Skip update if channel is full.
	}
}

//////
// Helpers.
//////

func validateRun[T Number](config OptimizationConfig, ranges []ParameterRange[T]) error {
	switch {
	case len(ranges) == 0:
		return fmt.Errorf("%w: no parameter ranges", ErrInvalidInput)
	case config.InitialSamples < 1:
		return fmt.Errorf("%w: at least one initial sample is required", ErrInvalidInput)
	case config.Iterations > 0 && config.NumCandidates < 1:
		return fmt.Errorf("%w: at least one candidate per iteration is required", ErrInvalidInput)
	case config.Iterations > 0 && config.AcquisitionFunc == nil:
		return errors.New("surrogate: nil acquisition function")
	}

	for i, r := range ranges {
		if r.Min > r.Max {
			return fmt.Errorf("%w: range %d has min %v above max %v", ErrInvalidInput, i, r.Min, r.Max)
		}
	}

	return nil
}

// evaluate calls the objective. Errors and non-finite values are failures.
func evaluate[T Number](objective ObjectiveFunc[T], params []T) (float64, bool) {
	value, err := objective(params...)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}

	return value, true
}

func score(s *Surrogate, candidates *Tensor, acq AcquisitionFunc, params AcquisitionParams) ([]float64, error) {
	mean, covar, err := s.Posterior(candidates)
	if err != nil {
		return nil, err
	}

	// With Q = 1 the (N, 1) mean and (N, 1, 1) covariance are flat slices of
	// length N.
	means, variances := mean.values(), covar.values()

	scores := make([]float64, len(means))
	for i := range scores {
		scores[i] = acq(Prediction{Mean: means[i], Variance: variances[i]}, params)
	}

	return scores, nil
}

func argmin(values []float64) int {
	best := 0
	for i, v := range values {
		if v < values[best] {
			best = i
		}
	}

	return best
}

func isInteger[T Number]() bool {
	var zero T

	switch any(zero).(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, uintptr:
		return true
	default:
		return false
	}
}

func randomParams[T Number](rng *rand.Rand, ranges []ParameterRange[T]) []T {
	params := make([]T, len(ranges))

	for i, r := range ranges {
		if isInteger[T]() {
			lo, hi := int64(r.Min), int64(r.Max)
			params[i] = T(lo + rng.Int63n(hi-lo+1))

			continue
		}

		lo, hi := float64(r.Min), float64(r.Max)
		params[i] = T(lo + rng.Float64()*(hi-lo))
	}

	return params
}

// rangeSpace is the search space spanned by ranges. Integer ranges are
// discrete, float ranges continuous.
func rangeSpace[T Number](ranges []ParameterRange[T]) *Space {
	s := &Space{
		Lower:      make([]float64, len(ranges)),
		Upper:      make([]float64, len(ranges)),
		Continuous: !isInteger[T](),
	}

	for i, r := range ranges {
		s.Lower[i], s.Upper[i] = float64(r.Min), float64(r.Max)
	}

	return s
}
