package surrogate

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

//////
// Options.
//////

type options struct {
	logger  *zap.Logger
	workers int
}

// Option configures a Surrogate and the models it composes.
type Option func(*options)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWorkers bounds the goroutines used for joint posterior batches and for
// model fitting where the engine supports it. Values below two keep the
// work on the calling goroutine.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), workers: 1}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

//////
// Facade.
//////

// Surrogate is the entry point of the package. It validates inputs, delegates
// to a composed Model and normalises posterior outputs so that every family
// returns full covariances with a strictly positive diagonal.
//
// Composition by family:
//   - GaussianProcess: constant-target guard around the Gaussian process.
//   - MeanPrediction: the bare mean predictor.
//   - RandomForest, NGBoost, BayesianLinear: constant-target guard around
//     the scaling adapter around the regressor.
//
// Thread safety:
//   - Fit takes the write lock, Posterior the read lock.
//   - Concurrent Posterior calls on a fitted surrogate are safe.
type Surrogate struct {
	mu sync.RWMutex

	family   Family
	params   Params
	model    Model
	fitted   bool
	features int

	logger *zap.Logger
	opts   []Option
}

// New validates params for family and composes the model stack. Params are
// checked here, before any data is seen.
func New(family Family, params Params, opts ...Option) (*Surrogate, error) {
	model, err := build(family, params, opts)
	if err != nil {
		return nil, err
	}

	o := newOptions(opts)

	return &Surrogate{
		family: family,
		params: model.ModelParams(),
		model:  model,
		logger: o.logger.Named("surrogate"),
		opts:   opts,
	}, nil
}

// NewFromModel wraps a custom model. The model is used as is, no scaling or
// guard is added.
func NewFromModel(m Model, opts ...Option) *Surrogate {
	o := newOptions(opts)

	return &Surrogate{
		family: m.Family(),
		params: m.ModelParams(),
		model:  m,
		logger: o.logger.Named("surrogate"),
		opts:   opts,
	}
}

func build(family Family, params Params, opts []Option) (Model, error) {
	switch family {
	case GaussianProcess:
		m, err := NewGaussianProcess(params, opts...)
		if err != nil {
			return nil, err
		}

		return CatchConstantTargets(m, opts...), nil
	case MeanPrediction:
		if err := rejectParams(MeanPrediction, params); err != nil {
			return nil, err
		}

		return NewMeanPrediction(), nil
	case RandomForest:
		m, err := NewRandomForest(params, opts...)
		if err != nil {
			return nil, err
		}

		return CatchConstantTargets(Scale(m), opts...), nil
	case NGBoost:
		m, err := NewNGBoost(params, opts...)
		if err != nil {
			return nil, err
		}

		return CatchConstantTargets(Scale(m), opts...), nil
	case BayesianLinear:
		m, err := NewBayesianLinear(params)
		if err != nil {
			return nil, err
		}

		return CatchConstantTargets(Scale(m), opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown surrogate family %q", ErrUnsupportedConfig, family)
	}
}

// Fit trains the surrogate on x, of shape (n, d) in the computational
// representation of space, and y, of shape (n, 1).
//
// Errors:
//   - ErrInvalidInput for empty x, or x and y with different row counts.
//   - *ShapeError for y with more than one column.
//   - ErrUnsupportedConfig when space has a continuous component and the
//     family is not GaussianProcess.
//   - Errors of the underlying model, wrapped.
func (s *Surrogate) Fit(space SearchSpace, x, y mat.Matrix) error {
	xd, err := prepareInputs(x)
	if err != nil {
		return err
	}

	n, d := xd.Dims()

	yd, err := prepareTargets(y, n)
	if err != nil {
		return err
	}

	if space == nil {
		return fmt.Errorf("%w: nil search space", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.model == nil {
		return fmt.Errorf("%w: surrogate has no model", ErrUnsupportedConfig)
	}

	if space.HasContinuous() && s.family != GaussianProcess {
		return fmt.Errorf("%w: %s does not support continuous search spaces", ErrUnsupportedConfig, s.family)
	}

	if err := s.model.Fit(space, xd, yd); err != nil {
		return fmt.Errorf("fitting %s surrogate: %w", s.family, err)
	}

	s.fitted = true
	s.features = d

	s.logger.Debug("surrogate fitted",
		zap.String("family", string(s.family)),
		zap.Int("observations", n),
		zap.String("active", string(innermost(s.model).Family())),
	)

	return nil
}

// Posterior evaluates the predictive distribution at candidates of shape
// (*T, Q, D). It returns the mean of shape (*T, Q) and the covariance of
// shape (*T, Q, Q), whatever the posterior mode of the model. Marginal
// models yield diagonal covariances. 1e-6 is added to every diagonal entry.
//
// Errors:
//   - ErrInvalidInput for nil candidates.
//   - *ShapeError for candidates with fewer than two dimensions, or whose
//     last dimension differs from the number of features seen by Fit.
//   - ErrNotFitted before a successful Fit.
func (s *Surrogate) Posterior(candidates *Tensor) (mean, covar *Tensor, err error) {
	if candidates.empty() {
		return nil, nil, fmt.Errorf("%w: empty candidates", ErrInvalidInput)
	}

	shape := candidates.Shape()
	if len(shape) < 2 {
		return nil, nil, &ShapeError{Op: "posterior", Shape: shape, Want: "(*T, Q, D)"}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.fitted {
		return nil, nil, ErrNotFitted
	}

	if shape[len(shape)-1] != s.features {
		return nil, nil, &ShapeError{Op: "posterior", Shape: shape, Want: fmt.Sprintf("(*T, Q, %d)", s.features)}
	}

	mean, covar, err = s.model.Posterior(candidates.Clone())
	if err != nil {
		return nil, nil, err
	}

	if s.model.PosteriorMode() == PosteriorMarginal {
		if covar, err = diagEmbed(covar); err != nil {
			return nil, nil, err
		}
	}

	if err := addDiagonal(covar, minVariance); err != nil {
		return nil, nil, err
	}

	return mean, covar, nil
}

// JointPosterior reports whether the model produces joint covariances.
func (s *Surrogate) JointPosterior() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.model != nil && s.model.PosteriorMode() == PosteriorJoint
}

// Family returns the configured family.
func (s *Surrogate) Family() Family {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.family
}

// ModelParams returns a copy of the configured model params.
func (s *Surrogate) ModelParams() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.params.Clone()
}

// Fitted reports whether Fit succeeded at least once.
func (s *Surrogate) Fitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.fitted
}

// Model returns the composed model stack.
func (s *Surrogate) Model() Model {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.model
}

// Active returns the innermost model currently answering posterior queries.
// After a fit on constant targets this is the mean predictor.
func (s *Surrogate) Active() Model {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.model == nil {
		return nil
	}

	return innermost(s.model)
}

func innermost(m Model) Model {
	for {
		u, ok := m.(Unwrapper)
		if !ok {
			return m
		}

		inner := u.Unwrap()
		if inner == nil {
			return m
		}

		m = inner
	}
}

//////
// Input validation.
//////

// prepareInputs checks x is non-empty and returns a float64 copy.
func prepareInputs(x mat.Matrix) (*mat.Dense, error) {
	if isNilMatrix(x) {
		return nil, fmt.Errorf("%w: nil inputs", ErrInvalidInput)
	}

	r, c := x.Dims()
	if r == 0 || c == 0 {
		return nil, fmt.Errorf("%w: empty inputs of shape (%d, %d)", ErrInvalidInput, r, c)
	}

	return mat.DenseCopyOf(x), nil
}

// prepareTargets checks y is a single column of n rows and returns a copy.
func prepareTargets(y mat.Matrix, n int) (*mat.Dense, error) {
	if isNilMatrix(y) {
		return nil, fmt.Errorf("%w: nil targets", ErrInvalidInput)
	}

	r, c := y.Dims()
	if c != 1 {
		return nil, &ShapeError{Op: "fit", Shape: []int{r, c}, Want: "a single target column (n, 1)"}
	}

	if r != n {
		return nil, fmt.Errorf("%w: %d targets for %d inputs", ErrInvalidInput, r, n)
	}

	return mat.DenseCopyOf(y), nil
}

func isNilMatrix(m mat.Matrix) bool {
	if m == nil {
		return true
	}

	d, ok := m.(*mat.Dense)

	return ok && d == nil
}
