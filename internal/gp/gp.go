// Package gp implements exact Gaussian process regression with a Matérn 5/2
// ARD kernel, a Gaussian likelihood and a constant mean. Hyperparameters are
// fitted by maximising the marginal log-likelihood plus Gamma log-priors.
package gp

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// noiseFloor is the lower bound of the likelihood noise.
const noiseFloor = 1e-4

// DefaultMaxIterations bounds the hyperparameter optimisation.
const DefaultMaxIterations = 100

// ErrNotPositiveDefinite is returned when the training covariance cannot be
// factorised.
var ErrNotPositiveDefinite = errors.New("gp: covariance matrix is not positive definite")

// Hyperparameters of the model, expressed in normalised input and
// standardised output units.
type Hyperparameters struct {
	Lengthscales []float64
	Outputscale  float64
	Noise        float64
	Mean         float64
}

// Config controls a fit.
type Config struct {
	// Lower and Upper bound every input dimension. Inputs are mapped to the
	// unit cube with them. When nil, the bounds of the training data are used.
	Lower, Upper []float64

	// Priors of the hyperparameters. See SelectPriors.
	Priors PriorConfig

	// MaxIterations bounds the optimiser. Zero means DefaultMaxIterations.
	MaxIterations int

	Logger *zap.Logger
}

// Model is a fitted Gaussian process.
type Model struct {
	x      *mat.Dense
	lower  []float64
	span   []float64
	yMean  float64
	yStd   float64
	hyper  Hyperparameters
	priors PriorConfig
	chol   mat.Cholesky
	alpha  *mat.VecDense
	logger *zap.Logger
}

// Fit trains a Gaussian process on x and y.
//
// How it works:
//   - Inputs are mapped to the unit cube with c.Lower and c.Upper, or with
//     the data range when bounds are not given
//   - Targets are standardised
//   - Log lengthscales, log outputscale, log excess noise and the constant
//     mean are tuned with Nelder-Mead on the negative log marginal
//     likelihood minus the log priors, for at most c.MaxIterations steps
//
// Parameters:
// - x: Training inputs, one row per observation
// - y: Training targets, len(y) == rows(x)
// - c: Bounds, priors, iteration limit and logger
//
// Returns:
// - The fitted model
// - ErrNotPositiveDefinite when the kernel matrix cannot be factorised
//
// Important notes:
//   - When the optimiser ends on a non-finite loss the initial
//     hyperparameters are kept and a warning is logged.
func Fit(x *mat.Dense, y []float64, c Config) (*Model, error) {
	n, d := x.Dims()
	if n == 0 || d == 0 {
		return nil, errors.New("gp: empty training data")
	}

	if len(y) != n {
		return nil, fmt.Errorf("gp: %d targets for %d rows", len(y), n)
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	maxIter := c.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	lower, span, err := inputTransform(x, c.Lower, c.Upper)
	if err != nil {
		return nil, err
	}

	m := &Model{
		lower:  lower,
		span:   span,
		priors: c.Priors,
		logger: logger,
	}

	m.x = m.normalize(x)

	m.yMean, m.yStd = stat.MeanStdDev(y, nil)
	if math.IsNaN(m.yStd) || m.yStd < 1e-8 {
		m.yStd = 1
	}

	ys := make([]float64, n)
	for i, v := range y {
		ys[i] = (v - m.yMean) / m.yStd
	}

	theta0 := m.pack(Hyperparameters{
		Lengthscales: filled(d, c.Priors.Lengthscale.Initial),
		Outputscale:  c.Priors.Outputscale.Initial,
		Noise:        c.Priors.Noise.Initial,
	})

	objective := func(theta []float64) float64 {
		loss := m.loss(m.unpack(theta), ys)
		if math.IsNaN(loss) {
			return math.Inf(1)
		}

		return loss
	}

	result, err := optimize.Minimize(
		optimize.Problem{Func: objective},
		theta0,
		&optimize.Settings{MajorIterations: maxIter},
		&optimize.NelderMead{},
	)

	theta := theta0
	if result != nil && !math.IsInf(result.F, 0) && !math.IsNaN(result.F) {
		theta = result.X
	}

	if err != nil {
		logger.Warn("hyperparameter optimisation did not converge cleanly", zap.Error(err))
	}

	m.hyper = m.unpack(theta)

	if err := m.factorize(ys); err != nil {
		return nil, err
	}

	logger.Debug("gaussian process fitted",
		zap.String("regime", string(c.Priors.Regime)),
		zap.Float64s("lengthscales", m.hyper.Lengthscales),
		zap.Float64("outputscale", m.hyper.Outputscale),
		zap.Float64("noise", m.hyper.Noise),
	)

	return m, nil
}

// Predict returns the posterior mean and latent covariance at the rows of x,
// in the original output units.
func (m *Model) Predict(x *mat.Dense) ([]float64, *mat.SymDense, error) {
	q, d := x.Dims()
	if _, want := m.x.Dims(); d != want {
		return nil, nil, fmt.Errorf("gp: predicting with %d features, trained with %d", d, want)
	}

	xt := m.normalize(x)
	kStar := cross(xt, m.x, m.hyper)

	meanVec := mat.NewVecDense(q, nil)
	meanVec.MulVec(kStar, m.alpha)

	mean := make([]float64, q)
	for i := range mean {
		mean[i] = m.yMean + m.yStd*(m.hyper.Mean+meanVec.AtVec(i))
	}

	var solved mat.Dense
	if err := m.chol.SolveTo(&solved, kStar.T()); err != nil {
		return nil, nil, fmt.Errorf("gp: solving predictive covariance: %w", err)
	}

	var reduction mat.Dense
	reduction.Mul(kStar, &solved)

	prior := gram(xt, m.hyper)
	scale := m.yStd * m.yStd
	cov := mat.NewSymDense(q, nil)

	for i := 0; i < q; i++ {
		for j := i; j < q; j++ {
			v := prior.At(i, j) - 0.5*(reduction.At(i, j)+reduction.At(j, i))
			cov.SetSym(i, j, scale*v)
		}

		if cov.At(i, i) < 0 {
			m.logger.Warn("negative predictive variance clamped", zap.Float64("variance", cov.At(i, i)))
			cov.SetSym(i, i, 0)
		}
	}

	return mean, cov, nil
}

// Hyperparameters returns a copy of the fitted hyperparameters.
func (m *Model) Hyperparameters() Hyperparameters {
	h := m.hyper
	h.Lengthscales = append([]float64(nil), m.hyper.Lengthscales...)

	return h
}

// Priors returns the prior configuration the model was fitted with.
func (m *Model) Priors() PriorConfig {
	return m.priors
}

// loss is the negative log marginal likelihood minus the log prior density,
// per training point.
func (m *Model) loss(h Hyperparameters, ys []float64) float64 {
	n := len(ys)

	k := gram(m.x, h)
	for i := 0; i < n; i++ {
		k.SetSym(i, i, k.At(i, i)+h.Noise)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(k); !ok {
		return math.Inf(1)
	}

	r := residuals(ys, h.Mean)

	var alpha mat.VecDense
	if err := chol.SolveVecTo(&alpha, r); err != nil {
		return math.Inf(1)
	}

	nll := 0.5*mat.Dot(r, &alpha) + 0.5*chol.LogDet() + 0.5*float64(n)*math.Log(2*math.Pi)

	logPrior := m.priors.Outputscale.Prior.LogProb(h.Outputscale) +
		m.priors.Noise.Prior.LogProb(h.Noise)
	for _, l := range h.Lengthscales {
		logPrior += m.priors.Lengthscale.Prior.LogProb(l)
	}

	return (nll - logPrior) / float64(n)
}

func (m *Model) factorize(ys []float64) error {
	n := len(ys)

	k := gram(m.x, m.hyper)
	for i := 0; i < n; i++ {
		k.SetSym(i, i, k.At(i, i)+m.hyper.Noise)
	}

	if ok := m.chol.Factorize(k); !ok {
		return ErrNotPositiveDefinite
	}

	m.alpha = mat.NewVecDense(n, nil)

	return m.chol.SolveVecTo(m.alpha, residuals(ys, m.hyper.Mean))
}

// pack maps hyperparameters to the unconstrained optimisation vector
// [log l_1..log l_d, log outputscale, log(noise - floor), mean].
func (m *Model) pack(h Hyperparameters) []float64 {
	theta := make([]float64, 0, len(h.Lengthscales)+3)
	for _, l := range h.Lengthscales {
		theta = append(theta, math.Log(l))
	}

	return append(theta,
		math.Log(h.Outputscale),
		math.Log(math.Max(h.Noise-noiseFloor, 1e-12)),
		h.Mean,
	)
}

func (m *Model) unpack(theta []float64) Hyperparameters {
	d := len(theta) - 3
	h := Hyperparameters{Lengthscales: make([]float64, d)}

	for i := 0; i < d; i++ {
		h.Lengthscales[i] = math.Exp(theta[i])
	}

	h.Outputscale = math.Exp(theta[d])
	h.Noise = noiseFloor + math.Exp(theta[d+1])
	h.Mean = theta[d+2]

	return h
}

func (m *Model) normalize(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)

	out.Apply(func(_, j int, v float64) float64 {
		return (v - m.lower[j]) / m.span[j]
	}, x)

	return out
}

// inputTransform returns the offset and span mapping inputs to the unit cube.
// A zero span is replaced by one.
func inputTransform(x *mat.Dense, lower, upper []float64) ([]float64, []float64, error) {
	n, d := x.Dims()

	if lower == nil && upper == nil {
		lower, upper = make([]float64, d), make([]float64, d)
		for j := 0; j < d; j++ {
			col := mat.Col(nil, j, x)
			lower[j], upper[j] = col[0], col[0]

			for i := 1; i < n; i++ {
				lower[j] = math.Min(lower[j], col[i])
				upper[j] = math.Max(upper[j], col[i])
			}
		}
	}

	if len(lower) != d || len(upper) != d {
		return nil, nil, fmt.Errorf("gp: bounds have %d/%d entries for %d features", len(lower), len(upper), d)
	}

	span := make([]float64, d)
	for j := range span {
		span[j] = upper[j] - lower[j]
		if span[j] == 0 {
			span[j] = 1
		}
	}

	return append([]float64(nil), lower...), span, nil
}

func residuals(ys []float64, mean float64) *mat.VecDense {
	r := mat.NewVecDense(len(ys), nil)
	for i, v := range ys {
		r.SetVec(i, v-mean)
	}

	return r
}

func filled(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}

	return s
}
