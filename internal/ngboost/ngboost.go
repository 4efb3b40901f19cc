// Package ngboost implements natural gradient boosting for a Normal
// predictive distribution parameterised as (mu, log sigma) and scored with
// the negative log-likelihood.
package ngboost

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/thalesfsp/surrogate/internal/cart"
)

// Config holds the boosting hyperparameters.
type Config struct {
	NEstimators     int     `param:"n_estimators"`
	LearningRate    float64 `param:"learning_rate"`
	MinibatchFrac   float64 `param:"minibatch_frac"`
	ColSample       float64 `param:"col_sample"`
	NaturalGradient bool    `param:"natural_gradient"`
	Tol             float64 `param:"tol"`
	MaxDepth        int     `param:"max_depth"`
	RandomState     *int64  `param:"random_state"`
	Verbose         bool    `param:"verbose"`
	VerboseEval     int     `param:"verbose_eval"`

	// Logger receives progress lines when Verbose is set.
	Logger *zap.Logger `param:"-"`
}

// DefaultConfig returns the usual NGBoost defaults with depth-3 trees.
func DefaultConfig() Config {
	return Config{
		NEstimators:     500,
		LearningRate:    0.01,
		MinibatchFrac:   1.0,
		ColSample:       1.0,
		NaturalGradient: true,
		Tol:             1e-4,
		MaxDepth:        3,
		VerboseEval:     100,
	}
}

// Validate checks the ranges of the hyperparameters.
func (c Config) Validate() error {
	switch {
	case c.NEstimators < 1:
		return fmt.Errorf("ngboost: n_estimators must be >= 1, got %d", c.NEstimators)
	case !(c.LearningRate > 0):
		return fmt.Errorf("ngboost: learning_rate must be > 0, got %v", c.LearningRate)
	case !(c.MinibatchFrac > 0 && c.MinibatchFrac <= 1):
		return fmt.Errorf("ngboost: minibatch_frac must be in (0, 1], got %v", c.MinibatchFrac)
	case !(c.ColSample > 0 && c.ColSample <= 1):
		return fmt.Errorf("ngboost: col_sample must be in (0, 1], got %v", c.ColSample)
	case c.Tol < 0:
		return fmt.Errorf("ngboost: tol must be >= 0, got %v", c.Tol)
	case c.MaxDepth < 0:
		return fmt.Errorf("ngboost: max_depth must be >= 0, got %d", c.MaxDepth)
	}

	return nil
}

// stage is one boosting step: a base learner per distribution parameter
// and the step size found by the line search.
type stage struct {
	learners [2]*cart.Tree
	scale    float64
}

// Model is a fitted boosted Normal distribution.
type Model struct {
	init   [2]float64
	stages []stage
	lr     float64
}

// Fit boosts the Normal parameters against y.
//
// How it works:
// 1. Starts every row at the marginal maximum-likelihood Normal (mu, log sigma)
// 2. For each of c.NEstimators stages:
//   - Samples rows (MinibatchFrac) and columns (ColSample)
//   - Computes the (natural) gradient of the log score per row
//   - Fits one depth-limited tree per parameter to the negative gradient
//   - Scales the step with a line search and c.LearningRate
//
// 3. Stops early when the step norm falls below c.Tol
//
// Returns:
// - The fitted model
// - An error when the targets have no spread or x and y do not match
func Fit(x mat.Matrix, y []float64, c Config) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	n, cols := x.Dims()
	if n == 0 || n != len(y) {
		return nil, errors.New("ngboost: x and y must be non-empty and of equal length")
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	seed := time.Now().UnixNano()
	if c.RandomState != nil {
		seed = *c.RandomState
	}

	rng := rand.New(rand.NewSource(seed))

	// Marginal maximum likelihood fit of the Normal as the starting point.
	mu, sd := stat.PopMeanStdDev(y, nil)
	if !(sd > 0) {
		return nil, errors.New("ngboost: targets have no spread")
	}

	m := &Model{init: [2]float64{mu, math.Log(sd)}, lr: c.LearningRate}

	params := make([][2]float64, n)
	for i := range params {
		params[i] = m.init
	}

	treeCfg := cart.Config{MaxDepth: c.MaxDepth}
	grads := [2][]float64{make([]float64, n), make([]float64, n)}
	resids := make([][2]float64, n)

	for iter := 0; iter < c.NEstimators; iter++ {
		rows := sampleRows(rng, n, c.MinibatchFrac)
		treeCfg.Features = sampleCols(rng, cols, c.ColSample)

		for _, i := range rows {
			g := gradient(params[i], y[i], c.NaturalGradient)
			grads[0][i], grads[1][i] = g[0], g[1]
		}

		var st stage
		for k := range st.learners {
			tree, err := cart.Fit(x, grads[k], rows, treeCfg, nil)
			if err != nil {
				return nil, fmt.Errorf("ngboost: fitting base learner: %w", err)
			}

			st.learners[k] = tree
		}

		row := make([]float64, cols)
		for i := range resids {
			mat.Row(row, i, x)
			resids[i] = [2]float64{st.learners[0].Predict(row), st.learners[1].Predict(row)}
		}

		var norm float64
		st.scale, norm = lineSearch(params, resids, y, rows, c.Tol)

		m.stages = append(m.stages, st)

		step := m.lr * st.scale
		for i := range params {
			params[i][0] -= step * resids[i][0]
			params[i][1] -= step * resids[i][1]
		}

		if c.Verbose && c.VerboseEval > 0 && iter%c.VerboseEval == 0 {
			logger.Info("boosting iteration",
				zap.Int("iteration", iter),
				zap.Float64("loss", totalScore(params, y, nil)),
				zap.Float64("norm", norm),
			)
		}

		if norm < c.Tol {
			logger.Debug("gradient norm below tolerance, stopping", zap.Int("iteration", iter))

			break
		}
	}

	return m, nil
}

// Predict returns the predictive mean and variance for every row of x.
func (m *Model) Predict(x mat.Matrix) (mean, variance []float64) {
	r, c := x.Dims()
	mean = make([]float64, r)
	variance = make([]float64, r)
	row := make([]float64, c)

	for i := 0; i < r; i++ {
		mat.Row(row, i, x)

		p := m.init
		for _, st := range m.stages {
			step := m.lr * st.scale
			p[0] -= step * st.learners[0].Predict(row)
			p[1] -= step * st.learners[1].Predict(row)
		}

		mean[i] = p[0]
		variance[i] = math.Exp(2 * p[1])
	}

	return mean, variance
}

// Stages returns the number of boosting stages kept.
func (m *Model) Stages() int {
	return len(m.stages)
}

// gradient of the negative log-likelihood w.r.t. (mu, log sigma). The
// natural gradient premultiplies by the inverse Fisher information
// diag(sigma^-2, 2)^-1.
func gradient(p [2]float64, y float64, natural bool) [2]float64 {
	v := math.Exp(2 * p[1])
	diff := p[0] - y

	g := [2]float64{diff / v, 1 - diff*diff/v}
	if natural {
		g[0] *= v
		g[1] /= 2
	}

	return g
}

func nll(p [2]float64, y float64) float64 {
	diff := y - p[0]

	return p[1] + 0.5*math.Log(2*math.Pi) + diff*diff/(2*math.Exp(2*p[1]))
}

// totalScore is the mean negative log-likelihood over rows (all rows when
// nil) after stepping the parameters by -scale*resids.
func totalScore(params [][2]float64, y []float64, rows []int) float64 {
	return scoreAt(params, nil, 0, y, rows)
}

func scoreAt(params, resids [][2]float64, scale float64, y []float64, rows []int) float64 {
	var sum float64

	count := 0
	each(len(params), rows, func(i int) {
		p := params[i]
		if resids != nil {
			p[0] -= scale * resids[i][0]
			p[1] -= scale * resids[i][1]
		}

		sum += nll(p, y[i])
		count++
	})

	return sum / float64(count)
}

// lineSearch first doubles the step while the loss keeps improving, then
// halves it until the step improves the loss (or is negligibly small). It
// returns the scale and the mean norm of the scaled step.
func lineSearch(params, resids [][2]float64, y []float64, rows []int, tol float64) (scale, norm float64) {
	initial := scoreAt(params, nil, 0, y, rows)
	scale = 1

	for {
		loss := scoreAt(params, resids, scale, y, rows)
		if math.IsNaN(loss) || math.IsInf(loss, 0) || loss > initial || scale > 256 {
			break
		}

		scale *= 2
	}

	for {
		loss := scoreAt(params, resids, scale, y, rows)
		norm = meanNorm(resids, scale, rows)

		finite := !math.IsNaN(loss) && !math.IsInf(loss, 0)
		if finite && (loss < initial || norm <= tol) && norm < 5 {
			return scale, norm
		}

		scale /= 2
	}
}

func meanNorm(resids [][2]float64, scale float64, rows []int) float64 {
	var sum float64

	count := 0
	each(len(resids), rows, func(i int) {
		sum += scale * math.Hypot(resids[i][0], resids[i][1])
		count++
	})

	return sum / float64(count)
}

func each(n int, rows []int, fn func(i int)) {
	if rows == nil {
		for i := 0; i < n; i++ {
			fn(i)
		}

		return
	}

	for _, i := range rows {
		fn(i)
	}
}

func sampleRows(rng *rand.Rand, n int, frac float64) []int {
	if frac >= 1 {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}

		return rows
	}

	k := max(1, int(frac*float64(n)))

	return rng.Perm(n)[:k]
}

func sampleCols(rng *rand.Rand, cols int, frac float64) []int {
	if frac >= 1 {
		return nil
	}

	k := max(1, int(frac*float64(cols)))

	return rng.Perm(cols)[:k]
}
