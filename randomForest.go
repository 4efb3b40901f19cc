package surrogate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/thalesfsp/surrogate/internal/forest"
)

// RandomForestModel is a bagged ensemble of regression trees. The posterior
// at a point is the mean and the unbiased variance of the per-tree
// predictions.
//
// Accepted params: n_estimators, max_depth, min_samples_split,
// min_samples_leaf, max_features, bootstrap, random_state, n_jobs.
type RandomForestModel struct {
	params Params
	config forest.Config
	forest *forest.Forest
}

// NewRandomForest validates params and returns an unfitted forest.
//
// Parameters:
//   - params: Any of n_estimators, max_depth, min_samples_split,
//     min_samples_leaf, max_features, bootstrap, random_state, n_jobs
//   - opts: WithWorkers sets n_jobs when params do not
//
// Returns:
//   - *ParamError for unknown keys, listed in sorted order
//   - ErrUnsupportedConfig for ill-typed or out-of-range values
//
// Important notes:
//   - max_features up to 1 is a fraction of the features, above 1 a count
//   - The posterior variance is the unbiased variance of the per-tree
//     predictions, so a single tree always reports zero variance.
//
// Usage example:
//
//	rf, err := NewRandomForest(Params{"n_estimators": 100, "random_state": 7})
func NewRandomForest(params Params, opts ...Option) (*RandomForestModel, error) {
	o := newOptions(opts)

	c := forest.DefaultConfig()
	c.NJobs = o.workers

	if err := decodeParams(RandomForest, params, &c); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedConfig, err)
	}

	return &RandomForestModel{params: nonNil(params), config: c}, nil
}

// Family implements Model.
func (r *RandomForestModel) Family() Family { return RandomForest }

// PosteriorMode implements Model.
func (r *RandomForestModel) PosteriorMode() PosteriorMode { return PosteriorMarginal }

// ModelParams implements Model.
func (r *RandomForestModel) ModelParams() Params { return r.params.Clone() }

// NumTrees returns the number of fitted trees.
func (r *RandomForestModel) NumTrees() int {
	if r.forest == nil {
		return 0
	}

	return r.forest.Len()
}

// Fit implements Model.
func (r *RandomForestModel) Fit(_ SearchSpace, x, y *mat.Dense) error {
	f, err := forest.Fit(x, column(y), r.config)
	if err != nil {
		return err
	}

	r.forest = f

	return nil
}

// Posterior implements Model.
func (r *RandomForestModel) Posterior(candidates *Tensor) (*Tensor, *Tensor, error) {
	if r.forest == nil {
		return nil, nil, ErrNotFitted
	}

	return Batchify(PosteriorMarginal, r.batch)(candidates)
}

func (r *RandomForestModel) batch(points *mat.Dense) ([]float64, []float64, error) {
	preds := r.forest.Predictions(points)

	n, _ := points.Dims()
	mean := make([]float64, n)
	variance := make([]float64, n)
	values := make([]float64, len(preds))

	for i := 0; i < n; i++ {
		for t := range preds {
			values[t] = preds[t][i]
		}

		if len(values) < 2 {
			mean[i] = values[0]

			continue
		}

		mean[i], variance[i] = stat.MeanVariance(values, nil)
	}

	return mean, variance, nil
}

func nonNil(p Params) Params {
	if p == nil {
		return Params{}
	}

	return p.Clone()
}
