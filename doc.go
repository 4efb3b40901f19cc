// Package surrogate provides the surrogate-model layer of a Bayesian
// optimization loop: probabilistic regressors that are fitted to the
// observations made so far and return posterior predictive distributions
// over candidate points.
//
// # Features
//
//   - One contract for five regressor families: Gaussian process, random
//     forest, NGBoost, Bayesian linear regression with ARD and a constant
//     mean predictor
//   - Batched candidates: any number of leading batch dimensions, (*T, Q, D),
//     for every family, joint or marginal
//   - Degenerate data: constant targets switch to a mean predictor instead of
//     failing
//   - Scaling: features mapped to the unit cube with the search space
//     bounds, targets standardised, posteriors mapped back
//   - Serialisable configuration in JSON and YAML
//   - An optimization loop and acquisition functions built on the contract
//
// # Usage
//
//	s, err := surrogate.New(surrogate.RandomForest, surrogate.Params{"n_estimators": 50})
//	if err != nil {
//	    return err
//	}
//
//	space, _ := surrogate.DiscreteSpace(x)
//	if err := s.Fit(space, x, y); err != nil {
//	    return err
//	}
//
//	candidates, _ := surrogate.NewTensor(data, 4, 3, 2) // 4 batches of 3 points in 2D
//	mean, covar, err := s.Posterior(candidates)         // (4, 3) and (4, 3, 3)
//
// # Composition
//
// Cross-cutting behaviour is layered as wrappers around a Model:
//
//   - CatchConstantTargets falls back to a mean predictor on constant targets
//   - Scale fits the model in scaled units
//   - Batchify lifts a single-batch posterior to any batch shape
//
// New composes them per family. NewFromModel accepts any custom Model.
//
// # Posterior output
//
// Surrogate.Posterior always returns a mean of shape (*T, Q) and a covariance
// of shape (*T, Q, Q). Marginal families produce diagonal covariances. 1e-6 is
// added to every diagonal entry.
//
// # Thread Safety
//
// A Surrogate serialises Fit against Posterior with an RWMutex. Concurrent
// Posterior calls on a fitted surrogate are safe. Models used directly are
// not safe for concurrent Fit.
package surrogate
