package surrogate

import "math"

//////
// Available acquisition functions for Bayesian optimization.
// Each function scores a candidate from its predictive distribution, lower
// scores being more promising. Objectives are minimised.
//////

// UCB implements the confidence bound acquisition function for minimisation.
//
// How it works:
// - Subtracts Beta standard deviations from the predicted mean
// - The Beta parameter controls the trade-off between exploration and exploitation
//
// Example:
//
//	params := AcquisitionParams{Beta: 2.0}
//	value := UCB(Prediction{Mean: 0.5, Variance: 0.2}, params)
func UCB(p Prediction, params AcquisitionParams) float64 {
	return p.Mean - params.Beta*math.Sqrt(math.Max(p.Variance, 0))
}

// ProbabilityOfImprovement (PI) returns the negated probability that a
// candidate improves on BestSoFar by at least Xi.
//
// When to use:
// - When you want to be conservative in exploring new points
// - In problems where being "probably better" matters more than "how much better"
//
// Example:
//
//	params := AcquisitionParams{BestSoFar: 1.0, Xi: 0.01}
//	value := ProbabilityOfImprovement(Prediction{Mean: 0.9, Variance: 0.2}, params)
func ProbabilityOfImprovement(p Prediction, params AcquisitionParams) float64 {
	improvement := params.BestSoFar - params.Xi - p.Mean

	sigma := math.Sqrt(math.Max(p.Variance, 0))
	if sigma == 0 {
		if improvement > 0 {
			return -1
		}

		return 0
	}

	return -normalCDF(improvement / sigma)
}

// ExpectedImprovement (EI) returns the negated expected improvement over
// BestSoFar minus Xi.
//
// When to use:
// - Most commonly used acquisition function
// - When the magnitude of improvement matters
//
// Example:
//
//	params := AcquisitionParams{BestSoFar: 1.0, Xi: 0.01}
//	value := ExpectedImprovement(Prediction{Mean: 0.9, Variance: 0.2}, params)
func ExpectedImprovement(p Prediction, params AcquisitionParams) float64 {
	improvement := params.BestSoFar - params.Xi - p.Mean

	sigma := math.Sqrt(math.Max(p.Variance, 0))
	if sigma == 0 {
		return -math.Max(improvement, 0)
	}

	z := improvement / sigma

	return -(improvement*normalCDF(z) + sigma*normalPDF(z))
}

// ThompsonSampling draws one sample from the predictive distribution.
//
// Warning:
// - Always initialize RandomState before using this function
// - Don't share RandomState between different optimization runs.
func ThompsonSampling(p Prediction, params AcquisitionParams) float64 {
	return p.Mean + math.Sqrt(math.Max(p.Variance, 0))*params.RandomState.NormFloat64()
}
