package gp

import "gonum.org/v1/gonum/stat/distuv"

// Regime names the prior family picked for a training set.
type Regime string

// Prior regimes, in rule-table order.
const (
	LowDim  Regime = "LowDim"
	DFT     Regime = "DFT"
	Mordred Regime = "Mordred"
	OneHot  Regime = "OneHot"
)

// descriptorMinDim is the dimensionality below which descriptor features are
// ignored for prior selection.
const descriptorMinDim = 50

// GammaPrior is a Gamma distribution given by concentration and rate.
type GammaPrior struct {
	Concentration float64
	Rate          float64
}

// LogProb returns the log density of the prior at x.
func (g GammaPrior) LogProb(x float64) float64 {
	return distuv.Gamma{Alpha: g.Concentration, Beta: g.Rate}.LogProb(x)
}

// PriorSpec pairs a prior with the initial value of its hyperparameter.
type PriorSpec struct {
	Prior   GammaPrior
	Initial float64
}

// PriorConfig holds the priors of all kernel and likelihood hyperparameters.
type PriorConfig struct {
	Regime      Regime
	Lengthscale PriorSpec
	Outputscale PriorSpec
	Noise       PriorSpec
}

type priorRule struct {
	match  func(dim int, descriptors bool) bool
	config PriorConfig
}

// priorTable is evaluated top to bottom; the first matching rule wins.
var priorTable = []priorRule{
	{
		match: func(dim int, _ bool) bool { return dim < 5 },
		config: PriorConfig{
			Regime:      LowDim,
			Lengthscale: PriorSpec{GammaPrior{1.2, 1.1}, 0.2},
			Outputscale: PriorSpec{GammaPrior{5.0, 0.5}, 8.0},
			Noise:       PriorSpec{GammaPrior{1.05, 0.5}, 0.1},
		},
	},
	{
		match: func(dim int, descriptors bool) bool { return descriptors && dim < 100 },
		config: PriorConfig{
			Regime:      DFT,
			Lengthscale: PriorSpec{GammaPrior{2.0, 0.2}, 5.0},
			Outputscale: PriorSpec{GammaPrior{5.0, 0.5}, 8.0},
			Noise:       PriorSpec{GammaPrior{1.5, 0.1}, 5.0},
		},
	},
	{
		match: func(_ int, descriptors bool) bool { return descriptors },
		config: PriorConfig{
			Regime:      Mordred,
			Lengthscale: PriorSpec{GammaPrior{2.0, 0.1}, 10.0},
			Outputscale: PriorSpec{GammaPrior{2.0, 0.1}, 10.0},
			Noise:       PriorSpec{GammaPrior{1.5, 0.1}, 5.0},
		},
	},
	{
		match: func(int, bool) bool { return true },
		config: PriorConfig{
			Regime:      OneHot,
			Lengthscale: PriorSpec{GammaPrior{3.0, 1.0}, 2.0},
			Outputscale: PriorSpec{GammaPrior{5.0, 0.2}, 20.0},
			Noise:       PriorSpec{GammaPrior{1.5, 0.1}, 5.0},
		},
	},
}

// SelectPriors maps the input dimensionality and the presence of
// descriptor-derived features to a prior configuration. Descriptors only
// count once the input has at least 50 dimensions.
func SelectPriors(dim int, descriptors bool) PriorConfig {
	descriptors = descriptors && dim >= descriptorMinDim

	for _, rule := range priorTable {
		if rule.match(dim, descriptors) {
			return rule.config
		}
	}

	// Unreachable: the last rule matches everything.
	return priorTable[len(priorTable)-1].config
}
