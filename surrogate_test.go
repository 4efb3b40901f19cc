package surrogate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// familyParams are small, seeded configurations for every family.
var familyParams = map[Family]Params{
	GaussianProcess: nil,
	MeanPrediction:  nil,
	RandomForest:    {"n_estimators": 20, "random_state": 1},
	NGBoost:         {"random_state": 1},
	BayesianLinear:  nil,
}

// trainingData is a 4x3 grid with a smooth response.
func trainingData(t *testing.T) (*Space, *mat.Dense, *mat.Dense) {
	t.Helper()

	n := 12
	x := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)

	for i := 0; i < n; i++ {
		a, b := float64(i%4), float64(i/4)
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		y.Set(i, 0, math.Sin(a)+0.5*b*b)
	}

	space, err := DiscreteSpace(x)
	require.NoError(t, err)

	return space, x, y
}

// candidateData returns t*q*2 deterministic points inside the grid bounds.
func candidateData(t, q int) []float64 {
	data := make([]float64, 0, t*q*2)
	for i := 0; i < t*q; i++ {
		data = append(data, float64(i%7)*0.45, float64(i%5)*0.4)
	}

	return data
}

func fitted(t *testing.T, family Family, opts ...Option) *Surrogate {
	t.Helper()

	space, x, y := trainingData(t)

	s, err := New(family, familyParams[family], append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, s.Fit(space, x, y))

	return s
}

func TestPosteriorShapesAndFloor(t *testing.T) {
	for _, family := range Families {
		t.Run(string(family), func(t *testing.T) {
			s := fitted(t, family)
			_, x, _ := trainingData(t)

			candidates, err := NewTensor(x.RawMatrix().Data, 12, 2)
			require.NoError(t, err)

			mean, covar, err := s.Posterior(candidates)
			require.NoError(t, err)

			assert.Equal(t, []int{12}, mean.Shape())
			assert.Equal(t, []int{12, 12}, covar.Shape())

			for i := 0; i < 12; i++ {
				assert.GreaterOrEqual(t, covar.At(i, i), minVariance)
				assert.False(t, math.IsNaN(mean.At(i)))
			}
		})
	}
}

func TestMarginalCovarianceIsDiagonal(t *testing.T) {
	for _, family := range []Family{MeanPrediction, RandomForest, NGBoost, BayesianLinear} {
		t.Run(string(family), func(t *testing.T) {
			s := fitted(t, family)
			assert.False(t, s.JointPosterior())

			candidates, err := NewTensor(candidateData(2, 4), 2, 4, 2)
			require.NoError(t, err)

			_, covar, err := s.Posterior(candidates)
			require.NoError(t, err)
			require.Equal(t, []int{2, 4, 4}, covar.Shape())

			for b := 0; b < 2; b++ {
				for i := 0; i < 4; i++ {
					for j := 0; j < 4; j++ {
						if i != j {
							assert.Equal(t, 0.0, covar.At(b, i, j))
						}
					}
				}
			}
		})
	}
}

func TestJointBatchingEquivalence(t *testing.T) {
	for _, workers := range []int{1, 3} {
		s := fitted(t, GaussianProcess, WithWorkers(workers))
		require.True(t, s.JointPosterior())

		for _, tt := range []struct{ batches, q int }{{1, 1}, {1, 5}, {3, 1}, {3, 5}} {
			data := candidateData(tt.batches, tt.q)

			batched, err := NewTensor(data, tt.batches, tt.q, 2)
			require.NoError(t, err)

			mean, covar, err := s.Posterior(batched)
			require.NoError(t, err)
			assert.Equal(t, data, batched.Data(), "candidates must not be modified")
			require.Equal(t, []int{tt.batches, tt.q}, mean.Shape())
			require.Equal(t, []int{tt.batches, tt.q, tt.q}, covar.Shape())

			for b := 0; b < tt.batches; b++ {
				single, err := NewTensor(data[b*tt.q*2:(b+1)*tt.q*2], tt.q, 2)
				require.NoError(t, err)

				m, c, err := s.Posterior(single)
				require.NoError(t, err)

				for i := 0; i < tt.q; i++ {
					assert.InDelta(t, m.At(i), mean.At(b, i), 1e-9)

					for j := 0; j < tt.q; j++ {
						assert.InDelta(t, c.At(i, j), covar.At(b, i, j), 1e-9)
					}
				}
			}
		}
	}
}

func TestPosteriorRejectsFeatureMismatch(t *testing.T) {
	space, x, y := trainingData(t)

	constant := mat.NewDense(12, 1, nil)

	for _, family := range Families {
		for name, targets := range map[string]*mat.Dense{"varying": y, "constant": constant} {
			t.Run(string(family)+"/"+name, func(t *testing.T) {
				s, err := New(family, familyParams[family])
				require.NoError(t, err)
				require.NoError(t, s.Fit(space, x, targets))

				for _, d := range []int{1, 5} {
					candidates, err := NewTensor(make([]float64, 3*d), 1, 3, d)
					require.NoError(t, err)

					_, _, err = s.Posterior(candidates)

					var shapeErr *ShapeError
					require.ErrorAs(t, err, &shapeErr, "d=%d", d)
					assert.Equal(t, []int{1, 3, d}, shapeErr.Shape)
					assert.ErrorIs(t, err, ErrUnsupportedShape)
					assert.ErrorIs(t, err, ErrInvalidInput)
				}
			})
		}
	}

	t.Run("custom model", func(t *testing.T) {
		rf, err := NewRandomForest(Params{"n_estimators": 3, "random_state": 1})
		require.NoError(t, err)

		s := NewFromModel(rf)
		require.NoError(t, s.Fit(space, x, y))

		candidates, err := NewTensor([]float64{0.5, 1.5}, 2, 1)
		require.NoError(t, err)

		_, _, err = s.Posterior(candidates)
		assert.ErrorIs(t, err, ErrUnsupportedShape)
	})
}

func TestMarginalReshape(t *testing.T) {
	space, x, y := trainingData(t)

	rf, err := NewRandomForest(Params{"n_estimators": 10, "random_state": 2})
	require.NoError(t, err)
	require.NoError(t, rf.Fit(space, x, y))
	assert.Equal(t, 10, rf.NumTrees())

	candidates, err := NewTensor(candidateData(4, 6), 4, 6, 2)
	require.NoError(t, err)

	mean, variance, err := rf.Posterior(candidates)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 6}, mean.Shape())
	assert.Equal(t, []int{4, 6}, variance.Shape())

	// Every element matches the prediction for the point on its own.
	for b := 0; b < 4; b++ {
		for i := 0; i < 6; i++ {
			off := (b*6 + i) * 2

			point, err := NewTensor(candidateData(4, 6)[off:off+2], 1, 2)
			require.NoError(t, err)

			m, v, err := rf.Posterior(point)
			require.NoError(t, err)
			assert.InDelta(t, m.At(0), mean.At(b, i), 1e-12)
			assert.InDelta(t, v.At(0), variance.At(b, i), 1e-12)
		}
	}
}

func TestConstantTargets(t *testing.T) {
	for _, family := range Families {
		t.Run(string(family), func(t *testing.T) {
			space, x, _ := trainingData(t)

			y := mat.NewDense(12, 1, nil)
			for i := 0; i < 12; i++ {
				y.Set(i, 0, 7)
			}

			s, err := New(family, familyParams[family])
			require.NoError(t, err)
			require.NoError(t, s.Fit(space, x, y))

			assert.Equal(t, MeanPrediction, s.Active().Family())
			assert.Equal(t, family, s.Family())

			candidates, err := NewTensor(candidateData(2, 3), 2, 3, 2)
			require.NoError(t, err)

			mean, covar, err := s.Posterior(candidates)
			require.NoError(t, err)
			require.Equal(t, []int{2, 3, 3}, covar.Shape())

			for b := 0; b < 2; b++ {
				for i := 0; i < 3; i++ {
					assert.InDelta(t, 7.0, mean.At(b, i), 1e-9)
					assert.InDelta(t, 1.0, covar.At(b, i, i), 1e-5)
				}
			}
		})
	}
}

func TestRefitAfterConstantTargets(t *testing.T) {
	space, x, y := trainingData(t)

	s, err := New(BayesianLinear, nil)
	require.NoError(t, err)

	constant := mat.NewDense(12, 1, nil)
	for i := 0; i < 12; i++ {
		constant.Set(i, 0, 3)
	}

	require.NoError(t, s.Fit(space, x, constant))
	assert.Equal(t, MeanPrediction, s.Active().Family())

	require.NoError(t, s.Fit(space, x, y))
	assert.Equal(t, BayesianLinear, s.Active().Family())

	blr, ok := s.Active().(*BayesianLinearModel)
	require.True(t, ok)
	assert.Len(t, blr.Coefficients(), 2)
}

func TestEmptyInputRejection(t *testing.T) {
	space, x, y := trainingData(t)

	s, err := New(RandomForest, familyParams[RandomForest])
	require.NoError(t, err)

	err = s.Fit(space, &mat.Dense{}, &mat.Dense{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = s.Fit(space, nil, y)
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, s.Fit(space, x, y))

	for _, shape := range [][]int{{0, 2}, {0, 3, 2}, {2, 0, 2}} {
		_, err := NewTensor([]float64{}, shape...)
		assert.ErrorIs(t, err, ErrInvalidInput, "shape %v", shape)
	}

	_, _, err = s.Posterior(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = s.Posterior(&Tensor{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFitValidation(t *testing.T) {
	space, x, _ := trainingData(t)

	s, err := New(GaussianProcess, nil)
	require.NoError(t, err)

	t.Run("multi-output targets", func(t *testing.T) {
		err := s.Fit(space, x, mat.NewDense(12, 2, nil))

		var shapeErr *ShapeError
		require.ErrorAs(t, err, &shapeErr)
		assert.Equal(t, []int{12, 2}, shapeErr.Shape)
		assert.ErrorIs(t, err, ErrUnsupportedShape)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("row mismatch", func(t *testing.T) {
		assert.ErrorIs(t, s.Fit(space, x, mat.NewDense(11, 1, nil)), ErrInvalidInput)
	})

	t.Run("nil space", func(t *testing.T) {
		assert.ErrorIs(t, s.Fit(nil, x, mat.NewDense(12, 1, nil)), ErrInvalidInput)
	})

	t.Run("posterior before fit", func(t *testing.T) {
		candidates, err := NewTensor(candidateData(1, 2), 2, 2)
		require.NoError(t, err)

		_, _, err = s.Posterior(candidates)
		assert.ErrorIs(t, err, ErrNotFitted)
		assert.False(t, s.Fitted())
	})

	t.Run("one-dimensional candidates", func(t *testing.T) {
		candidates, err := NewTensor([]float64{1, 2}, 2)
		require.NoError(t, err)

		_, _, err = s.Posterior(candidates)
		assert.ErrorIs(t, err, ErrUnsupportedShape)
	})
}

func TestContinuousSpaces(t *testing.T) {
	_, x, y := trainingData(t)

	space, err := NewSpace([]float64{0, 0}, []float64{3, 2})
	require.NoError(t, err)

	for _, family := range []Family{MeanPrediction, RandomForest, NGBoost, BayesianLinear} {
		s, err := New(family, familyParams[family])
		require.NoError(t, err)

		err = s.Fit(space, x, y)
		assert.ErrorIs(t, err, ErrUnsupportedConfig, string(family))
		assert.False(t, s.Fitted())
	}

	s, err := New(GaussianProcess, nil)
	require.NoError(t, err)
	require.NoError(t, s.Fit(space, x, y))

	gp, ok := s.Active().(*GaussianProcessModel)
	require.True(t, ok)
	assert.Len(t, gp.Lengthscales(), 2)
	assert.Equal(t, "LowDim", gp.PriorRegime())
}

func TestInvalidParams(t *testing.T) {
	_, err := New(RandomForest, Params{"not_a_real_param": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedConfig)
	assert.Contains(t, err.Error(), "not_a_real_param")

	var paramErr *ParamError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, []string{"not_a_real_param"}, paramErr.Keys)
	assert.Equal(t, RandomForest, paramErr.Family)

	tests := []struct {
		name   string
		family Family
		params Params
	}{
		{"gp takes no params", GaussianProcess, Params{"lengthscale": 1}},
		{"mean prediction takes no params", MeanPrediction, Params{"value": 1}},
		{"ill-typed value", RandomForest, Params{"n_estimators": "many"}},
		{"out of range value", RandomForest, Params{"n_estimators": 0}},
		{"ngboost unknown key", NGBoost, Params{"n_estimators": 5, "depth": 2}},
		{"ard out of range", BayesianLinear, Params{"max_iter": -1}},
		{"unknown family", Family("Kriging"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.family, tt.params)
			assert.ErrorIs(t, err, ErrUnsupportedConfig)
		})
	}
}

func TestModelParams(t *testing.T) {
	s, err := New(NGBoost, Params{"learning_rate": 0.05})
	require.NoError(t, err)

	assert.Equal(t, Params{"n_estimators": 25, "verbose": false, "learning_rate": 0.05}, s.ModelParams())

	s, err = New(RandomForest, Params{"max_features": 0.5})
	require.NoError(t, err)
	assert.Equal(t, Params{"max_features": 0.5}, s.ModelParams())

	s, err = New(GaussianProcess, nil)
	require.NoError(t, err)
	assert.Empty(t, s.ModelParams())
}

func TestNewFromModel(t *testing.T) {
	space, x, y := trainingData(t)

	blr, err := NewBayesianLinear(Params{"fit_intercept": true})
	require.NoError(t, err)

	s := NewFromModel(Scale(blr))
	require.NoError(t, s.Fit(space, x, y))
	assert.Equal(t, BayesianLinear, s.Family())
	assert.Same(t, blr, s.Active())

	candidates, err := NewTensor(candidateData(1, 3), 3, 2)
	require.NoError(t, err)

	_, covar, err := s.Posterior(candidates)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, covar.Shape())
}

func TestFailedFitKeepsPreviousModel(t *testing.T) {
	space, x, y := trainingData(t)

	s, err := New(MeanPrediction, nil)
	require.NoError(t, err)
	require.NoError(t, s.Fit(space, x, y))

	wide, err := NewSpace([]float64{0}, []float64{1})
	require.NoError(t, err)

	err = s.Fit(wide, x, y)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedConfig))
	assert.True(t, s.Fitted())
}
