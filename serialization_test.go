package surrogate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestJSONRoundTrip(t *testing.T) {
	s, err := New(RandomForest, Params{"n_estimators": 15, "max_depth": 4})
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"RandomForest","model_params":{"n_estimators":15,"max_depth":4}}`, string(data))

	var restored Surrogate
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, RandomForest, restored.Family())
	assert.False(t, restored.Fitted())

	// JSON numbers come back as float64 and are still accepted.
	assert.Equal(t, Params{"n_estimators": 15.0, "max_depth": 4.0}, restored.ModelParams())

	rf, ok := restored.Active().(*RandomForestModel)
	require.True(t, ok)
	assert.Equal(t, 15, rf.config.NEstimators)
	assert.Equal(t, 4, rf.config.MaxDepth)
}

func TestJSONExcludesFittedState(t *testing.T) {
	s := fitted(t, BayesianLinear)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"BayesianLinear"}`, string(data))
}

func TestYAMLRoundTrip(t *testing.T) {
	s, err := New(NGBoost, Params{"learning_rate": 0.1})
	require.NoError(t, err)

	data, err := yaml.Marshal(s)
	require.NoError(t, err)

	var restored Surrogate
	require.NoError(t, yaml.Unmarshal(data, &restored))
	assert.Equal(t, NGBoost, restored.Family())
	assert.Equal(t, 0.1, restored.ModelParams()["learning_rate"])
	assert.Equal(t, 25, restored.ModelParams()["n_estimators"])
}

func TestYAMLConfigDocument(t *testing.T) {
	doc := []byte("type: GaussianProcess\n")

	var s Surrogate
	require.NoError(t, yaml.Unmarshal(doc, &s))
	assert.True(t, s.JointPosterior())
}

func TestUnmarshalRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown family", `{"type":"Kriging"}`},
		{"unknown param", `{"type":"RandomForest","model_params":{"not_a_real_param":1}}`},
		{"params for gp", `{"type":"GaussianProcess","model_params":{"noise":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Surrogate
			assert.ErrorIs(t, json.Unmarshal([]byte(tt.doc), &s), ErrUnsupportedConfig)
		})
	}

	var s Surrogate
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"type":5}`), &s), ErrInvalidInput)
}

func TestConfigBuild(t *testing.T) {
	s, err := Config{Type: MeanPrediction}.Build()
	require.NoError(t, err)
	assert.Equal(t, MeanPrediction, s.Family())
	assert.Equal(t, Config{Type: MeanPrediction}, s.Config())

	_, err = ParseFamily("NGBoost")
	require.NoError(t, err)

	_, err = ParseFamily("ngboost")
	assert.ErrorIs(t, err, ErrUnsupportedConfig)
}
