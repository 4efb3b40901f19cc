package surrogate

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the serialisable configuration of a Surrogate. Fitted state is
// never part of it: a deserialised surrogate must be fitted again.
type Config struct {
	Type        Family `json:"type" yaml:"type"`
	ModelParams Params `json:"model_params,omitempty" yaml:"model_params,omitempty"`
}

// Build validates the configuration and composes a new Surrogate.
func (c Config) Build(opts ...Option) (*Surrogate, error) {
	family, err := ParseFamily(string(c.Type))
	if err != nil {
		return nil, err
	}

	return New(family, c.ModelParams, opts...)
}

// Config returns the configuration of the surrogate.
func (s *Surrogate) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := Config{Type: s.family}
	if len(s.params) > 0 {
		c.ModelParams = s.params.Clone()
	}

	return c
}

// MarshalJSON implements json.Marshaler.
func (s *Surrogate) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Config())
}

// UnmarshalJSON implements json.Unmarshaler. The result is unfitted.
func (s *Surrogate) UnmarshalJSON(data []byte) error {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("%w: decoding surrogate: %w", ErrInvalidInput, err)
	}

	return s.adopt(c)
}

// MarshalYAML implements yaml.Marshaler.
func (s *Surrogate) MarshalYAML() (any, error) {
	return s.Config(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler. The result is unfitted.
func (s *Surrogate) UnmarshalYAML(value *yaml.Node) error {
	var c Config
	if err := value.Decode(&c); err != nil {
		return fmt.Errorf("%w: decoding surrogate: %w", ErrInvalidInput, err)
	}

	return s.adopt(c)
}

// adopt rebuilds s in place from c, keeping the options s was created with.
func (s *Surrogate) adopt(c Config) error {
	s.mu.RLock()
	opts := s.opts
	s.mu.RUnlock()

	built, err := c.Build(opts...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.family = built.family
	s.params = built.params
	s.model = built.model
	s.fitted = false
	s.features = 0
	s.logger = built.logger
	s.opts = opts

	return nil
}
