package surrogate

import (
	"fmt"
	"maps"
	"reflect"
	"sort"

	"github.com/go-viper/mapstructure/v2"
)

// paramTag is the struct tag naming the model param a field is decoded from.
const paramTag = "param"

// Params are the user-supplied hyperparameters of a regressor, keyed by
// name. Values may be of any numeric or boolean type accepted by the target
// field; numbers decoded from JSON or YAML are converted as needed.
type Params map[string]any

// Clone returns a shallow copy. A nil Params stays nil.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}

	return maps.Clone(p)
}

// allowedParams lists the param names of a config struct.
func allowedParams(cfg any) map[string]struct{} {
	t := reflect.TypeOf(cfg)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	allowed := make(map[string]struct{}, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get(paramTag)
		if name == "" || name == "-" {
			continue
		}

		allowed[name] = struct{}{}
	}

	return allowed
}

// decodeParams validates params against the param tags of dst and decodes
// them on top of the values already in dst. Unknown keys are reported before
// any value is looked at.
func decodeParams(family Family, params Params, dst any) error {
	allowed := allowedParams(dst)

	var unknown []string

	for k := range params {
		if _, ok := allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)

		return &ParamError{Family: family, Keys: unknown}
	}

	if len(params) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          paramTag,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           dst,
	})
	if err != nil {
		return err
	}

	if err := dec.Decode(map[string]any(params)); err != nil {
		return fmt.Errorf("%w: %s params: %w", ErrUnsupportedConfig, family, err)
	}

	return nil
}

// rejectParams is the validation of families without tunable params.
func rejectParams(family Family, params Params) error {
	if len(params) == 0 {
		return nil
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return &ParamError{Family: family, Keys: keys, NoParams: true}
}
