package spec

import (
	"strconv"
	"strings"

	"github.com/imdario/mergo"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Config is a flat view of a hierarchical configuration: nested keys are joined with '.'.
type Config map[string]string

func (c Config) HasPath(key string) bool {
	_, ok := c[key]
	return ok
}

func (c Config) GetString(key, defaultValue string) string {
	if v, ok := c[key]; ok {
		return v
	}

	return defaultValue
}

func (c Config) GetBool(key string, defaultValue bool) bool {
	v, ok := c[key]
	if !ok {
		return defaultValue
	}

	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return defaultValue
	}

	return b
}

func (c Config) GetFloat(key string, defaultValue float64) (float64, error) {
	v, ok := c[key]
	if !ok {
		return defaultValue, nil
	}

	return strconv.ParseFloat(strings.TrimSpace(v), 64)
}

// GetStringList splits a comma separated value, trimming blanks and dropping empty entries.
func (c Config) GetStringList(key string) []string {
	v, ok := c[key]
	if !ok {
		return nil
	}

	var res []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); len(s) > 0 {
			res = append(res, s)
		}
	}

	return res
}

// Keys returns the sorted keys of the config.
func (c Config) Keys() []string {
	keys := maps.Keys(c)
	slices.Sort(keys)
	return keys
}

func (c Config) Copy() Config {
	res := make(Config, len(c))
	for k, v := range c {
		res[k] = v
	}

	return res
}

// WithValue returns a copy of c with key set to value.
func (c Config) WithValue(key, value string) Config {
	res := c.Copy()
	res[key] = value
	return res
}

// WithFallback returns a copy of c completed with the keys of fallback it does not define.
func (c Config) WithFallback(fallback Config) (Config, error) {
	res := c.Copy()
	if len(fallback) == 0 {
		return res, nil
	}

	if err := mergo.Merge(&res, fallback); err != nil {
		return nil, err
	}

	return res, nil
}

// WithOverrides returns a copy of c where every key of overrides replaces the existing value.
func (c Config) WithOverrides(overrides Config) (Config, error) {
	res := c.Copy()
	if len(overrides) == 0 {
		return res, nil
	}

	if err := mergo.Merge(&res, overrides, mergo.WithOverride); err != nil {
		return nil, err
	}

	return res, nil
}

// SubConfig returns the entries under prefix with the prefix (and the separating '.') stripped.
func (c Config) SubConfig(prefix string) Config {
	res := Config{}
	p := prefix + "."
	for k, v := range c {
		if strings.HasPrefix(k, p) {
			res[strings.TrimPrefix(k, p)] = v
		}
	}

	return res
}
