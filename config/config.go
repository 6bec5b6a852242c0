// Package config loads the simulator's hierarchical configuration from
// YAML and exposes it through "/"-separated dotted keys, since the
// simulator addresses knobs like
// "perf_model/dram/queue_model/history_list/max_list_size" several
// levels deep.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// MissingKeyError reports a required config key with no value and no
// default. Fatal at startup with a single diagnostic.
type MissingKeyError struct{ Key string }

func (e MissingKeyError) Error() string {
	return fmt.Sprintf("config: missing required key %q", e.Key)
}

// UnrecognizedValueError reports a key whose value isn't one of its
// allowed enum members.
type UnrecognizedValueError struct {
	Key   string
	Value string
}

func (e UnrecognizedValueError) Error() string {
	return fmt.Sprintf("config: key %q has unrecognized value %q", e.Key, e.Value)
}

// Root is a loaded configuration tree, addressed by "/"-separated dotted
// keys (general/total_cores, perf_model/dram/type, ...).
type Root struct {
	values map[string]string
}

// Load reads and flattens a YAML config file at path into a Root. Every
// scalar leaf becomes one "/"-separated key; maps are flattened to any
// depth, and a list is stored under its key as a single string.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var tree map[string]any
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&tree); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	r := &Root{values: map[string]string{}}
	flatten("", tree, r.values)
	return r, nil
}

func flatten(prefix string, node any, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			key := k
			if prefix != "" {
				key = prefix + "/" + k
			}
			flatten(key, child, out)
		}
	default:
		out[prefix] = fmt.Sprintf("%v", v)
	}
}

// Has reports whether key was set in the loaded config.
func (r *Root) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// GetString returns key's raw string value, or def if unset.
func (r *Root) GetString(key, def string) string {
	if v, ok := r.values[key]; ok {
		return v
	}
	return def
}

// RequireString returns key's value, or a MissingKeyError if unset.
func (r *Root) RequireString(key string) (string, error) {
	v, ok := r.values[key]
	if !ok {
		return "", MissingKeyError{Key: key}
	}
	return v, nil
}

// GetInt returns key's value parsed as an int, or def if unset.
func (r *Root) GetInt(key string, def int) int {
	v, ok := r.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetFloat returns key's value parsed as a float64, or def if unset.
func (r *Root) GetFloat(key string, def float64) float64 {
	v, ok := r.values[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// GetBool returns key's value parsed as a bool, or def if unset.
func (r *Root) GetBool(key string, def bool) bool {
	v, ok := r.values[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// RequireEnum returns key's value, validated against allowed; an
// unrecognized value is fatal at startup.
func (r *Root) RequireEnum(key string, allowed ...string) (string, error) {
	v, err := r.RequireString(key)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", UnrecognizedValueError{Key: key, Value: v}
}
