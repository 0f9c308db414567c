// Package provider holds what every pluggable collaborator shares: the
// key/value [Options] passed to Initialize.
//
// The collaborator contracts themselves live in sub-packages (vision,
// mapper, generator, output), each with concrete implementations and a mock
// sub-package for tests.
package provider

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// Options is a collaborator's configuration: a plain key/value mapping as
// decoded from YAML. Recognised keys are implementation-specific; call
// [Options.Check] in Initialize so that typos fail loudly.
type Options map[string]any

// Check returns an error naming every key in o that is not in known.
func (o Options) Check(known ...string) error {
	var unknown []string
	for k := range o {
		if !slices.Contains(known, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("provider: unknown option(s) %v (known: %v)", unknown, known)
}

// String returns the string at key, or def when absent.
func (o Options) String(key, def string) (string, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("provider: option %q must be a string, got %T", key, v)
	}
	return s, nil
}

// Float returns the number at key, or def when absent. Integers are
// accepted.
func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("provider: option %q must be a number, got %T", key, v)
	}
}

// Int returns the integer at key, or def when absent. Whole floats are
// accepted.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("provider: option %q must be a whole number, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("provider: option %q must be an integer, got %T", key, v)
	}
}

// Bool returns the boolean at key, or def when absent.
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("provider: option %q must be a boolean, got %T", key, v)
	}
	return b, nil
}

// Duration returns the duration at key, or def when absent. Strings are
// parsed with [time.ParseDuration]; bare numbers are seconds.
func (o Options) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	switch d := v.(type) {
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, fmt.Errorf("provider: option %q: %w", key, err)
		}
		return parsed, nil
	case time.Duration:
		return d, nil
	default:
		secs, err := o.Float(key, 0)
		if err != nil {
			return 0, fmt.Errorf("provider: option %q must be a duration string or seconds, got %T", key, v)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}
