package domain

import "time"

// ParameterBag is an ordered, typed key/value container used to pass command
// inputs through the pipeline. Keys keep insertion order so validation errors
// surface deterministically. Missing optional keys are never an error; the
// typed getters return the zero value and false.
type ParameterBag struct {
	keys   []string
	values map[string]any
}

// NewParameterBag creates an empty parameter bag.
func NewParameterBag() *ParameterBag {
	return &ParameterBag{values: make(map[string]any)}
}

// Set stores a value under key, replacing any previous value but keeping the
// original position. Returns the bag for chaining.
func (b *ParameterBag) Set(key string, value any) *ParameterBag {
	if _, exists := b.values[key]; !exists {
		b.keys = append(b.keys, key)
	}
	b.values[key] = value
	return b
}

// Has reports whether key is present in the bag.
func (b *ParameterBag) Has(key string) bool {
	_, ok := b.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (b *ParameterBag) Keys() []string {
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

// Len returns the number of parameters in the bag.
func (b *ParameterBag) Len() int {
	return len(b.keys)
}

// GetString returns the string stored under key.
func (b *ParameterBag) GetString(key string) (string, bool) {
	v, ok := b.values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetBool returns the bool stored under key.
func (b *ParameterBag) GetBool(key string) (bool, bool) {
	v, ok := b.values[key]
	if !ok {
		return false, false
	}
	bv, ok := v.(bool)
	return bv, ok
}

// GetInt returns the integer stored under key. JSON decoding produces
// float64 for numbers, so whole floats are accepted as well.
func (b *ParameterBag) GetInt(key string) (int, bool) {
	v, ok := b.values[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// GetFloat returns the float stored under key.
func (b *ParameterBag) GetFloat(key string) (float64, bool) {
	v, ok := b.values[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// GetTime returns the time stored under key. RFC 3339 strings are accepted
// alongside time.Time values so bags built from JSON bodies work unchanged.
func (b *ParameterBag) GetTime(key string) (time.Time, bool) {
	v, ok := b.values[key]
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// GetStringSlice returns the string slice stored under key. JSON decoding
// produces []any, so slices of string-valued any are accepted as well.
func (b *ParameterBag) GetStringSlice(key string) ([]string, bool) {
	v, ok := b.values[key]
	if !ok {
		return nil, false
	}
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}

// GetFloatMap returns the string-to-float map stored under key, accepting
// the map[string]any shape produced by JSON decoding.
func (b *ParameterBag) GetFloatMap(key string) (map[string]float64, bool) {
	v, ok := b.values[key]
	if !ok {
		return nil, false
	}
	switch m := v.(type) {
	case map[string]float64:
		return m, true
	case map[string]any:
		out := make(map[string]float64, len(m))
		for k, item := range m {
			f, ok := item.(float64)
			if !ok {
				return nil, false
			}
			out[k] = f
		}
		return out, true
	default:
		return nil, false
	}
}

// GetRequiredString returns the string under key or a MissingParameter error.
// Intended for use inside Execute, after Validate has guaranteed presence.
func (b *ParameterBag) GetRequiredString(key string) (string, error) {
	s, ok := b.GetString(key)
	if !ok {
		return "", NewMissingParameter(key)
	}
	return s, nil
}

// GetRequiredBool returns the bool under key or a MissingParameter error.
func (b *ParameterBag) GetRequiredBool(key string) (bool, error) {
	v, ok := b.GetBool(key)
	if !ok {
		return false, NewMissingParameter(key)
	}
	return v, nil
}

// MissingRequired returns the subset of keys absent from the bag, each
// formatted as a ready-to-surface error string. Every Validate starts with
// this check to short-circuit structurally incomplete input.
func (b *ParameterBag) MissingRequired(keys ...string) []string {
	var missing []string
	for _, key := range keys {
		if !b.Has(key) {
			missing = append(missing, NewMissingParameter(key).Message)
		}
	}
	return missing
}
