// Package config provides fail-open environment loaders. A malformed or
// out-of-range value never aborts startup: the default is used and a warning
// is returned so the caller can log it and count the fallback.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadResult is the outcome of reading one environment variable.
// Warning is empty unless FallbackApplied is set.
type LoadResult[T any] struct {
	Key             string
	Value           T
	Warning         string
	FallbackApplied bool
}

// LoadEnvString returns the variable's value, or defaultValue when unset or empty.
func LoadEnvString(envKey, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return defaultValue
}

// LoadEnvWithFallback reads a string and validates it.
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) LoadResult[string] {
	return load(envKey, defaultValue, func(s string) (string, error) { return s, nil }, validator)
}

// LoadEnvDuration reads a Go duration string such as "30s" or "15m".
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) LoadResult[time.Duration] {
	return load(envKey, defaultValue, time.ParseDuration, validator)
}

// LoadEnvInt reads a base-10 integer.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) LoadResult[int] {
	return load(envKey, defaultValue, strconv.Atoi, validator)
}

// LoadEnvFloat reads a floating point number.
func LoadEnvFloat(envKey string, defaultValue float64, validator func(float64) error) LoadResult[float64] {
	return load(envKey, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	}, validator)
}

// LoadEnvBool reads a boolean accepted by strconv.ParseBool.
func LoadEnvBool(envKey string, defaultValue bool) LoadResult[bool] {
	return load(envKey, defaultValue, strconv.ParseBool, nil)
}

func load[T any](envKey string, defaultValue T, parse func(string) (T, error), validator func(T) error) LoadResult[T] {
	raw := os.Getenv(envKey)
	if raw == "" {
		return LoadResult[T]{Key: envKey, Value: defaultValue}
	}

	v, err := parse(raw)
	if err == nil && validator != nil {
		err = validator(v)
	}
	if err != nil {
		return LoadResult[T]{
			Key:   envKey,
			Value: defaultValue,
			Warning: fmt.Sprintf("Invalid %s='%s': %v, falling back to default '%v'",
				envKey, raw, err, defaultValue),
			FallbackApplied: true,
		}
	}
	return LoadResult[T]{Key: envKey, Value: v}
}

// Warning is one fallback applied during loading.
type Warning struct {
	Key     string
	Message string
}

// Warnings collects fallback warnings across several loads.
type Warnings []Warning

// Add records r's warning if a fallback was applied, and returns r.Value.
func Add[T any](w *Warnings, r LoadResult[T]) T {
	if r.FallbackApplied {
		*w = append(*w, Warning{Key: r.Key, Message: r.Warning})
	}
	return r.Value
}

// Keys returns the environment keys that fell back, in load order.
func (w Warnings) Keys() []string {
	keys := make([]string, 0, len(w))
	for _, x := range w {
		keys = append(keys, x.Key)
	}
	return keys
}
