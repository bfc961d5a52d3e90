package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Getenv matches os.Getenv so that tests can supply their own environment.
type Getenv func(key string) string

// withDefault fetches an environment variable with a default fallback.
func (g Getenv) withDefault(key, defaultValue string) string {
	value := strings.TrimSpace(g(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func (g Getenv) integer(key string, defaultValue int) (int, error) {
	raw := g.withDefault(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return v, nil
}

func (g Getenv) boolean(key string, defaultValue bool) (bool, error) {
	raw := g.withDefault(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, raw)
	}
	return v, nil
}

// duration accepts a Go duration ("500ms", "2s") or a bare number of seconds.
func (g Getenv) duration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := g.withDefault(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return v, nil
}
