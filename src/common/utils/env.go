package utils

import (
	"os"
	"strconv"
	"time"
)

func GetEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// GetEnvInt falls back when the variable is unset or not a number.
func GetEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		GetLogger().Warnf("ignoring %s=%q: %v", key, v, err)
		return fallback
	}
	return n
}

// GetEnvDuration accepts Go duration strings ("250ms") or a bare number of
// milliseconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		GetLogger().Warnf("ignoring %s=%q: %v", key, v, err)
		return fallback
	}
	return d
}
