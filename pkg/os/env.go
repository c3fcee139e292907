package os

import (
	"os"
	"sort"
	"strings"
)

// GetEnv retrieves the value of an environment variable having the specified
// key. If the value is empty string, a specified default is returned instead.
func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// MergeEnv returns a copy of base (a slice of KEY=value pairs, as returned by
// os.Environ) with every entry of overrides applied. An override replaces any
// existing entry for the same key rather than appending a duplicate, so the
// result is unambiguous regardless of which duplicate a child process honors.
// Overrides are appended in key order.
func MergeEnv(base []string, overrides map[string]string) []string {
	merged := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := overrides[key]; overridden {
			continue
		}
		merged = append(merged, kv)
	}
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		merged = append(merged, key+"="+overrides[key])
	}
	return merged
}
