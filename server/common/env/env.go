package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func String(key, fallback string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return fallback
}

// Int returns fallback for unset, unparsable or non-positive values.
func Int(key string, fallback int) int {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func Bool(key string, fallback bool) bool {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Seconds reads a positive integer number of seconds.
func Seconds(key string, fallback time.Duration) time.Duration {
	n := Int(key, -1)
	if n < 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// OneOf lower-cases the value and returns fallback unless it is one of allowed.
func OneOf(key, fallback string, allowed ...string) string {
	v := strings.ToLower(String(key, fallback))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return fallback
}

func CSV(key string, fallback []string) []string {
	v, ok := lookup(key)
	if !ok {
		return append([]string(nil), fallback...)
	}
	seen := map[string]struct{}{}
	result := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		result = append(result, item)
	}
	if len(result) == 0 {
		return append([]string(nil), fallback...)
	}
	return result
}
