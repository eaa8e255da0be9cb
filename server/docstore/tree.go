package docstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func JoinPath(segments ...string) string {
	return strings.Join(SplitPath(strings.Join(segments, "/")), "/")
}

// Normalize converts an arbitrary Go value into the JSON shapes the tree
// stores (map[string]any, []any, float64, string, bool, nil).
func Normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

// Decode re-marshals a tree value into a typed destination.
func Decode(value any, dst any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func valueAt(node any, segments []string) (any, bool) {
	current := node
	for _, seg := range segments {
		switch typed := current.(type) {
		case map[string]any:
			next, ok := typed[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(typed) {
				return nil, false
			}
			current = typed[idx]
		default:
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

// withValueAt returns a copy of node with value placed at segments. Only the
// containers along the path are copied; untouched siblings are shared.
func withValueAt(node any, segments []string, value any) any {
	if len(segments) == 0 {
		return value
	}
	head, rest := segments[0], segments[1:]

	if list, ok := node.([]any); ok {
		idx, err := strconv.Atoi(head)
		switch {
		case err == nil && idx >= 0 && idx < len(list):
			out := append([]any(nil), list...)
			out[idx] = withValueAt(out[idx], rest, value)
			if idx == len(out)-1 && out[idx] == nil {
				out = out[:idx]
			}
			if len(out) == 0 {
				return nil
			}
			return out
		case err == nil && idx == len(list):
			child := withValueAt(nil, rest, value)
			if child == nil {
				return list
			}
			return append(append([]any(nil), list...), child)
		}
		converted := make(map[string]any, len(list))
		for i, item := range list {
			if item != nil {
				converted[strconv.Itoa(i)] = item
			}
		}
		node = converted
	}

	existing, _ := node.(map[string]any)
	out := make(map[string]any, len(existing)+1)
	for k, v := range existing {
		out[k] = v
	}
	child := withValueAt(out[head], rest, value)
	if child == nil {
		delete(out, head)
	} else {
		out[head] = child
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// overlaps reports whether a write at one path can change the value at the
// other, i.e. one is a prefix of the other.
func overlaps(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
