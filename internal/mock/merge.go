package mock

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// mergeData writes values into data: plain keys first, then dotted paths,
// each phase in sorted key order.
func mergeData(data any, values map[string]any) (any, error) {
	if data == nil {
		data = map[string]any{}
	}

	var plain, dotted []string
	for k := range values {
		if strings.Contains(k, ".") {
			dotted = append(dotted, k)
		} else {
			plain = append(plain, k)
		}
	}
	sort.Strings(plain)
	sort.Strings(dotted)

	for _, k := range append(plain, dotted...) {
		value, err := copyJSON(values[k])
		if err != nil {
			return nil, fmt.Errorf("merge %q: %w", k, err)
		}
		data, err = setPath(data, strings.Split(k, "."), value)
		if err != nil {
			return nil, fmt.Errorf("merge %q: %w", k, err)
		}
	}
	return data, nil
}

// copyJSON returns a copy of v that shares no maps or slices with it, so later
// dotted writes never reach the caller's values.
func copyJSON(v any) (any, error) {
	data, err := encodeJSON(v)
	if err != nil {
		return nil, err
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// setPath returns node with value written at path. Missing object keys are
// created; list indexes must exist or be one past the end.
func setPath(node any, path []string, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}
	key := path[0]

	switch n := node.(type) {
	case map[string]any:
		child, err := setPath(n[key], path[1:], value)
		if err != nil {
			return nil, err
		}
		n[key] = child
		return n, nil
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx > len(n) {
			return nil, fmt.Errorf("index %q out of range for list of %d", key, len(n))
		}
		if idx == len(n) {
			n = append(n, nil)
		}
		child, err := setPath(n[idx], path[1:], value)
		if err != nil {
			return nil, err
		}
		n[idx] = child
		return n, nil
	case nil:
		child, err := setPath(nil, path[1:], value)
		if err != nil {
			return nil, err
		}
		return map[string]any{key: child}, nil
	default:
		return nil, fmt.Errorf("cannot descend into %T at %q", node, key)
	}
}
