package codec

import (
	"fmt"
	"sort"
	"strconv"
)

// pathSeg is one segment of a dotted key path: either an object key or
// an array index (rendered as "[i]").
type pathSeg struct {
	key     string
	index   int
	isIndex bool
}

// ExtractKeys returns the dotted-path list of every key reachable in
// v, including array indices as "[i]" segments (e.g. "items[0].name").
// Traversal visits object keys in the same lexicographically sorted
// order Canonicalize uses, so the returned paths are themselves
// deterministic regardless of the input map's iteration order.
func ExtractKeys(v any) ([]string, error) {
	shaped, err := toJSONShape(v)
	if err != nil {
		return nil, err
	}

	var out []string
	walkKeys(shaped, "", &out)
	return out, nil
}

func walkKeys(v any, prefix string, out *[]string) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			*out = append(*out, path)
			walkKeys(val[k], path, out)
		}
	case []any:
		for i, elem := range val {
			path := fmt.Sprintf("%s[%d]", prefix, i)
			*out = append(*out, path)
			walkKeys(elem, path, out)
		}
	}
}

// parsePath parses a dotted key path (as produced by ExtractKeys) into
// segments for redaction lookups.
func parsePath(path string) ([]pathSeg, error) {
	var segs []pathSeg

	i := 0
	for i < len(path) {
		switch path[i] {
		case '.':
			i++
		case '[':
			end := -1
			for j := i + 1; j < len(path); j++ {
				if path[j] == ']' {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, fmt.Errorf("codec: unterminated index in path %q", path)
			}
			idx, err := strconv.Atoi(path[i+1 : end])
			if err != nil {
				return nil, fmt.Errorf("codec: invalid array index in path %q: %w", path, err)
			}
			segs = append(segs, pathSeg{index: idx, isIndex: true})
			i = end + 1
		default:
			start := i
			for i < len(path) && path[i] != '.' && path[i] != '[' {
				i++
			}
			segs = append(segs, pathSeg{key: path[start:i]})
		}
	}

	return segs, nil
}
