package codec

// Redact returns a deep copy of v with every value reachable at one of
// paths replaced by the literal Redacted. It is applied before
// canonicalization/hashing so the redacted snapshot hashes differently
// from the original, and the caller can record exactly which of the
// requested paths actually matched something (redactedKeys is a subset
// of paths; a path with nothing at it is silently skipped).
func Redact(v any, paths []string) (redacted any, redactedKeys []string, err error) {
	shaped, err := toJSONShape(v)
	if err != nil {
		return nil, nil, err
	}

	out := deepCopy(shaped)

	redactedKeys = make([]string, 0, len(paths))
	for _, path := range paths {
		segs, err := parsePath(path)
		if err != nil {
			return nil, nil, err
		}
		if len(segs) == 0 {
			continue
		}
		if redactInto(out, segs) {
			redactedKeys = append(redactedKeys, path)
		}
	}

	return out, redactedKeys, nil
}

func redactInto(current any, segs []pathSeg) bool {
	seg := segs[0]

	switch c := current.(type) {
	case map[string]any:
		if seg.isIndex {
			return false
		}
		child, ok := c[seg.key]
		if !ok {
			return false
		}
		if len(segs) == 1 {
			c[seg.key] = Redacted
			return true
		}
		return redactInto(child, segs[1:])
	case []any:
		if !seg.isIndex || seg.index < 0 || seg.index >= len(c) {
			return false
		}
		if len(segs) == 1 {
			c[seg.index] = Redacted
			return true
		}
		return redactInto(c[seg.index], segs[1:])
	default:
		return false
	}
}

// deepCopy recursively copies map[string]any/[]any structures so
// redaction never mutates the caller's original value.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return val
	}
}
