package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Redacted is the literal value substituted for any key path matched
// by a redaction set, per spec §4.1.
const Redacted = "[REDACTED]"

// Canonicalize produces the canonical, byte-identical JSON encoding of
// v: object keys sorted lexicographically, no extraneous whitespace,
// numbers in their shortest round-trip form. v may be a value already
// shaped like decoded JSON (map[string]any, []any, string, bool, nil,
// json.Number, or any Go numeric type) or an arbitrary struct, which is
// routed through a JSON marshal/unmarshal round trip first.
//
// Canonical output is a fixed point: CanonicalizeJSON(Canonicalize(x))
// returns the same bytes as Canonicalize(x).
func Canonicalize(v any) ([]byte, error) {
	decoded, err := toJSONShape(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, decoded, make(map[uintptr]bool)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalizeJSON decodes raw JSON bytes and re-encodes them
// canonically. Numbers are decoded with json.Number to avoid precision
// loss before re-normalization.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadInput, err)
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, v, make(map[uintptr]bool)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the lowercase-hex SHA-256 digest of the canonical
// encoding of v, along with the canonical bytes themselves.
func Hash(v any) (hash string, canonical []byte, err error) {
	canonical, err = Canonicalize(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), canonical, nil
}

// toJSONShape normalizes v into the value shapes encodeCanonical
// understands. Values already in JSON shape pass through untouched
// (preserving any caller-built cyclic maps/slices so they can be
// caught by encodeCanonical's cycle guard); everything else is routed
// through a json.Marshal/Unmarshal round trip, which also surfaces
// non-finite floats as marshal errors.
func toJSONShape(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, json.Number,
		map[string]any, []any,
		float32, float64,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadInput, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadInput, err)
	}
	return out, nil
}

// encodeCanonical writes the canonical encoding of v into buf. seen
// tracks the addresses of maps/slices currently being traversed on the
// current path, so a caller-constructed self-referential structure is
// reported as ErrBadInput instead of recursing forever.
func encodeCanonical(buf *bytes.Buffer, v any, seen map[uintptr]bool) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		encodeString(buf, val)
		return nil
	case json.Number:
		return encodeNumberString(buf, string(val))
	case float32:
		return encodeFloat(buf, float64(val))
	case float64:
		return encodeFloat(buf, val)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		buf.WriteString(fmt.Sprintf("%d", val))
		return nil
	case map[string]any:
		return encodeObject(buf, val, seen)
	case []any:
		return encodeArray(buf, val, seen)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrBadInput, v)
	}
}

func encodeObject(buf *bytes.Buffer, m map[string]any, seen map[uintptr]bool) error {
	addr := reflect.ValueOf(m).Pointer()
	if seen[addr] {
		return fmt.Errorf("%w: cyclic reference", ErrBadInput)
	}
	seen[addr] = true
	defer delete(seen, addr)

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encodeCanonical(buf, m[k], seen); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, a []any, seen map[uintptr]bool) error {
	if len(a) > 0 {
		addr := reflect.ValueOf(a).Pointer()
		if seen[addr] {
			return fmt.Errorf("%w: cyclic reference", ErrBadInput)
		}
		seen[addr] = true
		defer delete(seen, addr)
	}

	buf.WriteByte('[')
	for i, elem := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeCanonical(buf, elem, seen); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// encodeString writes a JSON-escaped, quoted string.
func encodeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func encodeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: non-finite number", ErrBadInput)
	}
	return encodeNumberString(buf, strconv.FormatFloat(f, 'g', -1, 64))
}

// encodeNumberString re-normalizes a textual number (from json.Number
// or strconv.FormatFloat) into its shortest round-trip canonical form.
func encodeNumberString(buf *bytes.Buffer, s string) error {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid number %q", ErrBadInput, s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: non-finite number", ErrBadInput)
	}

	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}

	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}
