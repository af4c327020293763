package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobforge/jobforge/pkg/codec"
)

func TestRedact_TopLevelKey(t *testing.T) {
	t.Parallel()

	in := map[string]any{"email": "a@b.com", "name": "A"}
	out, redacted, err := codec.Redact(in, []string{"email"})
	require.NoError(t, err)
	assert.Equal(t, []string{"email"}, redacted)

	m := out.(map[string]any)
	assert.Equal(t, codec.Redacted, m["email"])
	assert.Equal(t, "A", m["name"])
	assert.Equal(t, "a@b.com", in["email"], "original value must not be mutated")
}

func TestRedact_NestedAndArrayPaths(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"user": map[string]any{"ssn": "123-45-6789"},
		"items": []any{
			map[string]any{"card": "4111"},
			map[string]any{"card": "4222"},
		},
	}

	out, redacted, err := codec.Redact(in, []string{"user.ssn", "items[1].card"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user.ssn", "items[1].card"}, redacted)

	m := out.(map[string]any)
	assert.Equal(t, codec.Redacted, m["user"].(map[string]any)["ssn"])

	items := m["items"].([]any)
	assert.Equal(t, "4111", items[0].(map[string]any)["card"])
	assert.Equal(t, codec.Redacted, items[1].(map[string]any)["card"])
}

func TestRedact_MissingPathIsSkipped(t *testing.T) {
	t.Parallel()

	out, redacted, err := codec.Redact(map[string]any{"a": 1}, []string{"b.c"})
	require.NoError(t, err)
	assert.Empty(t, redacted)
	assert.Equal(t, map[string]any{"a": 1}, out)
}

func TestExtractKeys_SortedDottedPaths(t *testing.T) {
	t.Parallel()

	keys, err := codec.ExtractKeys(map[string]any{
		"b": 1,
		"a": map[string]any{"z": 1, "y": []any{1, 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a.y", "a.y[0]", "a.y[1]", "a.z", "b"}, keys)
}
