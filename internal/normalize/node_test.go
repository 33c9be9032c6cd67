package normalize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"yfengine/internal/normalize"
)

func TestNode_Navigation(t *testing.T) {
	t.Parallel()

	n, err := normalize.Parse([]byte(`{"a":{"b":[{"c":{"raw":1.5,"fmt":"1.50"}},null]},"s":"x","d":"2024-01-02"}`))
	require.NoError(t, err)

	require.Equal(t, normalize.KindNumber, n.Path("a.b").Index(0).Get("c").Kind())
	f, ok := n.Get("a", "b").Index(0).Get("c").Float()
	require.True(t, ok)
	require.Equal(t, 1.5, f)

	require.Equal(t, normalize.KindNull, n.Path("a.b").Index(1).Kind())
	require.Equal(t, normalize.KindMissing, n.Path("a.b").Index(7).Get("c").Kind())
	require.False(t, n.Get("s").Get("nested").Exists())
	require.False(t, n.Get("s").NullFloat().Valid)
	require.Equal(t, "x", n.Get("s").NullString().String)

	d, ok := n.Get("d").Time(time.UTC)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), d)
}

func TestNode_IntRejectsFractions(t *testing.T) {
	t.Parallel()

	n := normalize.NodeOf(map[string]any{"i": 3.0, "f": 3.5})
	i, ok := n.Get("i").Int()
	require.True(t, ok)
	require.Equal(t, int64(3), i)
	_, ok = n.Get("f").Int()
	require.False(t, ok)
}

func TestSchema_Check(t *testing.T) {
	t.Parallel()

	schema := normalize.Schema{
		normalize.Required("name", normalize.KindString),
		normalize.Required("when", normalize.KindTime),
		normalize.Optional("value", normalize.KindNumber),
	}

	cases := map[string]struct {
		row   map[string]any
		field string
	}{
		"valid":            {row: map[string]any{"name": "a", "when": 1700000000.0, "value": map[string]any{}}},
		"missing required": {row: map[string]any{"when": 1700000000.0}, field: "name"},
		"null required":    {row: map[string]any{"name": nil, "when": 1700000000.0}, field: "name"},
		"wrong kind":       {row: map[string]any{"name": "a", "when": 1700000000.0, "value": "1"}, field: "value"},
		"bad date":         {row: map[string]any{"name": "a", "when": "soon"}, field: "when"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			v := schema.Check(normalize.NodeOf(tc.row))
			if tc.field == "" {
				require.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			require.Equal(t, tc.field, v.Field)
		})
	}

	require.NotNil(t, schema.Check(normalize.NodeOf([]any{})))
}
