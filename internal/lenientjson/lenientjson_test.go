package lenientjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	t.Run("strict JSON passes through", func(t *testing.T) {
		res, err := Extract(`[{"key": "information_extraction", "score": 3, "explanation": "good"}]`)
		require.NoError(t, err)
		require.True(t, res.IsArray())
		assert.Equal(t, int64(3), res.Array()[0].Get("score").Int())
	})

	t.Run("valid JSON with quoted words inside values is untouched", func(t *testing.T) {
		res, err := Extract(`[{"key": "source_quality", "score": 4, "explanation": "the 'best', most cited source"}]`)
		require.NoError(t, err)
		item := res.Array()[0]
		assert.Equal(t, "the 'best', most cited source", item.Get("explanation").String())
		assert.Equal(t, int64(4), item.Get("score").Int())
	})

	t.Run("valid JSON with apostrophes at colon boundaries is untouched", func(t *testing.T) {
		res, err := Extract(`{"explanation": "rated 'excellent': every reviewer's pick"}`)
		require.NoError(t, err)
		assert.Equal(t, "rated 'excellent': every reviewer's pick", res.Get("explanation").String())
	})

	t.Run("surrounding prose is discarded", func(t *testing.T) {
		input := "Here is my evaluation:\n```json\n" +
			`{"key": "source_quality", "score": 2}` +
			"\n```\nLet me know if you need more detail."
		res, err := Extract(input)
		require.NoError(t, err)
		assert.Equal(t, "source_quality", res.Get("key").String())
	})

	t.Run("single-quoted strings normalized", func(t *testing.T) {
		res, err := Extract(`[{'key': 'information_extraction', 'score': 4, 'explanation': 'complete'}]`)
		require.NoError(t, err)
		item := res.Array()[0]
		assert.Equal(t, "information_extraction", item.Get("key").String())
		assert.Equal(t, "complete", item.Get("explanation").String())
	})

	t.Run("escaped single quotes survive", func(t *testing.T) {
		res, err := Extract(`{'explanation': 'it\'s reliable'}`)
		require.NoError(t, err)
		assert.Equal(t, "it's reliable", res.Get("explanation").String())
	})

	t.Run("nested values keep their brackets", func(t *testing.T) {
		res, err := Extract(`prefix {"a": [1, 2, {"b": "c"}], "d": "e"} suffix`)
		require.NoError(t, err)
		assert.Equal(t, "c", res.Get("a.2.b").String())
		assert.Equal(t, "e", res.Get("d").String())
	})

	t.Run("brackets inside strings do not confuse the scanner", func(t *testing.T) {
		res, err := Extract(`{"text": "a ] tricky } string"}`)
		require.NoError(t, err)
		assert.Equal(t, "a ] tricky } string", res.Get("text").String())
	})

	t.Run("no JSON value is an error", func(t *testing.T) {
		_, err := Extract("I could not produce a score, sorry.")
		require.Error(t, err)
	})

	t.Run("unbalanced value is an error", func(t *testing.T) {
		_, err := Extract(`{"key": "truncated`)
		require.Error(t, err)
	})

	t.Run("irreparable input is rejected", func(t *testing.T) {
		_, err := Extract(`{key: value without any quoting}`)
		require.Error(t, err)
	})
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"key quotes", `{'key': 1}`, `{"key": 1}`},
		{"value quotes", `{"key": 'value'}`, `{"key": "value"}`},
		{"array elements", `['a', 'b']`, `["a", "b"]`},
		{"escaped quote unescaped", `{"k": "don\'t"}`, `{"k": "don't"}`},
		{"double quotes untouched", `{"k": "v"}`, `{"k": "v"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}
