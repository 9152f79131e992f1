package truncate

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHead(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want string
	}{
		{name: "shorter than limit", text: "abc", n: 10, want: "abc"},
		{name: "exact", text: "abc", n: 3, want: "abc"},
		{name: "cut", text: "abcdef", n: 4, want: "abcd"},
		{name: "zero", text: "abc", n: 0, want: ""},
		{name: "negative", text: "abc", n: -1, want: ""},
		{name: "multibyte", text: "héllo wörld", n: 5, want: "héllo"},
		{name: "empty input", text: "", n: 5, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Head(tt.text, tt.n))
		})
	}
}

func TestAllocate_FourSources(t *testing.T) {
	sources := []string{
		strings.Repeat("a", 5000),
		strings.Repeat("b", 300),
		strings.Repeat("c", 1000),
		strings.Repeat("d", 1001),
	}

	out, err := Allocate(sources, 4000)
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, strings.Repeat("a", 1000), out[0])
	assert.Equal(t, sources[1], out[1], "short sources are kept whole")
	assert.Equal(t, sources[2], out[2])
	assert.Equal(t, strings.Repeat("d", 1000), out[3])
	for _, s := range out {
		assert.LessOrEqual(t, utf8.RuneCountInString(s), 1000)
	}
}

func TestAllocate_NoSources(t *testing.T) {
	out, err := Allocate(nil, 100)
	assert.ErrorIs(t, err, ErrNoSources)
	assert.Nil(t, out)

	_, err = PerSource(0, 100)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestAllocate_BudgetSmallerThanSources(t *testing.T) {
	out, err := Allocate([]string{"x", "y", "z"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "", ""}, out)
}

func TestAllocate_SumBound(t *testing.T) {
	sources := []string{
		strings.Repeat("α", 777),
		strings.Repeat("b", 3),
		"",
		strings.Repeat("c", 12345),
		strings.Repeat("ü", 91),
	}

	for _, budget := range []int{0, 1, 4, 5, 17, 100, 999, 4000, 20000, 100000} {
		out, err := Allocate(sources, budget)
		require.NoError(t, err)

		sum := 0
		for _, s := range out {
			sum += utf8.RuneCountInString(s)
		}
		assert.LessOrEqual(t, sum, budget, "budget %d", budget)
	}
}

func TestAllocate_Fairness(t *testing.T) {
	sources := []string{
		strings.Repeat("a", 10),
		strings.Repeat("b", 100000),
		strings.Repeat("c", 500),
	}

	per, err := PerSource(len(sources), 301)
	require.NoError(t, err)
	assert.Equal(t, 100, per)

	out, err := Allocate(sources, 301)
	require.NoError(t, err)
	assert.Equal(t, 10, len(out[0]))
	assert.Equal(t, per, len(out[1]))
	assert.Equal(t, per, len(out[2]))
}

func TestAllocate_PreservesOrder(t *testing.T) {
	sources := []string{"first", "second", "third"}
	out, err := Allocate(sources, 300)
	require.NoError(t, err)
	assert.Equal(t, sources, out)
}
