package version

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Version
		str  string
	}{
		{"5", New(0, 0, 5, 0), "5.0"},
		{"5.2", New(0, 0, 5, 2), "5.2"},
		{"5.2.1", New(0, 5, 2, 1), "5.2.1"},
		{"5.2.1.9", New(5, 2, 1, 9), "5.2.1.9"},
		{" 1.3.1 ", New(0, 1, 3, 1), "1.3.1"},
		{"0.1.3.1", New(0, 1, 3, 1), "1.3.1"},
		{"0.0.4.7", New(0, 0, 4, 7), "4.7"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.str, got.String())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "a", "1..2", "1.2.3.4.5", "-1", "1.x"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
		})
	}
}

func TestCompareIsLexicographic(t *testing.T) {
	a := New(0, 0, 5, 0)
	b := New(0, 0, 6, 0)
	c := New(0, 1, 0, 0)

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.True(t, a.Less(c))
	assert.Equal(t, 0, a.Compare(New(0, 0, 5, 0)))
	assert.Equal(t, 1, New(1, 0, 0, 0).Compare(New(0, 9, 9, 9)))
	assert.Equal(t, -1, New(0, 1, 2, 3).Compare(New(0, 1, 2, 4)))
}

func TestFilter(t *testing.T) {
	f := MustParseFilter("130-132,150")
	for n := 0; n < 200; n++ {
		want := (n >= 130 && n <= 132) || n == 150
		assert.Equal(t, want, f.Accepts(n), "value %d", n)
	}
	assert.Equal(t, "130-132,150", f.String())

	spaced := MustParseFilter(" 1 - 3 , 7 ")
	assert.True(t, spaced.Accepts(2))
	assert.True(t, spaced.Accepts(7))
	assert.False(t, spaced.Accepts(4))
	assert.Equal(t, "1-3,7", spaced.String())

	star := MustParseFilter("*")
	assert.True(t, star.IsAny())
	for _, n := range []int{0, 1, 1000000} {
		assert.True(t, star.Accepts(n))
	}

	var zero Filter
	assert.True(t, zero.Accepts(42))
}

func TestFilterInvalid(t *testing.T) {
	for _, in := range []string{"x", "1,,2", "3-1", "1-", "-2", "1-a"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseFilter(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeConfiguration))
		})
	}
}

func TestRangeContains(t *testing.T) {
	r := MustRange("*", "1", "2-3", "*")
	assert.True(t, MustParse("1.2.0").Match(r))
	assert.True(t, MustParse("1.3.9").Match(r))
	assert.False(t, MustParse("1.4.0").Match(r))
	assert.False(t, MustParse("2.2.0").Match(r))
	assert.True(t, All.Contains(MustParse("9.9.9.9")))
	assert.True(t, Range{}.Contains(MustParse("1.0")))

	v := MustParse("2.1.0.4")
	assert.True(t, Pinned(v).Contains(v))
	assert.False(t, Pinned(v).Contains(MustParse("2.1.0.5")))
}

func TestSet(t *testing.T) {
	s := NewSet(MustParse("1.2.13"), MustParse("1.3.1"), MustParse("1.2.11"), MustParse("1.3.1"))
	assert.Equal(t, 3, s.Len())

	max, ok := s.Max()
	require.True(t, ok)
	assert.Equal(t, MustParse("1.3.1"), max)

	narrowed := s.Filter(MustRange("*", "*", "2", "*"))
	assert.Equal(t, "{1.2.11, 1.2.13}", narrowed.String())

	both := s.Intersect(NewSet(MustParse("1.2.13"), MustParse("9.0")))
	assert.Equal(t, []Version{MustParse("1.2.13")}, both.Versions())

	_, ok = NewSet().Max()
	assert.False(t, ok)
}

func TestTextEncoding(t *testing.T) {
	type doc struct {
		Version Version            `json:"version"`
		Sigs    map[Version]string `json:"sigs"`
		Range   Range              `json:"range"`
	}
	in := doc{
		Version: MustParse("1.3.1"),
		Sigs:    map[Version]string{MustParse("4.7"): "abc"},
		Range:   MustRange("*", "*", "130-132,150", "*"),
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.3.1","sigs":{"4.7":"abc"},"range":{"variant":"*","major":"*","minor":"130-132,150","patch":"*"}}`, string(b))

	var out doc
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in.Version, out.Version)
	assert.Equal(t, in.Sigs, out.Sigs)
	assert.True(t, out.Range.Minor.Accepts(131))
}

func ExampleParse() {
	for _, s := range []string{"5", "5.2", "5.2.1", "5.2.1.9"} {
		v := MustParse(s)
		fmt.Println(v.Components())
	}
	// Output:
	// [0 0 5 0]
	// [0 0 5 2]
	// [0 5 2 1]
	// [5 2 1 9]
}
