package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Q
	}{
		{
			name: "single literal",
			in:   "alpha",
			want: Q{{{Key: "alpha"}}},
		},
		{
			name: "disjunction",
			in:   "alpha|beta",
			want: Q{{{Key: "alpha"}, {Key: "beta"}}},
		},
		{
			name: "conjunction of clauses",
			in:   "alpha|beta/~gamma",
			want: Q{
				{{Key: "alpha"}, {Key: "beta"}},
				{{Key: "gamma", Negated: true}},
			},
		},
		{
			name: "escaped key",
			in:   "a%2Fb|%7Ec",
			want: Q{{{Key: "a/b"}, {Key: "~c"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse("a//b")
	assert.ErrorIs(t, err, ErrEmptyClause)

	_, err = Parse("a|")
	assert.Error(t, err)

	_, err = Parse("~")
	assert.Error(t, err)

	_, err = Parse("a%zz")
	assert.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	qs := []Q{
		{{{Key: "alpha"}}},
		{{{Key: "alpha"}, {Key: "beta"}}, {{Key: "gamma", Negated: true}}},
		{{{Key: "with/slash"}, {Key: "with|pipe"}}},
		{{{Key: "~leading-tilde"}}},
		{{{Key: "~leading-tilde", Negated: true}}},
	}

	for _, q := range qs {
		t.Run(q.String(), func(t *testing.T) {
			back, err := Parse(q.String())
			require.NoError(t, err)
			assert.Equal(t, q, back)
		})
	}
}

func TestEval(t *testing.T) {
	q, err := Parse("a|b/~c")
	require.NoError(t, err)

	assert.True(t, q.MatchesKey("a"))
	assert.True(t, q.MatchesKey("b"))
	assert.False(t, q.MatchesKey("c"))
	assert.False(t, q.MatchesKey("d"))

	// Membership oracle over a key set rather than a single key.
	set := map[string]bool{"a": true, "c": true}
	has := func(k string) bool { return set[k] }
	assert.False(t, q.Eval(has)) // a present but c present too

	set = map[string]bool{"b": true}
	assert.True(t, q.Eval(has))

	assert.True(t, Q{}.Eval(has)) // vacuous
}

func TestKeys(t *testing.T) {
	q, err := Parse("a|b/~a/c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, q.Keys())
}
