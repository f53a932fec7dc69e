package guard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NormalizesTerms(t *testing.T) {
	t.Parallel()

	g := New([]string{"  Foo ", "", "foo", "BAR"}, 0)

	assert.Equal(t, []string{"foo", "bar"}, g.Terms())
	assert.Equal(t, DefaultMinChars, g.minChars)
}

func TestGuard_Check(t *testing.T) {
	t.Parallel()

	g := New([]string{"palabrota", "forbidden phrase"}, 6)

	tests := []struct {
		name         string
		transcript   string
		allowed      bool
		insufficient bool
		term         string
	}{
		{name: "clean", transcript: "Llamar a Juan mañana por su cumpleaños", allowed: true},
		{name: "banned exact", transcript: "esto es una palabrota", allowed: false, term: "palabrota"},
		{name: "banned case insensitive", transcript: "Some FORBIDDEN Phrase here", allowed: false, term: "forbidden phrase"},
		{name: "banned inside word", transcript: "unapalabrotaescondida", allowed: false, term: "palabrota"},
		{name: "short", transcript: "  hola ", allowed: true, insufficient: true},
		{name: "exactly min runes", transcript: "añoñoñ", allowed: true},
		{name: "five multibyte runes", transcript: "ñññññ", allowed: true, insufficient: true},
		{name: "empty", transcript: "", allowed: true, insufficient: true},
		{name: "short but banned", transcript: "palabrota", allowed: false, term: "palabrota"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := g.Check(tt.transcript)

			assert.Equal(t, tt.allowed, v.Allowed)
			assert.Equal(t, tt.insufficient, v.Insufficient)
			assert.Equal(t, tt.term, v.Term)
			if !tt.allowed {
				assert.Equal(t, RejectedReason, v.Reason)
				assert.NotContains(t, v.Reason, tt.term)
			}
		})
	}
}

func TestGuard_NoTermsAllowsEverything(t *testing.T) {
	t.Parallel()

	v := New(nil, 1).Check("anything at all")

	assert.True(t, v.Allowed)
	assert.False(t, v.Insufficient)
}

func TestSource_ReloadSwapsGuard(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "terms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("terms:\n  - alpha\n"), 0o644))

	src, err := NewSource([]string{"inline"}, path, 6)
	require.NoError(t, err)

	before := src.Guard()
	assert.ElementsMatch(t, []string{"inline", "alpha"}, before.Terms())

	require.NoError(t, os.WriteFile(path, []byte("terms:\n  - beta\n"), 0o644))
	require.NoError(t, src.Reload())

	assert.ElementsMatch(t, []string{"inline", "beta"}, src.Guard().Terms())
	assert.ElementsMatch(t, []string{"inline", "alpha"}, before.Terms(), "old guard must be untouched")
	assert.False(t, src.Check("say beta now").Allowed)
}

func TestSource_ReloadErrorKeepsPrevious(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "terms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("terms: [alpha]\n"), 0o644))

	src, err := NewSource(nil, path, 6)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("terms: [unclosed\n"), 0o644))
	require.Error(t, src.Reload())

	assert.Equal(t, []string{"alpha"}, src.Guard().Terms())
}

func TestNewSource_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewSource(nil, filepath.Join(t.TempDir(), "nope.yaml"), 6)
	require.Error(t, err)
}
