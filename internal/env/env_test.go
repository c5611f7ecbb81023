package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toMap(kvs []string) map[string]string {
	m := map[string]string{}
	for k, v := range parsePairs(kvs) {
		m[k] = v
	}
	return m
}

func TestEnviron_LayersAndExpansion(t *testing.T) {
	e := New([]string{"HOME=/home/ark", "PATH=/bin", "RAW=${HOME}", "=bad", "noequals"})
	e.Apply(map[string]string{"PREFIX": "${HOME}/compat", "PATH": "/opt/proton:${PATH}"})
	e.Apply(map[string]string{"PREFIX": "${HOME}/steam", "MISSING": "${NOPE}/x"})

	got := toMap(e.Environ())
	assert.Equal(t, "/home/ark/steam", got["PREFIX"])
	assert.Equal(t, "/opt/proton:/bin", got["PATH"])
	assert.Equal(t, "${HOME}", got["RAW"], "base values are not expanded")
	assert.Equal(t, "${NOPE}/x", got["MISSING"])
	assert.NotContains(t, got, "")
	assert.NotContains(t, got, "noequals")

	v, ok := e.Lookup("PREFIX")
	assert.True(t, ok)
	assert.Equal(t, "${HOME}/steam", v)
}

func TestEnviron_Sorted(t *testing.T) {
	out := New([]string{"B=2", "A=1"}).Apply(map[string]string{"C": "3"}).Environ()
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, out)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proton.env")
	body := "# comment\n\nexport A=1\nB = \"two words\"\nC='x'\nnot a pair\n=empty\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	m, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "two words", "C": "x"}, m)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestApplyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proton.env")
	require.NoError(t, os.WriteFile(path, []byte("A=file\n"), 0o644))

	e := New([]string{"A=os"})
	require.NoError(t, e.ApplyFile(path))
	e.Apply(map[string]string{"B": "${A}-start"})
	got := toMap(e.Environ())
	assert.Equal(t, "file", got["A"])
	assert.Equal(t, "file-start", got["B"])
}
