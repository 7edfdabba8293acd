package pkgfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePackage = `
name: "A + B"
time_limit_ms: 1000
memory_limit_mib: 256
output_limit_kib: 4096
checker:
  path: checker.cpp
generators:
  - name: gen
    path: gen.cpp
solutions:
  - path: sol-ac.cpp
    outcome: ACCEPTED
  - path: sol-wa.cpp
    outcome: WRONG_ANSWER
test_groups:
  - name: gen1
    literals:
      - input: "1 2\n"
    generatorCalls:
      - generator: gen
        args: "123"
`

func writePackage(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "problem.judgebox.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesPackage(t *testing.T) {
	path := writePackage(t, samplePackage)
	pkg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "A + B", pkg.Name)
	assert.EqualValues(t, 1000, pkg.TimeLimitMS)
	require.Len(t, pkg.TestGroups, 1)
	assert.Equal(t, "gen1", pkg.TestGroups[0].Name)
}

func TestMainSolutionReturnsAcceptedSolution(t *testing.T) {
	path := writePackage(t, samplePackage)
	pkg, err := Load(path)
	require.NoError(t, err)

	main, ok := pkg.MainSolution()
	require.True(t, ok)
	assert.Equal(t, "sol-ac.cpp", main.Path)
}

func TestLoadRejectsMultipleAcceptedSolutions(t *testing.T) {
	const bad = `
name: "A + B"
time_limit_ms: 1000
solutions:
  - path: sol-ac.cpp
    outcome: ACCEPTED
  - path: sol-ac2.cpp
    outcome: ACCEPTED
`
	path := writePackage(t, bad)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingName(t *testing.T) {
	path := writePackage(t, `
time_limit_ms: 1000
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestGeneratorLookup(t *testing.T) {
	path := writePackage(t, samplePackage)
	pkg, err := Load(path)
	require.NoError(t, err)

	g, ok := pkg.Generator("gen")
	require.True(t, ok)
	assert.Equal(t, "gen.cpp", g.Path)

	_, ok = pkg.Generator("missing")
	assert.False(t, ok)
}
