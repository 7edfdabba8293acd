package envcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEnv = `
defaultFileMapping:
  input: stdin
  output: stdout
defaultCompilation:
  commands: ["g++ {compilable} -o {executable}"]
languages:
  - name: cpp
    extension: cpp
    execution:
      command: "{executable}"
  - name: python
    extension: py
    execution:
      command: "python3 {compilable}"
      sandbox:
        timeLimit: 5000
sandbox: native
`

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "env.judgebox.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesLanguagesAndDefaults(t *testing.T) {
	path := writeEnv(t, sampleEnv)
	e, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "native", e.SandboxKind)
	assert.Len(t, e.Languages, 2)

	lang, ok := e.Language("cpp")
	assert.True(t, ok)
	assert.Equal(t, "cpp", lang.Extension)
}

func TestLanguageByExtensionUniqueMatch(t *testing.T) {
	path := writeEnv(t, sampleEnv)
	e, err := Load(path)
	require.NoError(t, err)

	lang, ok := e.LanguageByExtension("py")
	require.True(t, ok)
	assert.Equal(t, "python", lang.Name)
}

func TestCompilationForMergesDefaultsAndOverrides(t *testing.T) {
	path := writeEnv(t, sampleEnv)
	e, err := Load(path)
	require.NoError(t, err)

	cfg := e.CompilationFor("cpp")
	assert.Equal(t, []string{"g++ {compilable} -o {executable}"}, cfg.Commands)
	require.NotNil(t, cfg.Sandbox.TimeLimitMS)
	assert.EqualValues(t, 10000, *cfg.Sandbox.TimeLimitMS)
}

func TestExecutionForOverridesSandboxLimits(t *testing.T) {
	path := writeEnv(t, sampleEnv)
	e, err := Load(path)
	require.NoError(t, err)

	cfg := e.ExecutionFor("python")
	assert.Equal(t, "python3 {compilable}", cfg.Command)
	require.NotNil(t, cfg.Sandbox.TimeLimitMS)
	assert.EqualValues(t, 5000, *cfg.Sandbox.TimeLimitMS)
}

func TestFileMappingForUsesDefaultsWhenUnset(t *testing.T) {
	path := writeEnv(t, sampleEnv)
	e, err := Load(path)
	require.NoError(t, err)

	m := e.FileMappingFor("cpp")
	assert.Equal(t, "stdin", m.Input)
	assert.Equal(t, "executable", m.Executable)
}

func TestLoadRuntimeConfigAppliesDefaults(t *testing.T) {
	rc, err := LoadRuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, "default", rc.EnvironmentName)
	assert.Contains(t, rc.Path(), "default.judgebox.yml")
}
