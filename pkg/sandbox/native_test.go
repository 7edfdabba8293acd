package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeSandboxCreateAndGetFileRoundTrip(t *testing.T) {
	s, err := NewNativeSandbox(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Cleanup(true)

	require.NoError(t, s.CreateFileFromString("in.txt", "hello", false))

	got, err := s.GetFileToString("in.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestNativeSandboxCreateFileFromBytesSetsExecutableBit(t *testing.T) {
	s, err := NewNativeSandbox(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Cleanup(true)

	require.NoError(t, s.CreateFileFromBytes("run.sh", []byte("#!/bin/sh\n"), true))

	info, err := s.StatFile("run.sh")
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111)
}

func TestNativeSandboxGlobMatchesNestedFiles(t *testing.T) {
	s, err := NewNativeSandbox(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Cleanup(true)

	require.NoError(t, s.CreateFileFromString("tests/a.txt", "a", false))
	require.NoError(t, s.CreateFileFromString("tests/b.txt", "b", false))

	matches, err := s.Glob("tests/*.txt")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestNativeSandboxRemoveFile(t *testing.T) {
	s, err := NewNativeSandbox(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Cleanup(true)

	require.NoError(t, s.CreateFileFromString("x.txt", "x", false))
	require.NoError(t, s.RemoveFile("x.txt"))

	_, err = s.StatFile("x.txt")
	assert.Error(t, err)
}

func TestNativeSandboxCleanupRemovesRoot(t *testing.T) {
	s, err := NewNativeSandbox(t.TempDir(), nil)
	require.NoError(t, err)

	root := s.RootPath()
	require.NoError(t, s.Cleanup(true))

	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err))
}

func TestNativeSandboxHydrateLogsBeforeExecuteFails(t *testing.T) {
	s, err := NewNativeSandbox(t.TempDir(), nil)
	require.NoError(t, err)
	defer s.Cleanup(true)

	assert.Error(t, s.HydrateLogs())
}

func TestOutputFileSizeSumsStdoutAndStderr(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	errf := filepath.Join(dir, "err")
	require.NoError(t, os.WriteFile(out, []byte("1234"), 0o644))
	require.NoError(t, os.WriteFile(errf, []byte("12"), 0o644))

	total := outputFileSize(Params{StdoutPath: out, StderrPath: errf})
	assert.EqualValues(t, 6, total)
}
