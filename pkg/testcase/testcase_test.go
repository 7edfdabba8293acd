package testcase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rsalesc/robox.io-sub000/pkg/pkgfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStemNoSubgroupIsBare(t *testing.T) {
	assert.Equal(t, "003", fileStem(1, "", 3))
}

func TestFileStemSubgroupIncludesIndexAndName(t *testing.T) {
	assert.Equal(t, "2-edge-007", fileStem(2, "edge", 7))
}

func TestGenerateGroupsWritesLiteralTestcases(t *testing.T) {
	outDir := t.TempDir()
	opts := &Options{OutDir: outDir}
	groups := []pkgfile.TestcaseGroup{
		{
			Name: "samples",
			Literals: []pkgfile.LiteralTestcase{
				{Input: "1 2\n"},
				{Input: "3 4\n"},
			},
		},
	}

	tcs, err := GenerateGroups(context.Background(), nil, nil, opts, groups, nil, nil)
	require.NoError(t, err)
	require.Len(t, tcs, 2)

	assert.Equal(t, "000", tcs[0].Name)
	assert.Equal(t, filepath.Join(outDir, "samples", "000.in"), tcs[0].InputPath)
	data, err := os.ReadFile(tcs[0].InputPath)
	require.NoError(t, err)
	assert.Equal(t, "1 2\n", string(data))
}

func TestGenerateGroupsCopiesGlobMatches(t *testing.T) {
	pkgDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(pkgDir, "tests"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "tests", "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "tests", "b.txt"), []byte("b"), 0o644))

	outDir := t.TempDir()
	opts := &Options{OutDir: outDir, PackageDir: pkgDir}
	groups := []pkgfile.TestcaseGroup{
		{Name: "fromfiles", GlobPatterns: []string{"tests/*.txt"}},
	}

	tcs, err := GenerateGroups(context.Background(), nil, nil, opts, groups, nil, nil)
	require.NoError(t, err)
	require.Len(t, tcs, 2)
	for _, tc := range tcs {
		_, err := os.Stat(tc.InputPath)
		assert.NoError(t, err)
	}
}

// TestGenerateGroupsRenamesOwnContentToImplicitMainSubgroup covers
// spec.md §8 scenario 1: a group with declared subgroups writes its own
// direct content as the implicit "main" subgroup at index 0, then each
// declared subgroup at index 1, 2, ..., every subgroup's own sequence
// restarting at zero, all sharing the top-level group's one directory.
func TestGenerateGroupsRenamesOwnContentToImplicitMainSubgroup(t *testing.T) {
	outDir := t.TempDir()
	opts := &Options{OutDir: outDir}
	groups := []pkgfile.TestcaseGroup{
		{
			Name:     "gen1",
			Literals: []pkgfile.LiteralTestcase{{Input: "777\n"}},
			Subgroups: []pkgfile.TestcaseGroup{
				{Name: "edge", Literals: []pkgfile.LiteralTestcase{{Input: "y"}}},
			},
		},
	}

	tcs, err := GenerateGroups(context.Background(), nil, nil, opts, groups, nil, nil)
	require.NoError(t, err)
	require.Len(t, tcs, 2)
	assert.Equal(t, "0-main-000", tcs[0].Name)
	assert.Equal(t, filepath.Join(outDir, "gen1", "0-main-000.in"), tcs[0].InputPath)
	assert.Equal(t, "1-edge-000", tcs[1].Name)
	assert.Equal(t, filepath.Join(outDir, "gen1", "1-edge-000.in"), tcs[1].InputPath)
}
