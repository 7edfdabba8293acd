package validator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "validator.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseOverviewLogExtractsMarkers(t *testing.T) {
	path := writeLog(t, "n min-value-hit\nn max-value-hit\nm min-value-hit\n")
	hits, err := ParseOverviewLog(path)
	require.NoError(t, err)

	assert.True(t, hits["n"].MinHit)
	assert.True(t, hits["n"].MaxHit)
	assert.True(t, hits["m"].MinHit)
	assert.False(t, hits["m"].MaxHit)
}

func TestParseOverviewLogIgnoresMalformedLines(t *testing.T) {
	path := writeLog(t, "garbage line here\nn min-value-hit\n")
	hits, err := ParseOverviewLog(path)
	require.NoError(t, err)
	assert.True(t, hits["n"].MinHit)
	assert.NotContains(t, hits, "garbage")
}

func TestHitBoundsMergeIsOR(t *testing.T) {
	a := HitBounds{"n": {MinHit: true, MaxHit: false}}
	b := HitBounds{"n": {MinHit: false, MaxHit: true}, "m": {MinHit: true}}
	a.Merge(b)

	assert.True(t, a["n"].MinHit)
	assert.True(t, a["n"].MaxHit)
	assert.True(t, a["m"].MinHit)
}

func TestHitBoundsGapsReportsIncompleteFields(t *testing.T) {
	h := HitBounds{
		"n": {MinHit: true, MaxHit: true},
		"m": {MinHit: true, MaxHit: false},
	}
	gaps := h.Gaps()
	assert.NotContains(t, gaps, "n")
	assert.Contains(t, gaps, "m")
}

func TestVarFlagsSortedAndFormatted(t *testing.T) {
	flags := varFlags(map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, []string{"--a=1", "--b=2"}, flags)
}
