package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveWallLimitMSAddsExtraTimeout(t *testing.T) {
	p := Params{WallTimeLimitMS: 1000, ExtraTimeoutMS: 500}
	assert.EqualValues(t, 1500, p.EffectiveWallLimitMS())
}

func TestEffectiveWallLimitMSZeroWhenWallUnset(t *testing.T) {
	p := Params{ExtraTimeoutMS: 500}
	assert.EqualValues(t, 0, p.EffectiveWallLimitMS())
}

func TestWriteThenReadMetaLogRoundTrip(t *testing.T) {
	path := t.TempDir() + "/meta.log"
	want := metaEntry{
		ExitCode:  0,
		HasSig:    false,
		Status:    []string{"TO", "WT"},
		Time:      1.234,
		TimeWall:  1.5,
		MemKiB:    2048,
		FileBytes: 10,
	}
	require := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	require(writeMetaLog(path, want))

	got, err := readMetaLog(path)
	require(err)
	assert.Equal(t, want.ExitCode, got.ExitCode)
	assert.Equal(t, want.Status, got.Status)
	assert.InDelta(t, want.Time, got.Time, 1e-9)
	assert.InDelta(t, want.TimeWall, got.TimeWall, 1e-9)
	assert.Equal(t, want.MemKiB, got.MemKiB)
	assert.Equal(t, want.FileBytes, got.FileBytes)
}

func TestExitStatusFromMetaPrecedence(t *testing.T) {
	cases := []struct {
		name   string
		status []string
		want   ExitStatus
	}{
		{"wall beats timeout", []string{"WT", "TO"}, ExitWallTimeout},
		{"timeout beats output", []string{"TO", "OL"}, ExitCPUTimeout},
		{"output beats memory", []string{"OL", "ML"}, ExitOutputLimit},
		{"memory beats signal", []string{"ML", "SG"}, ExitMemoryLimit},
		{"signal beats nonzero", []string{"SG", "RE"}, ExitSignal},
		{"nonzero alone", []string{"RE"}, ExitNonzero},
		{"none means ok", nil, ExitOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := exitStatusFromMeta(true, metaEntry{Status: tc.status})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExitStatusFromMetaSandboxError(t *testing.T) {
	assert.Equal(t, ExitSandboxError, exitStatusFromMeta(false, metaEntry{Status: []string{"RE"}}))
}

func TestBuildTimeitArgsRoundTripsThroughParse(t *testing.T) {
	p := Params{
		CPUTimeLimitMS:  2000,
		WallTimeLimitMS: 3000,
		ExtraTimeoutMS:  500,
		FileSizeKiB:     1024,
		StdinPath:       "/tmp/in",
		StdoutPath:      "/tmp/out",
		StderrPath:      "/tmp/err",
		Chdir:           "/tmp/box",
	}
	args := buildTimeitArgs("/tmp/meta.log", p, []string{"echo", "hi"})

	opt, err := parseTimeitArgs(args[1:])
	assert := assert.New(t)
	assert.NoError(err)
	assert.InDelta(2.0, opt.cpuTimeLimitSec, 1e-9)
	assert.EqualValues(1024, opt.fsizeKiB)
	assert.Equal("/tmp/in", opt.stdin)
	assert.Equal("/tmp/out", opt.stdout)
	assert.Equal("/tmp/err", opt.stderr)
	assert.Equal("/tmp/box", opt.chdir)
	assert.Equal([]string{"echo", "hi"}, opt.argv)
}
