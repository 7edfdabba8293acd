package checker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rsalesc/robox.io-sub000/pkg/pkgfile"
	"github.com/rsalesc/robox.io-sub000/pkg/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreClassifySignalIsRuntimeError(t *testing.T) {
	out, terminal := PreClassify(sandbox.RunLog{ExitStatus: sandbox.ExitSignal}, 1000)
	assert.True(t, terminal)
	assert.Equal(t, RuntimeError, out)
}

func TestPreClassifyCPUTimeoutIsTLE(t *testing.T) {
	out, terminal := PreClassify(sandbox.RunLog{ExitStatus: sandbox.ExitCPUTimeout}, 1000)
	assert.True(t, terminal)
	assert.Equal(t, TimeLimitExceeded, out)
}

func TestPreClassifyMemoryLimit(t *testing.T) {
	out, terminal := PreClassify(sandbox.RunLog{ExitStatus: sandbox.ExitMemoryLimit}, 1000)
	assert.True(t, terminal)
	assert.Equal(t, MemoryLimitExceeded, out)
}

func TestPreClassifyOutputLimit(t *testing.T) {
	out, terminal := PreClassify(sandbox.RunLog{ExitStatus: sandbox.ExitOutputLimit}, 1000)
	assert.True(t, terminal)
	assert.Equal(t, OutputLimitExceeded, out)
}

func TestPreClassifySandboxErrorIsInternal(t *testing.T) {
	out, terminal := PreClassify(sandbox.RunLog{ExitStatus: sandbox.ExitSandboxError}, 1000)
	assert.True(t, terminal)
	assert.Equal(t, InternalError, out)
}

func TestPreClassifyOKWithinBudgetFallsThrough(t *testing.T) {
	_, terminal := PreClassify(sandbox.RunLog{ExitStatus: sandbox.ExitOK, TimeSeconds: 0.5}, 1000)
	assert.False(t, terminal)
}

func TestPreClassifyOKOverDoubleBudgetIsHardTLE(t *testing.T) {
	out, terminal := PreClassify(sandbox.RunLog{ExitStatus: sandbox.ExitOK, TimeSeconds: 2.5}, 1000)
	assert.True(t, terminal)
	assert.Equal(t, TimeLimitExceeded, out)
}

func TestMatchesIncorrectFamily(t *testing.T) {
	assert.True(t, Matches(pkgfile.OutcomeIncorrect, WrongAnswer))
	assert.True(t, Matches(pkgfile.OutcomeIncorrect, RuntimeError))
	assert.True(t, Matches(pkgfile.OutcomeIncorrect, MemoryLimitExceeded))
	assert.True(t, Matches(pkgfile.OutcomeIncorrect, OutputLimitExceeded))
	assert.False(t, Matches(pkgfile.OutcomeIncorrect, Accepted))
}

func TestMatchesTLEOrRTEFamily(t *testing.T) {
	assert.True(t, Matches(pkgfile.OutcomeTLEOrRTE, TimeLimitExceeded))
	assert.True(t, Matches(pkgfile.OutcomeTLEOrRTE, RuntimeError))
	assert.False(t, Matches(pkgfile.OutcomeTLEOrRTE, WrongAnswer))
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultTokenCompareAccepted(t *testing.T) {
	out := writeFile(t, "1 2   3\n")
	exp := writeFile(t, "1 2 3")
	verdict, err := defaultTokenCompare(out, exp)
	require.NoError(t, err)
	assert.Equal(t, Accepted, verdict)
}

func TestDefaultTokenCompareWrongAnswer(t *testing.T) {
	out := writeFile(t, "1 2 3")
	exp := writeFile(t, "1 2 4")
	verdict, err := defaultTokenCompare(out, exp)
	require.NoError(t, err)
	assert.Equal(t, WrongAnswer, verdict)
}

func TestCheckAppliesSoftTLERewrite(t *testing.T) {
	ch := &Checker{}
	out := writeFile(t, "hi")
	exp := writeFile(t, "hi")
	runLog := sandbox.RunLog{ExitStatus: sandbox.ExitOK, TimeSeconds: 1.2}
	res, err := ch.Check(nil, nil, nil, runLog, 1000, 0, "", out, exp, nil)
	require.NoError(t, err)
	assert.Equal(t, TimeLimitExceeded, res.Outcome)
	assert.Equal(t, Accepted, res.NoTLEOutcome)
}

func TestCheckNoRewriteWhenWithinBudget(t *testing.T) {
	ch := &Checker{}
	out := writeFile(t, "hi")
	exp := writeFile(t, "hi")
	runLog := sandbox.RunLog{ExitStatus: sandbox.ExitOK, TimeSeconds: 0.1}
	res, err := ch.Check(nil, nil, nil, runLog, 1000, 0, "", out, exp, nil)
	require.NoError(t, err)
	assert.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, Outcome(""), res.NoTLEOutcome)
}

func TestCheckOutputLimitExceeded(t *testing.T) {
	ch := &Checker{}
	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'x'
	}
	out := writeFile(t, string(big))
	exp := writeFile(t, "expected")
	runLog := sandbox.RunLog{ExitStatus: sandbox.ExitOK, TimeSeconds: 0.01}

	res, err := ch.Check(nil, nil, nil, runLog, 1000, 1, "", out, exp, nil)
	require.NoError(t, err)
	assert.Equal(t, OutputLimitExceeded, res.Outcome)
}
