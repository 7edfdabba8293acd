// Package checker implements the checker driver (spec.md §4.9): RunLog
// pre-classification into early-terminal verdicts, output-limit
// enforcement, invocation of a compiled checker (or the built-in
// token-wise comparator), and the soft-TLE rewrite.
package checker

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/internal/envcfg"
	"github.com/rsalesc/robox.io-sub000/pkg/artifacts"
	"github.com/rsalesc/robox.io-sub000/pkg/cacher"
	"github.com/rsalesc/robox.io-sub000/pkg/depcache"
	"github.com/rsalesc/robox.io-sub000/pkg/langrunner"
	"github.com/rsalesc/robox.io-sub000/pkg/pkgfile"
	"github.com/rsalesc/robox.io-sub000/pkg/sandbox"
	"go.uber.org/zap"
)

// Outcome is an actual verdict produced by checking one solution run.
type Outcome string

const (
	Accepted            Outcome = "ACCEPTED"
	WrongAnswer         Outcome = "WRONG_ANSWER"
	RuntimeError        Outcome = "RUNTIME_ERROR"
	TimeLimitExceeded   Outcome = "TIME_LIMIT_EXCEEDED"
	MemoryLimitExceeded Outcome = "MEMORY_LIMIT_EXCEEDED"
	OutputLimitExceeded Outcome = "OUTPUT_LIMIT_EXCEEDED"
	JudgeFailed         Outcome = "JUDGE_FAILED"
	InternalError       Outcome = "INTERNAL_ERROR"
)

// Result is the outcome of one Check call.
type Result struct {
	Outcome      Outcome
	Message      string
	NoTLEOutcome Outcome // pre-rewrite verdict, set only when the soft-TLE rewrite fired
}

// Matches reports whether actual satisfies a package-declared expected
// outcome family (spec.md §3's ExpectedOutcome, including the INCORRECT
// and TLE_OR_RTE composite families).
func Matches(expected pkgfile.ExpectedOutcome, actual Outcome) bool {
	switch expected {
	case pkgfile.OutcomeAccepted:
		return actual == Accepted
	case pkgfile.OutcomeWrong:
		return actual == WrongAnswer
	case pkgfile.OutcomeRuntime:
		return actual == RuntimeError
	case pkgfile.OutcomeTLE:
		return actual == TimeLimitExceeded
	case pkgfile.OutcomeMLE:
		return actual == MemoryLimitExceeded
	case pkgfile.OutcomeOLE:
		return actual == OutputLimitExceeded
	case pkgfile.OutcomeIncorrect:
		return actual == WrongAnswer || actual == RuntimeError || actual == MemoryLimitExceeded || actual == OutputLimitExceeded
	case pkgfile.OutcomeTLEOrRTE:
		return actual == TimeLimitExceeded || actual == RuntimeError
	default:
		return false
	}
}

// PreClassify implements spec.md §4.9's RunLog pre-classification table.
// terminal is false only for ExitOK runs within the CPU budget, meaning
// the caller should fall through to the output check.
func PreClassify(runLog sandbox.RunLog, timeLimitMS int64) (outcome Outcome, terminal bool) {
	switch runLog.ExitStatus {
	case sandbox.ExitOK:
		if runLog.TimeSeconds*1000 > 2*float64(timeLimitMS) {
			return TimeLimitExceeded, true
		}
		return "", false
	case sandbox.ExitSignal, sandbox.ExitNonzero:
		return RuntimeError, true
	case sandbox.ExitCPUTimeout, sandbox.ExitWallTimeout:
		return TimeLimitExceeded, true
	case sandbox.ExitMemoryLimit:
		return MemoryLimitExceeded, true
	case sandbox.ExitOutputLimit:
		return OutputLimitExceeded, true
	case sandbox.ExitSandboxError:
		return InternalError, true
	default:
		return "", false
	}
}

// Checker wraps an optional compiled checker program. A nil Item means the
// built-in token-wise comparator is used instead.
type Checker struct {
	Env      *envcfg.Environment
	Item     *langrunner.CodeItem
	Compiled langrunner.CompileResult
}

// defaultCheckerParams is generous: the checker is a trusted
// package-authoring tool, not a judged submission.
var defaultCheckerParams = sandbox.Params{
	CPUTimeLimitMS:  20000,
	WallTimeLimitMS: 20000,
	AddressSpaceMiB: 1024,
}

// Compile compiles the package or group checker, if one is declared.
// A nil ref means Check should use the default token-wise comparator.
func Compile(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, env *envcfg.Environment, ref *pkgfile.CodeItemRef, packageDir string, cache *depcache.Cache, log *zap.Logger) (*Checker, error) {
	if ref == nil {
		return &Checker{}, nil
	}
	item := langrunner.CodeItem{Path: filepath.Join(packageDir, ref.Path), Language: ref.Language, ExtraFiles: ref.ExtraFiles}
	res, err := langrunner.CompileItem(ctx, sb, c, env, item, cache, log)
	if err != nil {
		return nil, errors.Wrap(err, "checker: compile checker")
	}
	if !res.Success {
		return nil, errors.Errorf("checker: checker failed to compile: %s", res.Log)
	}
	return &Checker{Env: env, Item: &item, Compiled: res}, nil
}

// Check applies the full spec.md §4.9 pipeline: pre-classification, output
// limit, checker invocation (or default comparator), and the unconditional
// soft-TLE rewrite (Open Question resolved in DESIGN.md).
func (ch *Checker) Check(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, runLog sandbox.RunLog, timeLimitMS, outputLimitKiB int64, inputPath, outputPath, expectedPath string, log *zap.Logger) (Result, error) {
	verdict, terminal := PreClassify(runLog, timeLimitMS)
	var msg string

	if !terminal {
		if outputLimitKiB > 0 {
			info, err := os.Stat(outputPath)
			if err == nil && info.Size() > outputLimitKiB*1024 {
				verdict = OutputLimitExceeded
				terminal = true
			}
		}
	}

	if !terminal {
		var err error
		if ch == nil || ch.Item == nil {
			verdict, err = defaultTokenCompare(outputPath, expectedPath)
			if err != nil {
				return Result{}, errors.Wrap(err, "checker: default comparator")
			}
		} else {
			verdict, msg, err = ch.runCheckerProgram(ctx, sb, c, inputPath, outputPath, expectedPath, log)
			if err != nil {
				return Result{}, errors.Wrap(err, "checker: run checker program")
			}
		}
	}

	result := Result{Outcome: verdict, Message: msg}
	if runLog.TimeSeconds*1000 >= float64(timeLimitMS) && verdict != TimeLimitExceeded {
		result.NoTLEOutcome = verdict
		result.Outcome = TimeLimitExceeded
	}
	return result, nil
}

func (ch *Checker) runCheckerProgram(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, inputPath, outputPath, expectedPath string, log *zap.Logger) (Outcome, string, error) {
	stderrFile, err := os.CreateTemp("", "judgebox-checker-stderr-*")
	if err != nil {
		return InternalError, "", err
	}
	stderrPath := stderrFile.Name()
	stderrFile.Close()
	defer os.Remove(stderrPath)

	params := defaultCheckerParams
	params.StderrPath = stderrPath

	if err := langrunner.RunItem(ctx, sb, c, ch.Env, *ch.Item, ch.Compiled, artifacts.Plan{}, params, []string{inputPath, outputPath, expectedPath}, log); err != nil {
		return InternalError, "", err
	}

	msgBytes, _ := os.ReadFile(stderrPath)
	msg := string(msgBytes)

	switch sb.GetExitCode() {
	case 0:
		return Accepted, msg, nil
	case 1, 2:
		return WrongAnswer, msg, nil
	case 3:
		return JudgeFailed, msg, nil
	default:
		return InternalError, msg, nil
	}
}

func defaultTokenCompare(outputPath, expectedPath string) (Outcome, error) {
	a, err := tokenize(outputPath)
	if err != nil {
		return InternalError, err
	}
	b, err := tokenize(expectedPath)
	if err != nil {
		return InternalError, err
	}
	if len(a) != len(b) {
		return WrongAnswer, nil
	}
	for i := range a {
		if a[i] != b[i] {
			return WrongAnswer, nil
		}
	}
	return Accepted, nil
}

func tokenize(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	scanner.Split(bufio.ScanWords)
	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	return tokens, scanner.Err()
}
