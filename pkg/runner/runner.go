// Package runner implements the solution runner (spec.md §4.10): compile
// selected solutions and (optionally) the checker, stream per-testcase
// evaluations in group-first or solution-first order, and compute each
// solution's final PASS/FAIL verdict against its declared expected outcome.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/pkg/artifacts"
	"github.com/rsalesc/robox.io-sub000/pkg/cacher"
	"github.com/rsalesc/robox.io-sub000/pkg/checker"
	"github.com/rsalesc/robox.io-sub000/pkg/depcache"
	"github.com/rsalesc/robox.io-sub000/internal/envcfg"
	"github.com/rsalesc/robox.io-sub000/pkg/langrunner"
	"github.com/rsalesc/robox.io-sub000/pkg/pkgfile"
	"github.com/rsalesc/robox.io-sub000/pkg/sandbox"
	"github.com/rsalesc/robox.io-sub000/pkg/testcase"
	"go.uber.org/zap"
)

// VerificationLevel controls how aggressively a solution is re-verified:
// FULL doubles the CPU budget and enables the double-time-limit warning.
type VerificationLevel int

const (
	VerificationBasic VerificationLevel = iota
	VerificationFull
)

// Order picks whether the evaluation stream walks all groups of one
// solution before moving to the next (SolutionFirst) or all solutions of
// one group before moving to the next group (GroupFirst).
type Order int

const (
	GroupFirst Order = iota
	SolutionFirst
)

// Evaluation is one testcase's solution-vs-checker result.
type Evaluation struct {
	RunLog sandbox.RunLog
	Check  checker.Result
}

// EvaluationItem is one entry in the lazy evaluation stream.
type EvaluationItem struct {
	SolutionIndex int
	SolutionPath  string
	GroupName     string
	TestcaseIndex int
	Evaluation    Evaluation
	Err           error
}

// RunOptions configures one Run call.
type RunOptions struct {
	SolutionFilter []string // solution paths to run; nil/empty means all
	Level          VerificationLevel
	Check          bool
	Order          Order
	WorkDir        string // host directory for captured stdout/stderr
}

// Runner drives one problem package's solutions against a pre-generated
// set of testcase groups.
type Runner struct {
	Env        *envcfg.Environment
	Package    *pkgfile.Package
	PackageDir string
	Cache      *depcache.Cache
	Log        *zap.Logger
}

func New(env *envcfg.Environment, pkg *pkgfile.Package, packageDir string, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Env: env, Package: pkg, PackageDir: packageDir, Log: log}
}

func (r *Runner) selectSolutions(filter []string) []pkgfile.Solution {
	if len(filter) == 0 {
		return r.Package.Solutions
	}
	want := map[string]bool{}
	for _, f := range filter {
		want[f] = true
	}
	var out []pkgfile.Solution
	for _, sol := range r.Package.Solutions {
		if want[sol.Path] {
			out = append(out, sol)
		}
	}
	return out
}

// Run compiles the checker (if requested) and every selected solution,
// stopping on the first compile error, then starts a single goroutine
// producing a lazy EvaluationItem stream over groups.
func (r *Runner) Run(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, groups map[string][]testcase.Testcase, opts RunOptions) (<-chan EvaluationItem, error) {
	var ch *checker.Checker
	var err error
	if opts.Check {
		ch, err = checker.Compile(ctx, sb, c, r.Env, r.Package.Checker, r.PackageDir, r.Cache, r.Log)
		if err != nil {
			return nil, err
		}
	}

	solutions := r.selectSolutions(opts.SolutionFilter)
	items := make([]langrunner.CodeItem, len(solutions))
	compiled := make([]langrunner.CompileResult, len(solutions))
	for i, sol := range solutions {
		item := langrunner.CodeItem{Path: filepath.Join(r.PackageDir, sol.Path), Language: sol.Language}
		res, err := langrunner.CompileItem(ctx, sb, c, r.Env, item, r.Cache, r.Log)
		if err != nil {
			return nil, errors.Wrapf(err, "runner: compile solution %q", sol.Path)
		}
		if !res.Success {
			return nil, errors.Errorf("runner: solution %q failed to compile: %s", sol.Path, res.Log)
		}
		items[i] = item
		compiled[i] = res
	}

	groupNames := make([]string, 0, len(groups))
	seen := map[string]bool{}
	for _, g := range r.Package.TestGroups {
		if _, ok := groups[g.Name]; ok && !seen[g.Name] {
			groupNames = append(groupNames, g.Name)
			seen[g.Name] = true
		}
	}
	var rest []string
	for name := range groups {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	groupNames = append(groupNames, rest...)

	out := make(chan EvaluationItem)
	go func() {
		defer close(out)
		emit := func(si int, groupName string, ti int, tc testcase.Testcase) {
			eval, err := r.evaluate(ctx, sb, c, ch, items[si], compiled[si], opts, si, groupName, tc)
			out <- EvaluationItem{SolutionIndex: si, SolutionPath: solutions[si].Path, GroupName: groupName, TestcaseIndex: ti, Evaluation: eval, Err: err}
		}

		if opts.Order == SolutionFirst {
			for si := range solutions {
				for _, gname := range groupNames {
					for ti, tc := range groups[gname] {
						emit(si, gname, ti, tc)
					}
				}
			}
			return
		}
		for _, gname := range groupNames {
			for ti, tc := range groups[gname] {
				for si := range solutions {
					emit(si, gname, ti, tc)
				}
			}
		}
	}()

	return out, nil
}

func (r *Runner) evaluate(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, ch *checker.Checker, item langrunner.CodeItem, compiled langrunner.CompileResult, opts RunOptions, solutionIndex int, groupName string, tc testcase.Testcase) (Evaluation, error) {
	cpu := r.Package.TimeLimitMS
	if opts.Level >= VerificationFull {
		cpu *= 2
	}
	params := sandbox.Params{
		CPUTimeLimitMS:  cpu,
		WallTimeLimitMS: cpu * 2,
		AddressSpaceMiB: r.Package.MemoryLimitMiB,
		FileSizeKiB:     r.Package.OutputLimitKiB,
		StdinPath:       tc.InputPath,
	}
	// Scoped by solution index and group name (spec.md §6:
	// runs/<solution_index>/<group>/<tc>.out|.err), since testcase stems are
	// only unique within their own group's directory, not across groups.
	runDir := filepath.Join(opts.WorkDir, fmt.Sprintf("%d", solutionIndex), groupName)
	outPath := filepath.Join(runDir, fmt.Sprintf("%s.out", tc.Name))
	errPath := filepath.Join(runDir, fmt.Sprintf("%s.err", tc.Name))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Evaluation{}, errors.Wrap(err, "runner: create run output dir")
	}
	params.StdoutPath = outPath
	params.StderrPath = errPath

	if err := langrunner.RunItem(ctx, sb, c, r.Env, item, compiled, artifacts.Plan{}, params, nil, r.Log); err != nil {
		return Evaluation{}, errors.Wrap(err, "runner: run solution")
	}

	runLog := sandbox.RunLog{
		ExitCode:        sb.GetExitCode(),
		ExitStatus:      sb.GetExitStatus(),
		Signal:          sb.GetKillingSignal(),
		TimeSeconds:     sb.GetExecutionTime(),
		WallTimeSeconds: sb.GetWallClockTime(),
		MemoryBytes:     sb.GetMemoryUsed(),
	}

	if !opts.Check {
		verdict, terminal := checker.PreClassify(runLog, r.Package.TimeLimitMS)
		if !terminal {
			verdict = checker.Accepted
		}
		return Evaluation{RunLog: runLog, Check: checker.Result{Outcome: verdict}}, nil
	}

	res, err := ch.Check(ctx, sb, c, runLog, r.Package.TimeLimitMS, r.Package.OutputLimitKiB, tc.InputPath, outPath, tc.OutputPath, r.Log)
	if err != nil {
		return Evaluation{RunLog: runLog}, err
	}
	return Evaluation{RunLog: runLog, Check: res}, nil
}

// FinalVerdict is PASS or FAIL.
type FinalVerdict string

const (
	Pass FinalVerdict = "PASS"
	Fail FinalVerdict = "FAIL"
)

// ComputeVerdict implements spec.md §4.10's final-verdict rule: collect the
// bad (non-ACCEPTED) outcomes, compute the unmatched subset against the
// solution's expected outcome family, and PASS iff nothing is unmatched and
// either ACCEPTED is allowed or at least one bad outcome was produced.
// It also returns a non-empty warning when a TLE-expected solution only
// ever produced soft-TLE under FULL verification.
func ComputeVerdict(expected pkgfile.ExpectedOutcome, evals []Evaluation, level VerificationLevel, timeLimitMS int64) (FinalVerdict, string) {
	var bad []checker.Outcome
	for _, e := range evals {
		if e.Check.Outcome != checker.Accepted && e.Check.Outcome != "" {
			bad = append(bad, e.Check.Outcome)
		}
	}

	var unmatched []checker.Outcome
	for _, outcome := range bad {
		if !checker.Matches(expected, outcome) {
			unmatched = append(unmatched, outcome)
		}
	}

	pass := len(unmatched) == 0 && (expected == pkgfile.OutcomeAccepted || len(bad) > 0)
	if !pass {
		return Fail, ""
	}

	if expected == pkgfile.OutcomeTLE && level >= VerificationFull {
		onlyTLE := true
		var maxTime float64
		for _, e := range evals {
			if e.Check.Outcome != checker.Accepted && e.Check.Outcome != checker.TimeLimitExceeded {
				onlyTLE = false
			}
			if e.RunLog.TimeSeconds > maxTime {
				maxTime = e.RunLog.TimeSeconds
			}
		}
		if onlyTLE && maxTime*1000 < 2*float64(timeLimitMS) {
			return Pass, "solution passed at double the time limit"
		}
	}

	return Pass, ""
}
