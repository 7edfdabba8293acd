package stress

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/internal/envcfg"
	"github.com/rsalesc/robox.io-sub000/pkg/artifacts"
	"github.com/rsalesc/robox.io-sub000/pkg/cacher"
	"github.com/rsalesc/robox.io-sub000/pkg/checker"
	"github.com/rsalesc/robox.io-sub000/pkg/depcache"
	"github.com/rsalesc/robox.io-sub000/pkg/langrunner"
	"github.com/rsalesc/robox.io-sub000/pkg/pkgfile"
	"github.com/rsalesc/robox.io-sub000/pkg/sandbox"
	"github.com/rsalesc/robox.io-sub000/pkg/testcase"
	"go.uber.org/zap"
)

// Finder drives the stress loop (spec.md §4.11): repeatedly generate a
// random input, run the solutions/checkers named in a boolean expression
// against it, and record every input that makes the expression true.
type Finder struct {
	Env        *envcfg.Environment
	Package    *pkgfile.Package
	PackageDir string
	Cache      *depcache.Cache
	Log        *zap.Logger

	solutions map[string]langrunner.CompileResult
	checkers  map[string]*checker.Checker
}

func NewFinder(env *envcfg.Environment, pkg *pkgfile.Package, packageDir string, log *zap.Logger) *Finder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Finder{
		Env:        env,
		Package:    pkg,
		PackageDir: packageDir,
		Log:        log,
		solutions:  map[string]langrunner.CompileResult{},
		checkers:   map[string]*checker.Checker{},
	}
}

func (f *Finder) resolver() Resolver {
	res := Resolver{}
	if sol, ok := f.Package.MainSolution(); ok {
		res.MainSolution = sol.Path
		res.HasMainSolution = true
	}
	if f.Package.Checker != nil {
		res.MainChecker = f.Package.Checker.Path
		res.HasMainChecker = true
	}
	return res
}

// Parse builds the boolean expression tree, resolving any "$" wildcard
// against this finder's package.
func (f *Finder) Parse(expr string) (Node, error) {
	return Parse(expr, f.resolver())
}

func (f *Finder) solutionByPath(path string) (pkgfile.Solution, bool) {
	for _, sol := range f.Package.Solutions {
		if sol.Path == path {
			return sol, true
		}
	}
	return pkgfile.Solution{}, false
}

// resolveEvalChecker applies spec.md §4.11's checking-clause resolution:
// no ON clause means the package's default checker at THREE_WAY; ON :nil
// means no checker at all; otherwise the named checker at the given mode.
func (f *Finder) resolveEvalChecker(ev Eval) (ref *pkgfile.CodeItemRef, mode CheckingMode, has bool) {
	if ev.ExplicitNil {
		return nil, 0, false
	}
	if ev.HasChecking {
		if ev.Checker == "" {
			return nil, 0, false
		}
		return &pkgfile.CodeItemRef{Path: ev.Checker}, ev.Mode, true
	}
	if f.Package.Checker == nil {
		return nil, 0, false
	}
	return f.Package.Checker, ThreeWay, true
}

// NeedsExpectedOutput reports whether any eval clause in node resolves to
// a THREE_WAY checker, which requires a reference output from the
// package's main solution before the expression can be evaluated.
func (f *Finder) NeedsExpectedOutput(node Node) bool {
	for _, ev := range collectEvals(node) {
		_, mode, has := f.resolveEvalChecker(ev)
		if has && mode == ThreeWay {
			return true
		}
	}
	return false
}

// Validate checks that every solution/checker referenced in node exists,
// every "$" wildcard resolved against an actual main solution/checker, and
// that a THREE_WAY checking requirement is backed by a main solution.
func (f *Finder) Validate(node Node) error {
	for _, ev := range collectEvals(node) {
		if ev.SolutionWildcard && ev.Solution == "" {
			return errors.New("stress: '$' used as solution but the package has no main (ACCEPTED) solution")
		}
		if _, ok := f.solutionByPath(ev.Solution); !ok {
			return errors.Errorf("stress: unknown solution %q", ev.Solution)
		}
		if ev.HasChecking && !ev.ExplicitNil {
			if ev.CheckerWildcard && ev.Checker == "" {
				return errors.New("stress: '$' used as checker but the package declares no checker")
			}
		}
	}
	if f.NeedsExpectedOutput(node) {
		if _, ok := f.Package.MainSolution(); !ok {
			return errors.New("stress: expression requires three-way checking but the package has no main solution")
		}
	}
	return nil
}

func (f *Finder) compileSolution(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, path string) (langrunner.CodeItem, langrunner.CompileResult, error) {
	sol, ok := f.solutionByPath(path)
	if !ok {
		return langrunner.CodeItem{}, langrunner.CompileResult{}, errors.Errorf("stress: unknown solution %q", path)
	}
	item := langrunner.CodeItem{Path: filepath.Join(f.PackageDir, sol.Path), Language: sol.Language}
	if res, ok := f.solutions[path]; ok {
		return item, res, nil
	}
	res, err := langrunner.CompileItem(ctx, sb, c, f.Env, item, f.Cache, f.Log)
	if err != nil {
		return item, res, errors.Wrapf(err, "stress: compile solution %q", path)
	}
	if !res.Success {
		return item, res, errors.Errorf("stress: solution %q failed to compile: %s", path, res.Log)
	}
	f.solutions[path] = res
	return item, res, nil
}

func (f *Finder) compileChecker(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, ref *pkgfile.CodeItemRef) (*checker.Checker, error) {
	key := ""
	if ref != nil {
		key = ref.Path
	}
	if ch, ok := f.checkers[key]; ok {
		return ch, nil
	}
	ch, err := checker.Compile(ctx, sb, c, f.Env, ref, f.PackageDir, f.Cache, f.Log)
	if err != nil {
		return nil, errors.Wrapf(err, "stress: compile checker %q", key)
	}
	f.checkers[key] = ch
	return ch, nil
}

// stressParams mirrors runner.evaluate's basic-verification budget:
// the package's declared limits, doubled wall time over CPU time.
func (f *Finder) stressParams(tc pkgfile.Solution) sandbox.Params {
	return sandbox.Params{
		CPUTimeLimitMS:  f.Package.TimeLimitMS,
		WallTimeLimitMS: f.Package.TimeLimitMS * 2,
		AddressSpaceMiB: f.Package.MemoryLimitMiB,
		FileSizeKiB:     f.Package.OutputLimitKiB,
	}
}

func (f *Finder) runEval(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, ev Eval, inPath, expectedPath, workDir string) (FinderResult, error) {
	sol, ok := f.solutionByPath(ev.Solution)
	if !ok {
		return FinderResult{}, errors.Errorf("stress: unknown solution %q", ev.Solution)
	}
	item, compiled, err := f.compileSolution(ctx, sb, c, ev.Solution)
	if err != nil {
		return FinderResult{}, err
	}

	outPath := filepath.Join(workDir, fmt.Sprintf("%s.eval.out", sanitize(ev.Solution)))
	errPath := filepath.Join(workDir, fmt.Sprintf("%s.eval.err", sanitize(ev.Solution)))
	params := f.stressParams(sol)
	params.StdinPath = inPath
	params.StdoutPath = outPath
	params.StderrPath = errPath

	if err := langrunner.RunItem(ctx, sb, c, f.Env, item, compiled, artifacts.Plan{}, params, nil, f.Log); err != nil {
		return FinderResult{}, errors.Wrapf(err, "stress: run solution %q", ev.Solution)
	}

	runLog := sandbox.RunLog{
		ExitCode:        sb.GetExitCode(),
		ExitStatus:      sb.GetExitStatus(),
		Signal:          sb.GetKillingSignal(),
		TimeSeconds:     sb.GetExecutionTime(),
		WallTimeSeconds: sb.GetWallClockTime(),
		MemoryBytes:     sb.GetMemoryUsed(),
	}

	checkerRef, _, has := f.resolveEvalChecker(ev)
	if !has {
		verdict, terminal := checker.PreClassify(runLog, f.Package.TimeLimitMS)
		if !terminal {
			verdict = checker.Accepted
		}
		return FinderResult{Solution: ev.Solution, Outcome: verdict}, nil
	}

	ch, err := f.compileChecker(ctx, sb, c, checkerRef)
	if err != nil {
		return FinderResult{}, err
	}
	res, err := ch.Check(ctx, sb, c, runLog, f.Package.TimeLimitMS, f.Package.OutputLimitKiB, inPath, outPath, expectedPath, f.Log)
	if err != nil {
		return FinderResult{}, errors.Wrapf(err, "stress: check solution %q", ev.Solution)
	}
	return FinderResult{Solution: ev.Solution, Checker: checkerRef.Path, Outcome: res.Outcome}, nil
}

func sanitize(path string) string {
	r := []rune(path)
	for i, c := range r {
		if c == '/' || c == '\\' || c == '.' {
			r[i] = '_'
		}
	}
	return string(r)
}

// FindOptions configures one stress run.
type FindOptions struct {
	Generator    string
	ArgsTemplate string
	Expr         string
	Timeout      time.Duration
	MaxFindings  int
	WorkDir      string
}

// Finding is one input that made the expression true, plus the results
// that contributed to it.
type Finding struct {
	Seq       int
	InputPath string
	Outcome   FinderOutcome
}

// FindReport aggregates a stress run's findings.
type FindReport struct {
	Findings   []Finding
	Iterations int
}

// Find runs the driver loop described in spec.md §4.11: generate, run the
// main solution for a reference output if the expression needs one,
// evaluate the expression (memoized per solution-checker pair), and record
// every input whose evaluation is true, until findings or timeout expire.
func (f *Finder) Find(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, opts FindOptions) (*FindReport, error) {
	node, err := f.Parse(opts.Expr)
	if err != nil {
		return nil, err
	}
	if err := f.Validate(node); err != nil {
		return nil, err
	}
	needsRef := f.NeedsExpectedOutput(node)

	gen, ok := f.Package.Generator(opts.Generator)
	if !ok {
		return nil, errors.Errorf("stress: unknown generator %q", opts.Generator)
	}
	generators := []pkgfile.Generator{gen}
	compiledGens, err := testcase.CompileGenerators(ctx, sb, c, f.Env, f.PackageDir, generators, f.Cache, f.Log)
	if err != nil {
		return nil, err
	}

	var mainItem langrunner.CodeItem
	var mainCompiled langrunner.CompileResult
	if needsRef {
		mainSol, _ := f.Package.MainSolution()
		mainItem, mainCompiled, err = f.compileSolution(ctx, sb, c, mainSol.Path)
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, err
	}
	findingsDir := filepath.Join(opts.WorkDir, "findings")
	if err := os.MkdirAll(findingsDir, 0o755); err != nil {
		return nil, err
	}

	genOpts := &testcase.Options{
		Env:        f.Env,
		PackageDir: f.PackageDir,
		OutDir:     opts.WorkDir,
		Vars:       varsFromPackage(f.Package),
		Log:        f.Log,
	}

	report := &FindReport{}
	deadline := time.Now().Add(opts.Timeout)
	for (opts.MaxFindings <= 0 || len(report.Findings) < opts.MaxFindings) && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		report.Iterations++
		inPath := filepath.Join(opts.WorkDir, fmt.Sprintf("stress-%05d.in", report.Iterations))
		if err := testcase.RunGeneratorAt(ctx, sb, c, genOpts, compiledGens, generators, gen.Name, opts.ArgsTemplate, inPath); err != nil {
			return nil, err
		}

		var expectedPath string
		if needsRef {
			expectedPath = filepath.Join(opts.WorkDir, fmt.Sprintf("stress-%05d.out", report.Iterations))
			if err := f.runMainSolution(ctx, sb, c, mainItem, mainCompiled, inPath, expectedPath); err != nil {
				return nil, errors.Wrap(err, "stress: reference solution failed; cannot stress without a valid reference")
			}
		}

		memo := map[string]FinderResult{}
		run := func(ctx context.Context, ev Eval) (FinderResult, error) {
			return f.runEval(ctx, sb, c, ev, inPath, expectedPath, opts.WorkDir)
		}
		outcome, err := Evaluate(ctx, node, run, memo)
		if err != nil {
			return nil, err
		}

		if outcome.TruthValue {
			dest := filepath.Join(findingsDir, fmt.Sprintf("%04d.in", len(report.Findings)+1))
			if err := copyFinding(inPath, dest); err != nil {
				return nil, err
			}
			report.Findings = append(report.Findings, Finding{Seq: report.Iterations, InputPath: dest, Outcome: outcome})
		}
	}
	return report, nil
}

func (f *Finder) runMainSolution(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, item langrunner.CodeItem, compiled langrunner.CompileResult, inPath, outPath string) error {
	params := sandbox.Params{
		CPUTimeLimitMS:  f.Package.TimeLimitMS * 2,
		WallTimeLimitMS: f.Package.TimeLimitMS * 2,
		AddressSpaceMiB: f.Package.MemoryLimitMiB,
		StdinPath:       inPath,
		StdoutPath:      outPath,
	}
	if err := langrunner.RunItem(ctx, sb, c, f.Env, item, compiled, artifacts.Plan{}, params, nil, f.Log); err != nil {
		return err
	}
	if sb.GetExitStatus() != sandbox.ExitOK {
		return errors.Errorf("main solution did not exit OK: %s", sb.GetExitStatus())
	}
	return nil
}

func copyFinding(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func varsFromPackage(pkg *pkgfile.Package) testcase.Vars {
	vars := testcase.Vars{}
	for k, v := range pkg.Vars {
		vars[k] = testcase.ParseVarValue(v)
	}
	return vars
}
