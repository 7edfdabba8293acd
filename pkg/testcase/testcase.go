// Package testcase drives generation of a problem package's testcases
// (spec.md §3/§4.7): per-group literal, glob, generator-call, and
// generator-script sources, plus reference-output generation through the
// package's main ACCEPTED solution.
package testcase

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

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

// Testcase is one generated input/(eventually)output pair.
type Testcase struct {
	Name       string // file stem, e.g. "003" or "2-edge-007"
	InputPath  string
	OutputPath string // empty until the reference solution has run
}

// Options bundles everything the group driver needs beyond the group
// itself: where generator/glob sources live on disk, where generated
// files land, the package's variable map, and a source of randomness.
type Options struct {
	Env        *envcfg.Environment
	PackageDir string // base dir that relative generator/glob paths resolve against
	OutDir     string // destination directory for NNN.in / NNN.out files
	Vars       Vars
	Rng        *rand.Rand
	Log        *zap.Logger
}

func (o *Options) rng() *rand.Rand {
	if o.Rng == nil {
		o.Rng = rand.New(rand.NewSource(1))
	}
	return o.Rng
}

func (o *Options) log() *zap.Logger {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	return o.Log
}

// fileStem implements spec.md §4.7's per-group naming: "NNN.in" for a group
// with no subgroups (its own directory already disambiguates it), or
// "K-NAME-NNN.in" for the K-th subgroup, numbered contiguously from zero.
func fileStem(subgroupIndex int, subgroupName string, seq int) string {
	if subgroupName == "" {
		return fmt.Sprintf("%03d", seq)
	}
	return fmt.Sprintf("%d-%s-%03d", subgroupIndex, subgroupName, seq)
}

// CompileGenerators compiles every named generator once, up front, so
// repeated generator calls across groups reuse a single executable.
func CompileGenerators(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, env *envcfg.Environment, packageDir string, generators []pkgfile.Generator, cache *depcache.Cache, log *zap.Logger) (map[string]langrunner.CompileResult, error) {
	out := make(map[string]langrunner.CompileResult, len(generators))
	for _, g := range generators {
		item := langrunner.CodeItem{Path: filepath.Join(packageDir, g.Path)}
		res, err := langrunner.CompileItem(ctx, sb, c, env, item, cache, log)
		if err != nil {
			return nil, errors.Wrapf(err, "testcase: compile generator %q", g.Name)
		}
		if !res.Success {
			return nil, errors.Errorf("testcase: generator %q failed to compile: %s", g.Name, res.Log)
		}
		out[g.Name] = res
	}
	return out, nil
}

// defaultGeneratorParams is deliberately generous: generators are trusted
// package-authoring tools, not contestant submissions under judgement.
var defaultGeneratorParams = sandbox.Params{
	CPUTimeLimitMS:  20000,
	WallTimeLimitMS: 20000,
	AddressSpaceMiB: 1024,
}

func runGeneratorCall(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, opts *Options, compiled map[string]langrunner.CompileResult, generators []pkgfile.Generator, genName, argsTemplate, stem string) (string, error) {
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return "", err
	}
	inPath := filepath.Join(opts.OutDir, stem+".in")
	if err := RunGeneratorAt(ctx, sb, c, opts, compiled, generators, genName, argsTemplate, inPath); err != nil {
		return "", err
	}
	return inPath, nil
}

// RunGeneratorAt expands argsTemplate against opts' variables and
// randomness, then runs the named generator with the resulting arguments,
// capturing its stdout at inPath. Exported so one-off callers (the stress
// finder's repeated ad hoc generator calls) can reuse the same expansion
// and invocation logic as group generation.
func RunGeneratorAt(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, opts *Options, compiled map[string]langrunner.CompileResult, generators []pkgfile.Generator, genName, argsTemplate, inPath string) error {
	expanded, err := Expand(argsTemplate, opts.Vars, opts.rng())
	if err != nil {
		return errors.Wrapf(err, "testcase: expand args for generator %q", genName)
	}
	res, ok := compiled[genName]
	if !ok {
		return errors.Errorf("testcase: unknown generator %q", genName)
	}
	var genPath string
	for _, g := range generators {
		if g.Name == genName {
			genPath = filepath.Join(opts.PackageDir, g.Path)
			break
		}
	}
	if genPath == "" {
		return errors.Errorf("testcase: generator %q has no registered path", genName)
	}

	item := langrunner.CodeItem{Path: genPath}
	var argv []string
	if expanded != "" {
		argv = strings.Fields(expanded)
	}
	params := defaultGeneratorParams
	params.StdoutPath = inPath
	if err := langrunner.RunItem(ctx, sb, c, opts.Env, item, res, artifacts.Plan{}, params, argv, opts.log()); err != nil {
		return errors.Wrapf(err, "testcase: run generator %q", genName)
	}
	if _, err := os.Stat(inPath); err != nil {
		return errors.Wrapf(err, "testcase: generator %q did not produce %s", genName, inPath)
	}
	return nil
}

// GenerateGroups generates testcases for each top-level group into its own
// directory (spec.md §6: build/tests/<group>/...). A group with declared
// subgroups writes its own direct content as the implicit "main" subgroup at
// index 0, followed by each declared subgroup at index 1, 2, ...; a group
// with no subgroups writes bare NNN.in files numbered contiguously from zero
// (rbx/box/generators.py's generate_testcases /
// _generate_testcases_for_subgroup). Subgroups are one level deep, matching
// the source schema: a declared subgroup's own Subgroups field, if any, is
// not descended into.
func GenerateGroups(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, opts *Options, groups []pkgfile.TestcaseGroup, generators []pkgfile.Generator, compiledGenerators map[string]langrunner.CompileResult) ([]Testcase, error) {
	var all []Testcase
	for _, g := range groups {
		groupOpts := *opts
		groupOpts.OutDir = filepath.Join(opts.OutDir, g.Name)
		tcs, err := generateGroupTree(ctx, sb, c, &groupOpts, g, generators, compiledGenerators)
		if err != nil {
			return nil, err
		}
		all = append(all, tcs...)
	}
	return all, nil
}

// generateGroupTree writes group g's testcases, and its declared subgroups
// if any, into opts.OutDir — always the top-level group's own directory,
// since subgroups share their parent's directory and are distinguished only
// by filename prefix.
func generateGroupTree(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, opts *Options, g pkgfile.TestcaseGroup, generators []pkgfile.Generator, compiledGenerators map[string]langrunner.CompileResult) ([]Testcase, error) {
	if len(g.Subgroups) == 0 {
		return generateOneGroup(ctx, sb, c, opts, 0, "", g, generators, compiledGenerators)
	}

	main := g
	main.Name = "main"
	main.Subgroups = nil
	subgroups := append([]pkgfile.TestcaseGroup{main}, g.Subgroups...)

	var all []Testcase
	for i, sub := range subgroups {
		tcs, err := generateOneGroup(ctx, sb, c, opts, i, sub.Name, sub, generators, compiledGenerators)
		if err != nil {
			return nil, err
		}
		all = append(all, tcs...)
	}
	return all, nil
}

func generateOneGroup(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, opts *Options, subgroupIndex int, subgroupName string, group pkgfile.TestcaseGroup, generators []pkgfile.Generator, compiledGenerators map[string]langrunner.CompileResult) ([]Testcase, error) {
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, err
	}
	seq := 0
	nextStem := func() string {
		stem := fileStem(subgroupIndex, subgroupName, seq)
		seq++
		return stem
	}
	var out []Testcase

	for _, lit := range group.Literals {
		stem := nextStem()
		inPath := filepath.Join(opts.OutDir, stem+".in")
		if err := os.WriteFile(inPath, []byte(lit.Input), 0o644); err != nil {
			return nil, errors.Wrapf(err, "testcase: write literal %q", stem)
		}
		out = append(out, Testcase{Name: stem, InputPath: inPath})
	}

	for _, pattern := range group.GlobPatterns {
		matches, err := filepath.Glob(filepath.Join(opts.PackageDir, pattern))
		if err != nil {
			return nil, errors.Wrapf(err, "testcase: glob %q", pattern)
		}
		sort.Strings(matches)
		for _, m := range matches {
			stem := nextStem()
			dest := filepath.Join(opts.OutDir, stem+".in")
			if err := copyFile(m, dest); err != nil {
				return nil, errors.Wrapf(err, "testcase: copy glob match %q", m)
			}
			out = append(out, Testcase{Name: stem, InputPath: dest})
		}
	}

	for _, call := range group.GeneratorCalls {
		stem := nextStem()
		inPath, err := runGeneratorCall(ctx, sb, c, opts, compiledGenerators, generators, call.Generator, call.Args, stem)
		if err != nil {
			return nil, err
		}
		out = append(out, Testcase{Name: stem, InputPath: inPath})
	}

	if group.GeneratorScript != "" {
		scanner := bufio.NewScanner(strings.NewReader(group.GeneratorScript))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			fields := strings.SplitN(line, " ", 2)
			genName := fields[0]
			args := ""
			if len(fields) > 1 {
				args = fields[1]
			}
			stem := nextStem()
			inPath, err := runGeneratorCall(ctx, sb, c, opts, compiledGenerators, generators, genName, args, stem)
			if err != nil {
				return nil, err
			}
			out = append(out, Testcase{Name: stem, InputPath: inPath})
		}
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "testcase: read generator script")
		}
	}

	return out, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// referenceTimeMultiplier doubles the package time limit when generating
// reference outputs, giving the accepted solution headroom over judged
// submissions' exact limit.
const referenceTimeMultiplier = 2

// GenerateReferenceOutputs runs the package's main solution against every
// testcase missing an OutputPath, capturing stdout as the reference answer.
func GenerateReferenceOutputs(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, env *envcfg.Environment, mainItem langrunner.CodeItem, compiled langrunner.CompileResult, timeLimitMS, memoryLimitMiB int64, tcs []Testcase, log *zap.Logger) error {
	params := sandbox.Params{
		CPUTimeLimitMS:  timeLimitMS * referenceTimeMultiplier,
		WallTimeLimitMS: timeLimitMS * referenceTimeMultiplier,
		AddressSpaceMiB: memoryLimitMiB,
	}
	for i := range tcs {
		tc := &tcs[i]
		if tc.OutputPath != "" {
			continue
		}
		outPath := strings.TrimSuffix(tc.InputPath, ".in") + ".out"
		runParams := params
		runParams.StdinPath = tc.InputPath
		runParams.StdoutPath = outPath

		if err := langrunner.RunItem(ctx, sb, c, env, mainItem, compiled, artifacts.Plan{}, runParams, nil, log); err != nil {
			return errors.Wrapf(err, "testcase: generate reference output for %q", tc.Name)
		}
		if sb.GetExitStatus() != sandbox.ExitOK {
			return errors.Errorf("testcase: main solution did not exit OK on %q: %s", tc.Name, sb.GetExitStatus())
		}
		tc.OutputPath = outPath
	}
	return nil
}
