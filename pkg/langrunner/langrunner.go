// Package langrunner implements the code-item runner (spec.md §4.6): given a
// code item and its language's environment configuration, it renders
// compile/run command templates, merges sandbox limits, and drives compile
// and run through pkg/steps.
package langrunner

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/internal/envcfg"
	"github.com/rsalesc/robox.io-sub000/pkg/artifacts"
	"github.com/rsalesc/robox.io-sub000/pkg/cacher"
	"github.com/rsalesc/robox.io-sub000/pkg/depcache"
	"github.com/rsalesc/robox.io-sub000/pkg/digest"
	"github.com/rsalesc/robox.io-sub000/pkg/sandbox"
	"github.com/rsalesc/robox.io-sub000/pkg/steps"
	"go.uber.org/zap"
)

// errCompileFailed marks a non-cacheable compile failure passed through
// depcache.NoCache: the block protocol must not persist a fingerprint for a
// command that exited nonzero, but a failed user compile is still a normal
// CompileResult{Success: false}, not a Go error, once unwrapped back out.
var errCompileFailed = errors.New("langrunner: compile failed")

// CodeItem is a source file plus optional language override and extra
// compilation files (spec.md §4.6).
type CodeItem struct {
	Path           string
	Language       string // empty means infer from Path's extension
	ExtraFiles     []string
	CompilerOverride string
}

// ResolveLanguage infers the language name from the code item's extension
// when Language is unset.
func (ci CodeItem) ResolveLanguage(env *envcfg.Environment) (string, error) {
	if ci.Language != "" {
		return ci.Language, nil
	}
	ext := strings.TrimPrefix(filepath.Ext(ci.Path), ".")
	lang, ok := env.LanguageByExtension(ext)
	if !ok {
		return "", errors.Errorf("langrunner: cannot infer language for %q (ambiguous or unknown extension %q)", ci.Path, ext)
	}
	return lang.Name, nil
}

// isInterpreted reports whether language has no compile commands, meaning
// compileItem should hand back the source digest itself rather than a
// compiled executable.
func isInterpreted(env *envcfg.Environment, lang string) bool {
	return len(env.CompilationFor(lang).Commands) == 0
}

// clangLikeCompilers lists compiler binary names that need a vendored
// bits/stdc++.h injected, since clang's libc++ toolchain doesn't ship one.
var clangLikeCompilers = map[string]bool{
	"clang":   true,
	"clang++": true,
}

func isClangLike(compiler string) bool {
	base := filepath.Base(compiler)
	return clangLikeCompilers[base]
}

// renderCommand substitutes FileMapping placeholders into a command
// template string, mirroring the teacher's str.format-style substitution.
func renderCommand(tmpl string, m envcfg.FileMapping) string {
	r := strings.NewReplacer(
		"{compilable}", m.Compilable,
		"{executable}", m.Executable,
		"{input}", m.Input,
		"{output}", m.Output,
		"{error}", m.Error,
	)
	return r.Replace(tmpl)
}

func renderCommands(tmpls []string, m envcfg.FileMapping) []string {
	out := make([]string, len(tmpls))
	for i, t := range tmpls {
		out[i] = t
	}
	for i := range out {
		out[i] = renderCommand(out[i], m)
	}
	return out
}

func splitCommand(cmd string) []string {
	return strings.Fields(cmd)
}

func applySandboxOverride(base sandbox.Params, ov *envcfg.Sandbox) sandbox.Params {
	p := base
	if ov == nil {
		return p
	}
	if ov.TimeLimitMS != nil {
		p.CPUTimeLimitMS = *ov.TimeLimitMS
	}
	if ov.WallTimeMS != nil {
		p.WallTimeLimitMS = *ov.WallTimeMS
	}
	if ov.MemoryLimiMiB != nil {
		p.AddressSpaceMiB = *ov.MemoryLimiMiB
	}
	if ov.StackMiB != nil {
		p.StackMiB = *ov.StackMiB
	}
	if ov.MaxProcesses != nil {
		p.MaxProcesses = *ov.MaxProcesses
	}
	if ov.PreserveEnv != nil {
		p.PreserveEnv = *ov.PreserveEnv
	}
	for _, dir := range ov.MirrorDirs {
		p.MappedDirs = append(p.MappedDirs, sandbox.MappedDir{HostPath: dir, InnerPath: dir, ReadWrite: false})
	}
	return p
}

// CompileResult is the output of CompileItem: either a compiled executable
// digest, or (for interpreted languages) the source digest itself.
type CompileResult struct {
	Success    bool
	Log        string
	Executable digest.Holder
	Interpreted bool
}

// CompileItem compiles a code item under the environment's per-language
// compilation config, staging it in sb and routing the produced executable
// through c. For interpreted languages (no compile commands), it returns
// the staged source digest directly. When cache is non-nil, the compile
// commands are wrapped in the dependency-cache block protocol (spec.md
// §4.4): an unchanged source digest and rendered command set replays the
// cached executable digest instead of recompiling.
func CompileItem(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, env *envcfg.Environment, item CodeItem, cache *depcache.Cache, log *zap.Logger) (CompileResult, error) {
	lang, err := item.ResolveLanguage(env)
	if err != nil {
		return CompileResult{}, err
	}
	mapping := env.FileMappingFor(lang)
	compCfg := env.CompilationFor(lang)

	if isInterpreted(env, lang) {
		d, err := c.PutFileFromPath(item.Path, item.Path)
		if err != nil {
			return CompileResult{}, errors.Wrap(err, "langrunner: digest interpreted source")
		}
		res := CompileResult{Success: true, Interpreted: true}
		res.Executable.Set(d)
		return res, nil
	}

	commands := compCfg.Commands
	if item.CompilerOverride != "" && len(commands) > 0 {
		commands = substituteCompiler(commands, item.CompilerOverride)
	}
	rendered := renderCommands(commands, mapping)

	var cmds [][]string
	for _, rc := range rendered {
		cmds = append(cmds, splitCommand(rc))
	}

	params := applySandboxOverride(sandbox.Params{}, compCfg.Sandbox)

	holder := digest.NewHolder()
	plan := artifacts.Plan{
		Inputs: []artifacts.Input{
			{DestInSandbox: mapping.Compilable, Source: artifacts.InputSource{SrcPath: item.Path}},
		},
		Outputs: []artifacts.Output{
			{SrcInSandbox: mapping.Executable, Sink: artifacts.OutputSink{Holder: holder}, Executable: true, Hash: true},
		},
	}
	if len(commands) > 0 && isClangLike(firstToken(rendered[0])) {
		plan.Inputs = append(plan.Inputs, artifacts.Input{DestInSandbox: "bits/stdc++.h", Source: artifacts.InputSource{SrcPath: vendoredBitsStdCxxPath()}})
	}

	var res steps.CompileResult
	runFn := func() error {
		var rerr error
		res, rerr = steps.Compile(ctx, sb, c, cmds, params, plan, log)
		if rerr != nil {
			return rerr
		}
		if !res.Success {
			return depcache.NoCache(errCompileFailed)
		}
		return nil
	}

	if cache != nil {
		in := depcache.CacheInput{Commands: cmds, Artifacts: plan}
		if _, err := cache.Run(in, runFn); err != nil && !errors.Is(err, errCompileFailed) {
			return CompileResult{}, err
		}
	} else if err := runFn(); err != nil && !errors.Is(err, errCompileFailed) {
		return CompileResult{}, err
	}

	out := CompileResult{Success: res.Success, Log: res.Log}
	if res.Success {
		out.Executable.Set(holder.Value)
	}
	return out, nil
}

func firstToken(s string) string {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func substituteCompiler(commands []string, compiler string) []string {
	if len(commands) == 0 {
		return commands
	}
	out := make([]string, len(commands))
	copy(out, commands)
	parts := strings.Fields(out[0])
	if len(parts) > 0 {
		parts[0] = compiler
		out[0] = strings.Join(parts, " ")
	}
	return out
}

// vendoredBitsStdCxxPath is the path to a bundled bits/stdc++.h shipped
// alongside the binary for clang toolchains that don't provide one.
func vendoredBitsStdCxxPath() string {
	return filepath.Join("assets", "bits-stdc++.h")
}

// RunItem executes a compiled (or interpreted) code item once under the
// environment's per-language execution config. extraArgs, if any, are
// appended to the rendered run command (e.g. a generator's call arguments).
func RunItem(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, env *envcfg.Environment, item CodeItem, compiled CompileResult, plan artifacts.Plan, overrides sandbox.Params, extraArgs []string, log *zap.Logger) error {
	lang, err := item.ResolveLanguage(env)
	if err != nil {
		return err
	}
	mapping := env.FileMappingFor(lang)
	execCfg := env.ExecutionFor(lang)

	params := applySandboxOverride(overrides, execCfg.Sandbox)
	cmd := splitCommand(renderCommand(execCfg.Command, mapping))
	cmd = append(cmd, extraArgs...)

	inputDest := mapping.Executable
	if compiled.Interpreted {
		inputDest = mapping.Compilable
	}
	plan.Inputs = append([]artifacts.Input{
		{DestInSandbox: inputDest, Source: artifacts.InputSource{Digest: compiled.Executable.Value}, Executable: !compiled.Interpreted},
	}, plan.Inputs...)

	return steps.Run(ctx, sb, c, cmd, params, plan, log)
}
