// Package envcfg loads per-environment language and sandbox-limit
// configuration (spec.md §6 "configuration lives in per-environment files
// that declare languages, compile/run commands, and default limits").
package envcfg

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileMapping names the logical in-sandbox paths the code-item runner
// substitutes into compile/run command templates.
type FileMapping struct {
	Input      string `yaml:"input"`
	Output     string `yaml:"output"`
	Error      string `yaml:"error"`
	Compilable string `yaml:"compilable"`
	Executable string `yaml:"executable"`
}

// DefaultFileMapping mirrors the teacher's conventional in-sandbox names.
func DefaultFileMapping() FileMapping {
	return FileMapping{
		Input:      "stdin",
		Output:     "stdout",
		Error:      "stderr",
		Compilable: "compilable",
		Executable: "executable",
	}
}

// Sandbox is the per-language resource-limit override, mergeable with
// defaults at a shallow, field-by-field level.
type Sandbox struct {
	MaxProcesses  *int     `yaml:"maxProcesses"`
	TimeLimitMS   *int64   `yaml:"timeLimit"`
	WallTimeMS    *int64   `yaml:"wallTimeLimit"`
	MemoryLimiMiB *int64   `yaml:"memoryLimit"`
	StackMiB      *int64   `yaml:"stackLimit"`
	PreserveEnv   *bool    `yaml:"preserveEnv"`
	MirrorDirs    []string `yaml:"mirrorDirs"`
}

func mergeSandbox(base, override *Sandbox) *Sandbox {
	if override == nil {
		return base
	}
	if base == nil {
		return override
	}
	out := *base
	if override.MaxProcesses != nil {
		out.MaxProcesses = override.MaxProcesses
	}
	if override.TimeLimitMS != nil {
		out.TimeLimitMS = override.TimeLimitMS
	}
	if override.WallTimeMS != nil {
		out.WallTimeMS = override.WallTimeMS
	}
	if override.MemoryLimiMiB != nil {
		out.MemoryLimiMiB = override.MemoryLimiMiB
	}
	if override.StackMiB != nil {
		out.StackMiB = override.StackMiB
	}
	if override.PreserveEnv != nil {
		out.PreserveEnv = override.PreserveEnv
	}
	if len(override.MirrorDirs) > 0 {
		out.MirrorDirs = override.MirrorDirs
	}
	return &out
}

// CompilationConfig is the compile command list plus sandbox overrides for
// one language.
type CompilationConfig struct {
	Commands []string `yaml:"commands"`
	Sandbox  *Sandbox `yaml:"sandbox"`
}

// ExecutionConfig is the run command plus sandbox overrides for one
// language.
type ExecutionConfig struct {
	Command string   `yaml:"command"`
	Sandbox *Sandbox `yaml:"sandbox"`
}

// Language is one entry in Environment.Languages.
type Language struct {
	Name         string              `yaml:"name"`
	ReadableName string              `yaml:"readable_name"`
	Extension    string              `yaml:"extension"`
	Compilation  *CompilationConfig  `yaml:"compilation"`
	Execution    ExecutionConfig     `yaml:"execution"`
	FileMapping  *FileMapping        `yaml:"fileMapping"`
}

// Environment is the full per-environment configuration file: default
// mappings/compile/execute settings plus the list of supported languages.
type Environment struct {
	DefaultFileMapping *FileMapping        `yaml:"defaultFileMapping"`
	DefaultCompilation *CompilationConfig  `yaml:"defaultCompilation"`
	DefaultExecution   *ExecutionConfig    `yaml:"defaultExecution"`
	Languages          []Language          `yaml:"languages"`
	SandboxKind        string              `yaml:"sandbox"`
	Preset             string              `yaml:"preset"`
}

// Load reads and parses an environment file from path.
func Load(path string) (*Environment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("envcfg: read %s: %w", path, err)
	}
	var e Environment
	if err := yaml.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("envcfg: parse %s: %w", path, err)
	}
	if e.SandboxKind == "" {
		e.SandboxKind = "native"
	}
	if e.Preset == "" {
		e.Preset = "default"
	}
	return &e, nil
}

// RuntimeConfig is sourced purely from process environment variables — the
// paths and knobs that select *which* package/environment file to load and
// where the cache lives, as opposed to Environment's own YAML-declared
// language/limit settings. Spec.md §6 notes the core needs no environment
// variables; this struct exists for the ambient tooling around it (the CLI
// entry point) to locate its configuration without hardcoding paths.
type RuntimeConfig struct {
	EnvironmentName string `env:"JUDGEBOX_ENVIRONMENT" envDefault:"default"`
	EnvironmentDir  string `env:"JUDGEBOX_ENVIRONMENT_DIR" envDefault:".judgebox/envs"`
	BoxDir          string `env:"JUDGEBOX_BOX_DIR" envDefault:".box"`
	BuildDir        string `env:"JUDGEBOX_BUILD_DIR" envDefault:"build"`
}

// LoadRuntimeConfig reads RuntimeConfig from the process environment,
// applying defaults for anything unset.
func LoadRuntimeConfig() (RuntimeConfig, error) {
	var rc RuntimeConfig
	if err := env.Parse(&rc); err != nil {
		return RuntimeConfig{}, fmt.Errorf("envcfg: parse runtime config: %w", err)
	}
	return rc, nil
}

// Path resolves the environment file path for this runtime config.
func (rc RuntimeConfig) Path() string {
	return rc.EnvironmentDir + "/" + rc.EnvironmentName + ".judgebox.yml"
}

// Language looks up a language by name.
func (e *Environment) Language(name string) (Language, bool) {
	for _, l := range e.Languages {
		if l.Name == name {
			return l, true
		}
	}
	return Language{}, false
}

// LanguageByExtension resolves a language by unique file extension when
// exactly one language declares it.
func (e *Environment) LanguageByExtension(ext string) (Language, bool) {
	var match Language
	count := 0
	for _, l := range e.Languages {
		if l.Extension == ext {
			match = l
			count++
		}
	}
	if count == 1 {
		return match, true
	}
	return Language{}, false
}

// CompilationFor merges the environment default compilation config with the
// language-specific override.
func (e *Environment) CompilationFor(name string) CompilationConfig {
	lang, _ := e.Language(name)
	merged := CompilationConfig{
		Sandbox: &Sandbox{
			TimeLimitMS:   int64Ptr(10000),
			WallTimeMS:    int64Ptr(10000),
			MemoryLimiMiB: int64Ptr(512),
			PreserveEnv:   boolPtr(true),
			MirrorDirs:    []string{"/etc", "/usr"},
		},
	}
	for _, cfg := range []*CompilationConfig{e.DefaultCompilation, lang.Compilation} {
		if cfg == nil {
			continue
		}
		if len(cfg.Commands) > 0 {
			merged.Commands = cfg.Commands
		}
		merged.Sandbox = mergeSandbox(merged.Sandbox, cfg.Sandbox)
	}
	return merged
}

// ExecutionFor merges the environment default execution config with the
// language-specific override.
func (e *Environment) ExecutionFor(name string) ExecutionConfig {
	lang, _ := e.Language(name)
	var merged ExecutionConfig
	for _, cfg := range []*ExecutionConfig{e.DefaultExecution, &lang.Execution} {
		if cfg == nil || (cfg.Command == "" && cfg.Sandbox == nil) {
			continue
		}
		if cfg.Command != "" {
			merged.Command = cfg.Command
		}
		merged.Sandbox = mergeSandbox(merged.Sandbox, cfg.Sandbox)
	}
	return merged
}

// FileMappingFor merges the environment default file mapping with the
// language-specific override, field by field.
func (e *Environment) FileMappingFor(name string) FileMapping {
	lang, _ := e.Language(name)
	merged := DefaultFileMapping()
	if e.DefaultFileMapping != nil {
		merged = overrideMapping(merged, *e.DefaultFileMapping)
	}
	if lang.FileMapping != nil {
		merged = overrideMapping(merged, *lang.FileMapping)
	}
	return merged
}

func overrideMapping(base, override FileMapping) FileMapping {
	if override.Input != "" {
		base.Input = override.Input
	}
	if override.Output != "" {
		base.Output = override.Output
	}
	if override.Error != "" {
		base.Error = override.Error
	}
	if override.Compilable != "" {
		base.Compilable = override.Compilable
	}
	if override.Executable != "" {
		base.Executable = override.Executable
	}
	return base
}

func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }
