// Package pkgfile loads the declarative problem package schema
// (problem.judgebox.yml): generators, validators, solutions, checker, and
// testcase groups. This schema is consumed, not specified, per spec.md §1 —
// SPEC_FULL.md §4.12 fixes a concrete shape for it.
package pkgfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CodeItemRef is the on-disk representation of a code item reference.
type CodeItemRef struct {
	Path       string   `yaml:"path"`
	Language   string   `yaml:"language,omitempty"`
	ExtraFiles []string `yaml:"extraFiles,omitempty"`
}

// ExpectedOutcome is the declared family of verdicts a solution is allowed
// to produce (spec.md §3).
type ExpectedOutcome string

const (
	OutcomeAccepted  ExpectedOutcome = "ACCEPTED"
	OutcomeWrong     ExpectedOutcome = "WRONG_ANSWER"
	OutcomeRuntime   ExpectedOutcome = "RUNTIME_ERROR"
	OutcomeTLE       ExpectedOutcome = "TIME_LIMIT_EXCEEDED"
	OutcomeMLE       ExpectedOutcome = "MEMORY_LIMIT_EXCEEDED"
	OutcomeOLE       ExpectedOutcome = "OUTPUT_LIMIT_EXCEEDED"
	OutcomeIncorrect ExpectedOutcome = "INCORRECT"    // any of WA/RE/MLE/OLE
	OutcomeTLEOrRTE  ExpectedOutcome = "TLE_OR_RTE"
)

// Solution is one submitted program and its expected verdict family.
type Solution struct {
	Path     string          `yaml:"path"`
	Language string          `yaml:"language,omitempty"`
	Outcome  ExpectedOutcome `yaml:"outcome"`
}

// Generator is a named, compilable testcase-input generator.
type Generator struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// GeneratorCall is a single invocation of a named generator with literal
// argument text (before variable-template expansion).
type GeneratorCall struct {
	Generator string `yaml:"generator"`
	Args      string `yaml:"args"`
}

// LiteralTestcase is a testcase whose input is given inline in the package
// file rather than generated.
type LiteralTestcase struct {
	Name  string `yaml:"name,omitempty"`
	Input string `yaml:"input"`
}

// TestcaseGroup aggregates testcases from up to four ordered sources:
// literal testcases, glob-matched files, per-call generators, and a
// generator script (spec.md §3/§4.7).
type TestcaseGroup struct {
	Name            string            `yaml:"name"`
	Validator       *CodeItemRef      `yaml:"validator,omitempty"`
	Literals        []LiteralTestcase `yaml:"literals,omitempty"`
	GlobPatterns    []string          `yaml:"globs,omitempty"`
	GeneratorCalls  []GeneratorCall   `yaml:"generatorCalls,omitempty"`
	GeneratorScript string            `yaml:"generatorScript,omitempty"`
	Subgroups       []TestcaseGroup   `yaml:"subgroups,omitempty"`
}

// Package is the root problem-authoring document.
type Package struct {
	Name           string            `yaml:"name"`
	TimeLimitMS    int64             `yaml:"time_limit_ms"`
	MemoryLimitMiB int64             `yaml:"memory_limit_mib"`
	OutputLimitKiB int64             `yaml:"output_limit_kib"`
	Checker        *CodeItemRef      `yaml:"checker,omitempty"`
	Validator      *CodeItemRef      `yaml:"validator,omitempty"`
	Generators     []Generator       `yaml:"generators,omitempty"`
	Solutions      []Solution        `yaml:"solutions,omitempty"`
	Vars           map[string]string `yaml:"vars,omitempty"`
	TestGroups     []TestcaseGroup   `yaml:"test_groups,omitempty"`
}

// Load reads and parses a package file from path.
func Load(path string) (*Package, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pkgfile: read %s: %w", path, err)
	}
	var pkg Package
	if err := yaml.Unmarshal(raw, &pkg); err != nil {
		return nil, fmt.Errorf("pkgfile: parse %s: %w", path, err)
	}
	if err := pkg.Validate(); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// Validate checks basic structural invariants: required fields present,
// at most one ACCEPTED ("main") solution since build's reference-output
// generation relies on picking exactly one (spec.md §4.7).
func (p *Package) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pkgfile: package name is required")
	}
	if p.TimeLimitMS <= 0 {
		return fmt.Errorf("pkgfile: time_limit_ms must be positive")
	}
	mains := 0
	for _, sol := range p.Solutions {
		if sol.Outcome == OutcomeAccepted {
			mains++
		}
	}
	if mains > 1 {
		return fmt.Errorf("pkgfile: at most one ACCEPTED solution may exist (got %d)", mains)
	}
	return nil
}

// MainSolution returns the package's reference ACCEPTED solution, if any.
func (p *Package) MainSolution() (Solution, bool) {
	for _, sol := range p.Solutions {
		if sol.Outcome == OutcomeAccepted {
			return sol, true
		}
	}
	return Solution{}, false
}

// Generator looks up a named generator.
func (p *Package) Generator(name string) (Generator, bool) {
	for _, g := range p.Generators {
		if g.Name == name {
			return g, true
		}
	}
	return Generator{}, false
}
