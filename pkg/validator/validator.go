// Package validator implements the validator driver (spec.md §4.8): compile
// once per group, run per generated input with variable flags and a
// test-overview log path, and fold the log's min/max-hit markers into a
// per-field HitBounds used to surface coverage gaps.
package validator

import (
	"bufio"
	"context"
	"fmt"
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

// FieldHit records whether a validated field was ever observed at its
// declared minimum and/or maximum over a group's testcases.
type FieldHit struct {
	MinHit bool
	MaxHit bool
}

// HitBounds is the per-field coverage map, OR-combined across every
// testcase in a group.
type HitBounds map[string]FieldHit

// Merge OR-combines other into h in place.
func (h HitBounds) Merge(other HitBounds) {
	for field, hit := range other {
		existing := h[field]
		existing.MinHit = existing.MinHit || hit.MinHit
		existing.MaxHit = existing.MaxHit || hit.MaxHit
		h[field] = existing
	}
}

// Gaps returns the fields that never hit their minimum and/or maximum,
// i.e. the coverage gaps a package author should look at.
func (h HitBounds) Gaps() map[string]FieldHit {
	gaps := map[string]FieldHit{}
	for field, hit := range h {
		if !hit.MinHit || !hit.MaxHit {
			gaps[field] = hit
		}
	}
	return gaps
}

// overviewLogMarkerRE-equivalent lines look like "<field> min-value-hit" or
// "<field> max-value-hit", one marker per line.
const (
	minHitMarker = "min-value-hit"
	maxHitMarker = "max-value-hit"
)

// ParseOverviewLog reads a validator's test-overview log and extracts
// per-field min/max-hit markers into a HitBounds.
func ParseOverviewLog(path string) (HitBounds, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hits := HitBounds{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		name, marker := fields[0], fields[1]
		hit := hits[name]
		switch marker {
		case minHitMarker:
			hit.MinHit = true
		case maxHitMarker:
			hit.MaxHit = true
		default:
			continue
		}
		hits[name] = hit
	}
	return hits, scanner.Err()
}

// Result is the outcome of validating one input.
type Result struct {
	Success bool
	Message string
	Hits    HitBounds
}

// Validator wraps a compiled validator program.
type Validator struct {
	Env      *envcfg.Environment
	Item     langrunner.CodeItem
	Compiled langrunner.CompileResult
}

var defaultValidatorParams = sandbox.Params{
	CPUTimeLimitMS:  20000,
	WallTimeLimitMS: 20000,
	AddressSpaceMiB: 1024,
}

// Compile compiles the group or package validator named by ref.
func Compile(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, env *envcfg.Environment, ref pkgfile.CodeItemRef, packageDir string, cache *depcache.Cache, log *zap.Logger) (*Validator, error) {
	item := langrunner.CodeItem{Path: filepath.Join(packageDir, ref.Path), Language: ref.Language, ExtraFiles: ref.ExtraFiles}
	res, err := langrunner.CompileItem(ctx, sb, c, env, item, cache, log)
	if err != nil {
		return nil, errors.Wrap(err, "validator: compile validator")
	}
	if !res.Success {
		return nil, errors.Errorf("validator: validator failed to compile: %s", res.Log)
	}
	return &Validator{Env: env, Item: item, Compiled: res}, nil
}

// ValidateInput runs the validator over one generated input, passing
// --<k>=<v> for every package variable plus --testOverviewLogFileName. A
// nonzero exit is a validation failure; a zero exit yields the parsed
// HitBounds from the overview log.
func (v *Validator) ValidateInput(ctx context.Context, sb sandbox.Sandbox, c *cacher.FileCacher, inputPath, workDir string, vars map[string]string, log *zap.Logger) (Result, error) {
	logPath := filepath.Join(workDir, "validator.log")
	stderrFile, err := os.CreateTemp("", "judgebox-validator-stderr-*")
	if err != nil {
		return Result{}, err
	}
	stderrPath := stderrFile.Name()
	stderrFile.Close()
	defer os.Remove(stderrPath)

	params := defaultValidatorParams
	params.StdinPath = inputPath
	params.StderrPath = stderrPath

	argv := varFlags(vars)
	argv = append(argv, "--testOverviewLogFileName", logPath)

	if err := langrunner.RunItem(ctx, sb, c, v.Env, v.Item, v.Compiled, artifacts.Plan{}, params, argv, log); err != nil {
		return Result{}, errors.Wrap(err, "validator: run validator")
	}

	if sb.GetExitCode() != 0 {
		msgBytes, _ := os.ReadFile(stderrPath)
		return Result{Success: false, Message: string(msgBytes)}, nil
	}

	hits, err := ParseOverviewLog(logPath)
	if err != nil {
		return Result{Success: true, Hits: HitBounds{}}, nil
	}
	return Result{Success: true, Hits: hits}, nil
}

func varFlags(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	flags := make([]string, 0, len(keys))
	for _, k := range keys {
		flags = append(flags, fmt.Sprintf("--%s=%s", k, vars[k]))
	}
	return flags
}
