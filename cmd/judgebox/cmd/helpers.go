package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/pkg/pkgfile"
	"github.com/rsalesc/robox.io-sub000/pkg/testcase"
	"github.com/rsalesc/robox.io-sub000/pkg/validator"
	"go.uber.org/zap"
)

// varsFromPackage converts a package's declared string vars into the
// template-expansion values testcase.Options needs.
func varsFromPackage(pkg *pkgfile.Package) testcase.Vars {
	vars := testcase.Vars{}
	for k, v := range pkg.Vars {
		vars[k] = testcase.ParseVarValue(v)
	}
	return vars
}

// validateGroups runs the package's declared validator, if any, over every
// generated testcase's input. Subgroup-level validator overrides are a
// currently-unsupported refinement: GenerateGroups flattens its result to
// []testcase.Testcase with no group association, so only the package-level
// validator can be applied from here.
func validateGroups(ctx context.Context, a *app, dir string, pkg *pkgfile.Package, tcs []testcase.Testcase) error {
	if pkg.Validator == nil {
		return nil
	}
	v, err := validator.Compile(ctx, a.Sandbox, a.Cacher, a.Env, *pkg.Validator, dir, a.Cache, a.Log)
	if err != nil {
		return errors.Wrap(err, "compile package validator")
	}
	for _, tc := range tcs {
		res, err := v.ValidateInput(ctx, a.Sandbox, a.Cacher, tc.InputPath, a.RuntimeConfig.BuildDir, pkg.Vars, a.Log)
		if err != nil {
			return errors.Wrapf(err, "validate %q", tc.Name)
		}
		if !res.Success {
			return errors.Errorf("testcase %q failed validation: %s", tc.Name, res.Message)
		}
	}
	a.Log.Info("validated testcases", zap.Int("count", len(tcs)))
	return nil
}

// loadGroupedTestcases scans outDir for each top-level group's own
// subdirectory of previously-generated "*.in" files (written by build's
// GenerateGroups, one directory per group per spec.md §6) and regroups them
// by that directory's name, pairing each input with its "*.out" reference if
// one was generated. Subgroup naming (the "K-NAME-" stem prefix) is opaque
// here: every testcase under a group's directory, subgrouped or not, belongs
// to that one group as far as run/irun are concerned.
func loadGroupedTestcases(outDir string) (map[string][]testcase.Testcase, error) {
	matches, err := filepath.Glob(filepath.Join(outDir, "*", "*.in"))
	if err != nil {
		return nil, errors.Wrap(err, "glob generated testcases")
	}
	sort.Strings(matches)

	groups := map[string][]testcase.Testcase{}
	for _, inPath := range matches {
		groupName := filepath.Base(filepath.Dir(inPath))
		stem := strings.TrimSuffix(filepath.Base(inPath), ".in")
		tc := testcase.Testcase{Name: stem, InputPath: inPath}
		outPath := filepath.Join(filepath.Dir(inPath), stem+".out")
		if _, err := os.Stat(outPath); err == nil {
			tc.OutputPath = outPath
		}
		groups[groupName] = append(groups[groupName], tc)
	}
	if len(groups) == 0 {
		return nil, errors.Errorf("no generated testcases found under %s; run build first", outDir)
	}
	return groups, nil
}
