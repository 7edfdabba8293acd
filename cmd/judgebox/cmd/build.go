package cmd

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/pkg/langrunner"
	"github.com/rsalesc/robox.io-sub000/pkg/pkgfile"
	"github.com/rsalesc/robox.io-sub000/pkg/testcase"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// packageFileName is the declarative package document every subcommand
// loads from the target directory.
const packageFileName = "problem.judgebox.yml"

func loadPackage(dir string) (*pkgfile.Package, error) {
	return pkgfile.Load(filepath.Join(dir, packageFileName))
}

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [package-dir]",
		Short: "Generate every testcase group and the reference outputs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := packageDir(argOrEmpty(args, 0))
			if err != nil {
				return err
			}
			a, err := newApp(verbose)
			if err != nil {
				return err
			}
			defer a.Close(false)

			pkg, err := loadPackage(dir)
			if err != nil {
				return err
			}

			outDir := filepath.Join(a.RuntimeConfig.BuildDir, "tests")
			compiledGens, err := testcase.CompileGenerators(cmd.Context(), a.Sandbox, a.Cacher, a.Env, dir, pkg.Generators, a.Cache, a.Log)
			if err != nil {
				return err
			}

			opts := &testcase.Options{
				Env:        a.Env,
				PackageDir: dir,
				OutDir:     outDir,
				Vars:       varsFromPackage(pkg),
				Log:        a.Log,
			}
			tcs, err := testcase.GenerateGroups(cmd.Context(), a.Sandbox, a.Cacher, opts, pkg.TestGroups, pkg.Generators, compiledGens)
			if err != nil {
				return err
			}
			a.Log.Info("generated testcases", zap.Int("count", len(tcs)))

			if err := validateGroups(cmd.Context(), a, dir, pkg, tcs); err != nil {
				return err
			}

			mainSol, ok := pkg.MainSolution()
			if !ok {
				a.Log.Warn("no ACCEPTED solution declared; skipping reference output generation")
				return nil
			}
			item := langrunner.CodeItem{Path: filepath.Join(dir, mainSol.Path), Language: mainSol.Language}
			res, err := langrunner.CompileItem(cmd.Context(), a.Sandbox, a.Cacher, a.Env, item, a.Cache, a.Log)
			if err != nil {
				return err
			}
			if !res.Success {
				return errors.Errorf("main solution %q failed to compile: %s", mainSol.Path, res.Log)
			}
			if err := testcase.GenerateReferenceOutputs(cmd.Context(), a.Sandbox, a.Cacher, a.Env, item, res, pkg.TimeLimitMS, pkg.MemoryLimitMiB, tcs, a.Log); err != nil {
				return err
			}
			a.Log.Info("generated reference outputs")
			return nil
		},
	}
	return cmd
}

func argOrEmpty(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
