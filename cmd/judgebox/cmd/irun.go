package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/pkg/artifacts"
	"github.com/rsalesc/robox.io-sub000/pkg/langrunner"
	"github.com/rsalesc/robox.io-sub000/pkg/pkgfile"
	"github.com/rsalesc/robox.io-sub000/pkg/sandbox"
	"github.com/rsalesc/robox.io-sub000/pkg/testcase"
	"github.com/spf13/cobra"
)

func irunCmd() *cobra.Command {
	var (
		genName string
		genArgs string
	)

	cmd := &cobra.Command{
		Use:   "irun <solution>",
		Short: "Run one solution interactively against stdin or a one-off generator call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := packageDir("")
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
			sol, ok := solutionByPath(pkg, args[0])
			if !ok {
				return errors.Errorf("irun: unknown solution %q", args[0])
			}

			workDir := filepath.Join(a.RuntimeConfig.BuildDir, "irun")
			if err := os.MkdirAll(workDir, 0o755); err != nil {
				return err
			}
			inPath := filepath.Join(workDir, "input.txt")

			if genName != "" {
				gen, ok := pkg.Generator(genName)
				if !ok {
					return errors.Errorf("irun: unknown generator %q", genName)
				}
				compiled, err := testcase.CompileGenerators(cmd.Context(), a.Sandbox, a.Cacher, a.Env, dir, []pkgfile.Generator{gen}, a.Cache, a.Log)
				if err != nil {
					return err
				}
				if err := testcase.RunGeneratorAt(cmd.Context(), a.Sandbox, a.Cacher, &testcase.Options{
					Env:        a.Env,
					PackageDir: dir,
					OutDir:     workDir,
					Vars:       varsFromPackage(pkg),
					Log:        a.Log,
				}, compiled, []pkgfile.Generator{gen}, genName, genArgs, inPath); err != nil {
					return err
				}
			} else {
				f, err := os.Create(inPath)
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, "irun: reading stdin, Ctrl-D to end input")
				_, err = io.Copy(f, os.Stdin)
				f.Close()
				if err != nil {
					return err
				}
			}

			item := langrunner.CodeItem{Path: filepath.Join(dir, sol.Path), Language: sol.Language}
			res, err := langrunner.CompileItem(cmd.Context(), a.Sandbox, a.Cacher, a.Env, item, a.Cache, a.Log)
			if err != nil {
				return err
			}
			if !res.Success {
				return errors.Errorf("irun: solution %q failed to compile: %s", sol.Path, res.Log)
			}

			outPath := filepath.Join(workDir, "output.txt")
			params := sandbox.Params{
				CPUTimeLimitMS:  pkg.TimeLimitMS,
				WallTimeLimitMS: pkg.TimeLimitMS * 2,
				AddressSpaceMiB: pkg.MemoryLimitMiB,
				StdinPath:       inPath,
				StdoutPath:      outPath,
			}
			if err := langrunner.RunItem(cmd.Context(), a.Sandbox, a.Cacher, a.Env, item, res, artifacts.Plan{}, params, nil, a.Log); err != nil {
				return err
			}

			fmt.Printf("exit status: %s (%.3fs, %dKiB)\n", a.Sandbox.GetExitStatus(), a.Sandbox.GetExecutionTime(), a.Sandbox.GetMemoryUsed()/1024)
			out, err := os.ReadFile(outPath)
			if err != nil {
				return err
			}
			os.Stdout.Write(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&genName, "gen", "g", "", "generator name to produce the input instead of reading stdin")
	cmd.Flags().StringVarP(&genArgs, "args", "a", "", "args template passed to the generator")
	return cmd
}

func solutionByPath(pkg *pkgfile.Package, path string) (pkgfile.Solution, bool) {
	for _, sol := range pkg.Solutions {
		if sol.Path == path {
			return sol, true
		}
	}
	return pkgfile.Solution{}, false
}
