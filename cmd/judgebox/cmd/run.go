package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/pkg/pkgfile"
	"github.com/rsalesc/robox.io-sub000/pkg/runner"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var (
		outcomeOverride string
		noCheck         bool
		detailed        bool
	)

	cmd := &cobra.Command{
		Use:   "run [solution...]",
		Short: "Run solutions against the generated testcases and compute their verdict",
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

			outDir := filepath.Join(a.RuntimeConfig.BuildDir, "tests")
			groups, err := loadGroupedTestcases(outDir)
			if err != nil {
				return err
			}

			r := runner.New(a.Env, pkg, dir, a.Log)
			r.Cache = a.Cache

			runOpts := runner.RunOptions{
				SolutionFilter: args,
				Level:          runner.VerificationFull,
				Check:          !noCheck,
				Order:          runner.SolutionFirst,
				WorkDir:        filepath.Join(a.RuntimeConfig.BuildDir, "run"),
			}
			items, err := r.Run(cmd.Context(), a.Sandbox, a.Cacher, groups, runOpts)
			if err != nil {
				return err
			}

			type accum struct {
				path   string
				evals  []runner.Evaluation
				expect pkgfile.ExpectedOutcome
			}
			expectOverride := pkgfile.ExpectedOutcome(strings.ToUpper(outcomeOverride))

			bySolution := map[string]*accum{}
			var order []string
			for _, sol := range pkg.Solutions {
				if !selected(args, sol.Path) {
					continue
				}
				expect := sol.Outcome
				if outcomeOverride != "" {
					expect = expectOverride
				}
				bySolution[sol.Path] = &accum{path: sol.Path, expect: expect}
				order = append(order, sol.Path)
			}

			allPassed := true
			for item := range items {
				if item.Err != nil {
					return errors.Wrapf(item.Err, "run solution %q", item.SolutionPath)
				}
				acc, ok := bySolution[item.SolutionPath]
				if !ok {
					continue
				}
				acc.evals = append(acc.evals, item.Evaluation)
				if detailed {
					fmt.Printf("%-30s %-20s %-12s %s\n", item.SolutionPath, item.GroupName, item.Evaluation.Check.Outcome, item.Evaluation.Check.Message)
				}
			}

			for _, path := range order {
				acc := bySolution[path]
				verdict, warning := runner.ComputeVerdict(acc.expect, acc.evals, runOpts.Level, pkg.TimeLimitMS)
				if verdict != runner.Pass {
					allPassed = false
				}
				line := fmt.Sprintf("%-30s expected=%-20s verdict=%s", acc.path, acc.expect, verdict)
				if warning != "" {
					line += " (" + warning + ")"
				}
				fmt.Println(line)
			}

			if !allPassed {
				return errors.New("run: at least one solution did not match its expected outcome")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outcomeOverride, "outcome", "", "check selected solutions against this expected outcome family instead of their declared one")
	cmd.Flags().BoolVar(&noCheck, "nocheck", false, "skip checking; classify outcomes from exit status alone")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "print a per-testcase evaluation line")
	return cmd
}

func selected(filter []string, path string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == path {
			return true
		}
	}
	return false
}
