package cmd

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rsalesc/robox.io-sub000/pkg/langrunner"
	"github.com/rsalesc/robox.io-sub000/pkg/pkgfile"
	"github.com/spf13/cobra"
)

// resolveCompileTarget maps a compile <kind> <path|name> invocation to a
// concrete code item: solution/generator are looked up by path or name
// respectively, checker/validator fall back to the package's single
// declared one when no override path is given.
func resolveCompileTarget(pkg *pkgfile.Package, dir, kind, arg string) (langrunner.CodeItem, error) {
	switch kind {
	case "solution":
		sol, ok := solutionByPath(pkg, arg)
		if !ok {
			return langrunner.CodeItem{}, errors.Errorf("compile: unknown solution %q", arg)
		}
		return langrunner.CodeItem{Path: filepath.Join(dir, sol.Path), Language: sol.Language}, nil
	case "generator":
		gen, ok := pkg.Generator(arg)
		if !ok {
			return langrunner.CodeItem{}, errors.Errorf("compile: unknown generator %q", arg)
		}
		return langrunner.CodeItem{Path: filepath.Join(dir, gen.Path)}, nil
	case "checker":
		ref := pkg.Checker
		if arg != "" {
			ref = &pkgfile.CodeItemRef{Path: arg}
		}
		if ref == nil {
			return langrunner.CodeItem{}, errors.New("compile: package declares no checker")
		}
		return langrunner.CodeItem{Path: filepath.Join(dir, ref.Path), Language: ref.Language, ExtraFiles: ref.ExtraFiles}, nil
	case "validator":
		ref := pkg.Validator
		if arg != "" {
			ref = &pkgfile.CodeItemRef{Path: arg}
		}
		if ref == nil {
			return langrunner.CodeItem{}, errors.New("compile: package declares no validator")
		}
		return langrunner.CodeItem{Path: filepath.Join(dir, ref.Path), Language: ref.Language, ExtraFiles: ref.ExtraFiles}, nil
	default:
		return langrunner.CodeItem{}, errors.Errorf("compile: unknown kind %q (want solution, generator, checker, or validator)", kind)
	}
}

func compileCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "compile <kind> [path|name]",
		Short: "Compile one item (solution, generator, checker, or validator) into a standalone executable",
		Args:  cobra.RangeArgs(1, 2),
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

			var arg string
			if len(args) > 1 {
				arg = args[1]
			}
			item, err := resolveCompileTarget(pkg, dir, args[0], arg)
			if err != nil {
				return err
			}

			res, err := langrunner.CompileItem(cmd.Context(), a.Sandbox, a.Cacher, a.Env, item, a.Cache, a.Log)
			if err != nil {
				return err
			}
			if !res.Success {
				return errors.Errorf("compile: %q failed to compile: %s", item.Path, res.Log)
			}

			if outPath == "" {
				outPath = filepath.Join(a.RuntimeConfig.BuildDir, "compiled", filepath.Base(item.Path)+".bin")
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return err
			}
			if err := a.Cacher.GetFileToPath(res.Executable.Value, outPath); err != nil {
				return err
			}
			if !res.Interpreted {
				if err := os.Chmod(outPath, 0o755); err != nil {
					return err
				}
			}
			cmd.Println(outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "destination path for the compiled executable")
	return cmd
}
