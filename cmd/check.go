package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"go.perlls.io/perlls/errext"
	"go.perlls.io/perlls/errext/exitcodes"
	"go.perlls.io/perlls/fsext"
	"go.perlls.io/perlls/lsp"
	"go.perlls.io/perlls/server"
)

// getCheckCmd builds `perlls check`, the batch mode: parse the given
// files (or directories) and print their diagnostics, exiting non-zero
// when any file has errors.
func getCheckCmd(gs *globalState) *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check [path...]",
		Short: "Parse Perl files and report problems",
		Long: `Parse the given files or directories and print every problem the
language server would surface as an error diagnostic, without starting
a server.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			headerColor := getColor(gs.flags.NoColor || !gs.stdOut.isTTY, color.Bold)
			errColor := getColor(gs.flags.NoColor || !gs.stdOut.isTTY, color.FgRed)
			okColor := getColor(gs.flags.NoColor || !gs.stdOut.isTTY, color.FgGreen)

			var files []string
			for _, arg := range args {
				info, err := gs.fs.Stat(arg)
				if err != nil {
					return errext.WithExitCodeIfNone(
						fmt.Errorf("cannot read %s: %w", arg, err), exitcodes.InvalidConfig)
				}
				if info.IsDir() {
					if err := fsext.WalkPerlFiles(gs.fs, arg, func(path string) error {
						files = append(files, path)
						return nil
					}); err != nil {
						return errext.WithExitCodeIfNone(err, exitcodes.GenericError)
					}
				} else {
					files = append(files, arg)
				}
			}

			problems := 0
			for _, path := range files {
				data, err := fsext.ReadFile(gs.fs, path)
				if err != nil {
					return errext.WithExitCodeIfNone(
						fmt.Errorf("cannot read %s: %w", path, err), exitcodes.GenericError)
				}
				diags := server.DiagnosticsFor(fsext.FileURI(path), string(data))
				errs := 0
				for _, d := range diags {
					if d.Severity == lsp.SeverityError {
						errs++
					}
				}
				rel := path
				if wd, err := gs.getwd(); err == nil {
					if r, err := filepath.Rel(wd, path); err == nil {
						rel = r
					}
				}
				if errs == 0 {
					if !gs.flags.Quiet {
						fmt.Fprintf(gs.stdOut, "%s %s\n", okColor.Sprint("ok"), rel)
					}
					continue
				}
				problems += errs
				fmt.Fprintf(gs.stdOut, "%s\n", headerColor.Sprint(rel))
				for _, d := range diags {
					if d.Severity != lsp.SeverityError {
						continue
					}
					fmt.Fprintf(gs.stdOut, "  %s %d:%d %s\n",
						errColor.Sprint("error"),
						d.Range.Start.Line+1, d.Range.Start.Character+1,
						d.Message)
				}
			}

			if problems > 0 {
				return errext.WithExitCodeIfNone(
					fmt.Errorf("found %d problem(s) in %d file(s)", problems, len(files)),
					exitcodes.CheckFoundProblems)
			}
			if !gs.flags.Quiet {
				fmt.Fprintf(gs.stdOut, "%s %d file(s) checked\n", okColor.Sprint("✓"), len(files))
			}
			return nil
		},
	}
	return checkCmd
}
