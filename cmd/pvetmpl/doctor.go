package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/doctor"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/ui"
)

// newDoctorCmd creates the doctor subcommand
func newDoctorCmd(global *globalOptions) *cobra.Command {
	var fix, yes bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the host tools pvetmpl needs",
		Long: `Check for qm, pvesh, virt-customize and the optional unpack tools. With
--fix, missing tools that can be installed with apt are installed.

Exits with status 2 when a required tool is missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, global, fix, yes)
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Install missing tools")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask before installing")

	return cmd
}

func runDoctor(cmd *cobra.Command, global *globalOptions, fix, yes bool) error {
	e, err := newEnv(cmd, global)
	if err != nil {
		return err
	}

	checker := doctor.NewChecker()
	checker.SetScratchDir(e.cfg.ScratchDir)
	groups := checker.CheckAllAsync()
	printf(e.out, "%s", ui.DoctorView(groups))

	if fix {
		fixed, err := runFixes(e, groups, yes)
		if err != nil {
			return err
		}
		if fixed > 0 {
			groups = checker.CheckAllAsync()
			printf(e.out, "\n%s", ui.DoctorView(groups))
		}
	}

	summary := checker.GetSummary(groups)
	printf(e.out, "%d ok, %d warnings, %d missing\n", summary.OK, summary.Warnings, summary.Missing+summary.Errors)
	if checker.HasIssues(groups) {
		return errMissingDependencies
	}
	return nil
}

func runFixes(e *env, groups []doctor.CheckGroup, yes bool) (int, error) {
	fixable := doctor.Fixable(groups)
	if len(fixable) == 0 {
		printf(e.out, "Nothing to fix.\n")
		return 0, nil
	}

	fixer := doctor.NewFixer()
	fixed := 0
	for _, check := range fixable {
		if !yes {
			if !isInteractive() {
				return fixed, fmt.Errorf("refusing to run %q without confirmation, pass --yes", check.FixCommand.Command)
			}
			ok, err := ui.Confirm(fmt.Sprintf("Install %s?", check.Name), check.FixCommand.Command)
			if err != nil {
				return fixed, err
			}
			if !ok {
				continue
			}
		}

		e.logger.Info("installing", "tool", check.Name, "cmd", check.FixCommand.Command)
		if err := fixer.RunFix(check.FixCommand); err != nil {
			e.logger.Error("install failed", "tool", check.Name, "err", err)
			continue
		}
		fixed++
	}
	return fixed, nil
}
