package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/manifest"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/ui"
)

// newValidateCmd creates the validate subcommand
func newValidateCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the manifest",
		Long: `Parse the manifest, resolve aliases and check commands for shell syntax
errors, then look for problems across templates: duplicate VM IDs or names,
missing upload sources and unused aliases.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, global)
		},
	}
}

func runValidate(cmd *cobra.Command, global *globalOptions) error {
	out := cmd.OutOrStdout()

	m, err := manifest.Load(global.manifestPath)
	if err != nil {
		return err
	}

	result := manifest.Lint(m)
	for _, issue := range result.Issues {
		prefix := ui.WarningStyle.Render(ui.IconWarn)
		if issue.Severity == manifest.SeverityError {
			prefix = ui.ErrorStyle.Render(ui.IconFail)
		}
		if issue.Template != "" {
			printf(out, "%s %s: %s\n", prefix, issue.Template, issue.Message)
		} else {
			printf(out, "%s %s\n", prefix, issue.Message)
		}
	}

	if result.HasErrors() {
		return fmt.Errorf("%w: %d errors, %d warnings", manifest.ErrManifest, result.ErrorCount(), result.WarningCount())
	}

	printf(out, "%s %s: %d templates, %d aliases, %d warnings\n",
		ui.SuccessStyle.Render(ui.IconOK), m.Path, len(m.Templates), len(m.Aliases), result.WarningCount())
	return nil
}
