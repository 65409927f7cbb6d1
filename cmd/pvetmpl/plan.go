package main

import (
	"github.com/spf13/cobra"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/provision"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/ui"
)

// newPlanCmd creates the plan subcommand
func newPlanCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan [names...]",
		Short: "Show the commands a run would execute",
		Long: `Print, per template, the download, unpack, virt-customize and qm commands a
run would execute. The storage is looked up on the host to pick the disk
format; nothing is downloaded or changed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, global, args)
		},
	}
}

func runPlan(cmd *cobra.Command, global *globalOptions, names []string) error {
	e, err := newEnv(cmd, global)
	if err != nil {
		return err
	}
	if err := e.cfg.RequireStorage(); err != nil {
		return err
	}

	m, err := e.loadManifest(global.manifestPath)
	if err != nil {
		return err
	}
	e.lint(m)

	templates, err := m.Select(names)
	if err != nil {
		return err
	}

	storage, err := e.host().Storage(cmd.Context(), e.cfg.Storage)
	if err != nil {
		return err
	}

	plans, err := provision.Plan(templates, storage, e.engine(), provision.Options{
		ScratchDir: e.cfg.ScratchDir,
		Storage:    e.cfg.Storage,
		Memory:     e.cfg.Memory,
		Bridge:     e.cfg.Bridge,
	})
	if err != nil {
		return err
	}

	printf(e.out, "%s", ui.PlanView(plans))
	return nil
}
