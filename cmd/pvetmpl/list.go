package main

import (
	"github.com/spf13/cobra"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/pve"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/ui"
)

// newListCmd creates the list subcommand
func newListCmd(global *globalOptions) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List manifest templates and their state on the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, global, offline)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Do not query the host")

	return cmd
}

func runList(cmd *cobra.Command, global *globalOptions, offline bool) error {
	e, err := newEnv(cmd, global)
	if err != nil {
		return err
	}

	m, err := e.loadManifest(global.manifestPath)
	if err != nil {
		return err
	}

	var byVMID map[int]pve.Resource
	if !offline {
		resources, err := e.host().Resources(cmd.Context())
		if err != nil {
			e.logger.Warn("could not query the host, status is unknown", "err", err)
		} else {
			byVMID = make(map[int]pve.Resource, len(resources))
			for _, r := range resources {
				byVMID[r.VMID] = r
			}
		}
	}

	printf(e.out, "%s\n", ui.TemplatesTable(m.Templates, byVMID))
	return nil
}
