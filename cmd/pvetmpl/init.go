package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaspreet-dot-casa/pve-templates/sample"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write an example manifest",
		Long: `Write an example templates.yaml and the files it uploads into dir, or the
current directory.

Examples:
  pvetmpl init              # Current directory
  pvetmpl init /etc/pvetmpl # Given directory`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			written, err := sample.Write(dir, force)
			if errors.Is(err, sample.ErrExists) {
				return fmt.Errorf("%w (use --force to overwrite)", err)
			}
			if err != nil {
				return err
			}
			for _, path := range written {
				printf(cmd.OutOrStdout(), "wrote %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")

	return cmd
}
