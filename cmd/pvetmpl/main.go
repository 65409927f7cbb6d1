// Package main provides the pvetmpl CLI, which turns cloud images into
// customized Proxmox VE templates.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/manifest"
)

// version is set via -ldflags during build
var version = "dev"

// Exit codes.
const (
	exitFailure      = 1
	exitDependencies = 2
)

// errMissingDependencies is returned when required host tools are absent.
var errMissingDependencies = errors.New("required tools are missing, run 'pvetmpl doctor' for details")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()

	// Cobra handles error printing
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, errMissingDependencies) {
		return exitDependencies
	}
	return exitFailure
}

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	manifestPath string
	configFile   string
	scratchDir   string
	storage      string
	verbose      bool
}

// newRootCmd creates the root command for pvetmpl
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "pvetmpl",
		Short: "Proxmox VE template provisioner",
		Long: `pvetmpl builds Proxmox VE templates from cloud images.

Each template listed in the manifest is downloaded, customized offline with
virt-customize (file uploads first, then commands) and registered as a
template under its VM ID. A run stops at the first failure and reports the
template and the step that failed.`,
		Version: version,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.manifestPath, "manifest", "f", manifest.DefaultFileName, "Manifest file")
	flags.StringVar(&opts.configFile, "config", "", "Config file (default ~/.config/pvetmpl/config.yaml)")
	flags.StringVar(&opts.scratchDir, "scratch-dir", "", "Directory images are staged in")
	flags.StringVar(&opts.storage, "storage", "", "Proxmox storage that receives template disks")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug output, including every external command")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newPlanCmd(opts),
		newValidateCmd(opts),
		newListCmd(opts),
		newDoctorCmd(opts),
		newHistoryCmd(opts),
		newInitCmd(),
	)

	return rootCmd
}
