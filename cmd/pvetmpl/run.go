package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/doctor"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/images"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/manifest"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/metrics"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/provision"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/state"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/ui"
)

type runOptions struct {
	yes           bool
	keepOnFailure bool
	prefetch      bool
}

// newRunCmd creates the run subcommand
func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [names...]",
		Short: "Build and register templates",
		Long: `Build every template in the manifest, or only the named ones, in manifest
order. Templates already present on the host are skipped. The run stops at
the first failure; the VM of a template that fails to register is destroyed
unless --keep-on-failure is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, global, opts, args)
		},
	}

	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&opts.keepOnFailure, "keep-on-failure", false, "Keep the VM of a template that failed to register")
	cmd.Flags().BoolVar(&opts.prefetch, "prefetch", false, "Download the next image while the current one is customized")

	return cmd
}

func runRun(cmd *cobra.Command, global *globalOptions, opts *runOptions, names []string) error {
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
	if err := provision.CheckUnique(m.Templates); err != nil {
		return err
	}

	templates, err := m.Select(names)
	if err != nil {
		return err
	}

	if err := checkDependencies(e); err != nil {
		return err
	}

	if !opts.yes {
		if !isInteractive() {
			return errors.New("refusing to run without confirmation, pass --yes")
		}
		ok, err := ui.Confirm(
			fmt.Sprintf("Build %d templates on storage %s?", len(templates), e.cfg.Storage),
			"Missing templates are created with qm, existing ones are skipped")
		if err != nil {
			return err
		}
		if !ok {
			printf(e.out, "Cancelled.\n")
			return nil
		}
	}

	printer := ui.NewPrinter(cmd.ErrOrStderr())
	prov := provision.New(e.downloader(), images.NewUnpacker(e.runner), e.engine(), e.host(), provision.Options{
		ScratchDir:    e.cfg.ScratchDir,
		Storage:       e.cfg.Storage,
		Memory:        e.cfg.Memory,
		Bridge:        e.cfg.Bridge,
		KeepOnFailure: e.cfg.KeepOnFailure,
		Prefetch:      e.cfg.Prefetch,
		AllTemplates:  m.Templates,
		OnProgress:    printer.Callback(),
		Logger:        e.logger,
	})

	report, runErr := prov.Run(cmd.Context(), templates)
	printf(e.out, "\n%s", ui.ReportView(report))
	record(e, m, report)

	return runErr
}

// checkDependencies fails when a required host tool is missing.
func checkDependencies(e *env) error {
	checker := doctor.NewChecker()
	checker.SetScratchDir(e.cfg.ScratchDir)
	groups := checker.CheckAll()
	if !checker.HasIssues(groups) {
		return nil
	}
	for _, group := range groups {
		for _, check := range group.Checks {
			if check.Blocking() {
				e.logger.Error("missing dependency", "tool", check.Name, "status", check.Message)
			}
		}
	}
	return errMissingDependencies
}

// record stores the run in the history and the metrics textfile. Failures
// are logged; they do not change the run's outcome.
func record(e *env, m *manifest.Manifest, report *provision.Report) {
	store := state.NewStore(e.cfg.StateDir)
	if err := store.Append(state.RunFromReport(m.Path, e.cfg.Storage, report)); err != nil {
		e.logger.Warn("failed to record run", "err", err)
	}

	if e.cfg.MetricsFile == "" {
		return
	}
	recorder := metrics.NewRecorder()
	recorder.Observe(report)
	if err := recorder.WriteTextfile(e.cfg.MetricsFile); err != nil {
		e.logger.Warn("failed to write metrics", "err", err)
		return
	}
	e.logger.Debug("wrote metrics", "path", e.cfg.MetricsFile)
}
