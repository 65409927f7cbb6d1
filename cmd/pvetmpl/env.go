package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/customize"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/globalconfig"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/images"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/logging"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/manifest"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/pve"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/runner"
)

// env is what a subcommand needs after flags are parsed.
type env struct {
	cfg    *globalconfig.Config
	logger *log.Logger
	runner runner.Runner
	out    io.Writer
}

// flagKeys maps config keys to the flags that override them.
var flagKeys = map[string]string{
	"scratch_dir":     "scratch-dir",
	"storage":         "storage",
	"keep_on_failure": "keep-on-failure",
	"prefetch":        "prefetch",
}

func newEnv(cmd *cobra.Command, opts *globalOptions) (*env, error) {
	logger := logging.New(cmd.ErrOrStderr(), opts.verbose)

	flags := make(map[string]*pflag.Flag)
	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			flags[key] = f
		}
	}

	cfg, path, err := globalconfig.Load(globalconfig.LoadOptions{
		ConfigFile: opts.configFile,
		Flags:      flags,
	})
	if err != nil {
		return nil, err
	}
	if path != "" {
		logger.Debug("loaded config", "path", path)
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		runner: runner.NewExec(logger),
		out:    cmd.OutOrStdout(),
	}, nil
}

func (e *env) loadManifest(path string) (*manifest.Manifest, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("loaded manifest", "path", m.Path, "templates", len(m.Templates), "aliases", len(m.Aliases))
	return m, nil
}

// lint logs manifest issues. It never fails; the caller and the provisioner
// decide which errors stop a run.
func (e *env) lint(m *manifest.Manifest) {
	for _, issue := range manifest.Lint(m).Issues {
		if issue.Severity == manifest.SeverityError {
			e.logger.Error(issue.Message, "template", issue.Template)
			continue
		}
		e.logger.Warn(issue.Message, "template", issue.Template)
	}
}

func (e *env) downloader() *images.Downloader {
	return images.NewDownloader(
		images.WithTimeout(e.cfg.FetchTimeout),
		images.WithSource("s3", images.S3SourceFactory(images.S3Options{
			Endpoint:  e.cfg.S3.Endpoint,
			Region:    e.cfg.S3.Region,
			AccessKey: e.cfg.S3.AccessKey,
			SecretKey: e.cfg.S3.SecretKey,
		})),
	)
}

func (e *env) engine() *customize.VirtCustomize {
	engine := customize.NewVirtCustomize(e.runner)
	engine.Backend = e.cfg.LibguestfsBackend
	engine.Timeout = e.cfg.CustomizeTimeout
	return engine
}

func (e *env) host() *pve.Client {
	return pve.NewClient(e.runner, e.logger)
}

func isInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd())
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
