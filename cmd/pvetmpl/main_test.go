package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/globalconfig"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/manifest"
	"github.com/jaspreet-dot-casa/pve-templates/pkg/provision"
)

// execute runs the root command with an isolated config directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("PVETMPL_STORAGE", "")

	rootCmd := newRootCmd()
	rootCmd.SilenceUsage = true
	rootCmd.SetArgs(args)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)

	err := rootCmd.Execute()
	return out.String(), err
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), manifest.DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewRootCmd(t *testing.T) {
	rootCmd := newRootCmd()

	assert.Equal(t, "pvetmpl", rootCmd.Use)
	assert.Equal(t, "Proxmox VE template provisioner", rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCmdHelp(t *testing.T) {
	output, err := execute(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"run", "plan", "validate", "list", "doctor", "history", "init"} {
		assert.Contains(t, output, sub)
	}
	assert.Contains(t, output, "--manifest")
	assert.Contains(t, output, "--storage")
}

func TestRootCmdVersion(t *testing.T) {
	output, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, output, "pvetmpl version")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitDependencies, exitCode(errMissingDependencies))
	assert.Equal(t, exitDependencies, exitCode(errors.Join(errors.New("x"), errMissingDependencies)))
	assert.Equal(t, exitFailure, exitCode(errors.New("template 9000 (a): fetch failed: HTTP 404")))
}

func TestInitThenValidate(t *testing.T) {
	dir := t.TempDir()

	output, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, output, filepath.Join(dir, "templates.yaml"))

	output, err = execute(t, "validate", "-f", filepath.Join(dir, "templates.yaml"))
	require.NoError(t, err)
	assert.Contains(t, output, "3 templates")

	_, err = execute(t, "init", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, err = execute(t, "init", "--force", dir)
	assert.NoError(t, err)
}

func TestValidateCmd_DanglingAlias(t *testing.T) {
	path := writeManifest(t, `
templates:
  - vmid: 9000
    name: ubuntu-noble
    url: https://example.com/noble.img
    customize:
      commands:
        - alias: nope
`)

	_, err := execute(t, "validate", "-f", path)

	require.Error(t, err)
	assert.ErrorIs(t, err, manifest.ErrManifest)
	assert.Contains(t, err.Error(), `unknown alias "nope"`)
}

func TestValidateCmd_DuplicateVMID(t *testing.T) {
	path := writeManifest(t, `
templates:
  - {vmid: 9000, name: a, url: "https://example.com/a.img"}
  - {vmid: 9000, name: b, url: "https://example.com/b.img"}
`)

	output, err := execute(t, "validate", "-f", path)

	require.Error(t, err)
	assert.ErrorIs(t, err, manifest.ErrManifest)
	assert.Contains(t, output, "vmid 9000 is also used")
}

func TestListCmd_Offline(t *testing.T) {
	path := writeManifest(t, `
templates:
  - {vmid: 9000, name: ubuntu-noble, url: "https://example.com/noble.img"}
`)

	output, err := execute(t, "list", "--offline", "-f", path)

	require.NoError(t, err)
	assert.Contains(t, output, "ubuntu-noble")
	assert.Contains(t, output, "unknown")
}

func TestHistoryCmd_Empty(t *testing.T) {
	t.Setenv("PVETMPL_STATE_DIR", t.TempDir())

	output, err := execute(t, "history")

	require.NoError(t, err)
	assert.Contains(t, output, "No runs recorded.")
}

func TestRunCmd_RequiresStorage(t *testing.T) {
	path := writeManifest(t, `
templates:
  - {vmid: 9000, name: ubuntu-noble, url: "https://example.com/noble.img"}
`)

	_, err := execute(t, "run", "--yes", "-f", path)

	assert.ErrorIs(t, err, globalconfig.ErrNoStorage)
}

func TestRunCmd_UnknownTemplate(t *testing.T) {
	path := writeManifest(t, `
templates:
  - {vmid: 9000, name: ubuntu-noble, url: "https://example.com/noble.img"}
`)

	_, err := execute(t, "run", "--yes", "--storage", "local", "-f", path, "debian-12")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `template "debian-12" not found`)
}

func TestRunCmd_DuplicateVMIDOutsideSelection(t *testing.T) {
	path := writeManifest(t, `
templates:
  - {vmid: 9000, name: ubuntu-noble, url: "https://example.com/noble.img"}
  - {vmid: 9001, name: debian-12, url: "https://example.com/debian.qcow2"}
  - {vmid: 9000, name: alma-9, url: "https://example.com/alma.qcow2"}
`)

	_, err := execute(t, "run", "--yes", "--storage", "local", "-f", path, "debian-12")

	require.Error(t, err)
	assert.ErrorIs(t, err, provision.ErrRegister)
	assert.Contains(t, err.Error(), `vmid 9000 is also used by template "ubuntu-noble"`)
}

func TestRunCmd_BadConfigFile(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}
