package doctor

import (
	"bytes"
	"os"
	"os/exec"
	"regexp"
)

// CommandExecutor is an interface for executing commands, allowing for testing.
type CommandExecutor interface {
	LookPath(file string) (string, error)
	Run(name string, args ...string) (string, error)
	CombinedOutput(name string, args ...string) ([]byte, error)
	FileExists(path string) bool
}

// RealExecutor is the default command executor that uses the real system.
type RealExecutor struct{}

// LookPath finds the path to an executable.
func (e *RealExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Run executes a command and returns its output.
func (e *RealExecutor) Run(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if stderr.Len() > 0 {
			return stderr.String(), err
		}
		return stdout.String(), err
	}
	// Some tools print their version to stderr
	output := stdout.String()
	if output == "" {
		output = stderr.String()
	}
	return output, nil
}

// CombinedOutput runs a command and returns combined stdout and stderr.
func (e *RealExecutor) CombinedOutput(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// FileExists checks if a file exists.
func (e *RealExecutor) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var defaultVersionRegex = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?(?:-[a-zA-Z0-9]+)?)`)

// tool describes a binary checked by checkTool.
type tool struct {
	id          string
	binary      string
	name        string
	desc        string
	required    bool
	versionArgs []string
	versionRe   *regexp.Regexp
}

// checkTool checks if a tool is installed and gets its version.
func checkTool(exec CommandExecutor, t tool) Check {
	check := Check{
		ID:          t.id,
		Name:        t.name,
		Description: t.desc,
		Required:    t.required,
		FixCommand:  GetFixCommand(t.id),
	}

	binary := t.binary
	if binary == "" {
		binary = t.id
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		if t.required {
			check.Status = StatusMissing
			check.Message = "not installed"
		} else {
			check.Status = StatusWarning
			check.Message = "not installed (optional)"
		}
		return check
	}

	check.Status = StatusOK
	if len(t.versionArgs) == 0 {
		check.Message = "installed"
		return check
	}

	output, err := exec.Run(path, t.versionArgs...)
	if err != nil {
		// Present but the version query failed; still usable
		check.Message = "installed (version unknown)"
		return check
	}

	if version := extractVersion(output, t.versionRe); version != "" {
		check.Message = version
	} else {
		check.Message = "installed"
	}
	return check
}

// extractVersion extracts version string from command output.
func extractVersion(output string, regex *regexp.Regexp) string {
	if regex == nil {
		regex = defaultVersionRegex
	}
	matches := regex.FindStringSubmatch(output)
	if len(matches) >= 2 {
		return matches[1]
	}
	return ""
}

// CheckQm checks for the Proxmox VM manager.
func CheckQm(exec CommandExecutor) Check {
	return checkTool(exec, tool{
		id:       IDQm,
		name:     "qm",
		desc:     "Creates VMs and converts them to templates",
		required: true,
	})
}

// CheckPvesh checks for the Proxmox API shell.
func CheckPvesh(exec CommandExecutor) Check {
	check := checkTool(exec, tool{
		id:       IDPvesh,
		name:     "pvesh",
		desc:     "Queries storages and cluster resources",
		required: true,
	})
	if check.Status != StatusOK {
		return check
	}

	output, err := exec.Run("pveversion")
	if err != nil {
		return check
	}
	if version := extractVersion(output, regexp.MustCompile(`pve-manager/(\d+\.\d+(?:\.\d+)?)`)); version != "" {
		check.Message = "pve-manager " + version
	}
	return check
}

// CheckVirtCustomize checks for virt-customize from libguestfs.
func CheckVirtCustomize(exec CommandExecutor) Check {
	return checkTool(exec, tool{
		id:          IDVirtCustomize,
		name:        "virt-customize",
		desc:        "Uploads files and runs commands inside images",
		required:    true,
		versionArgs: []string{"--version"},
		versionRe:   regexp.MustCompile(`virt-customize\s+(\d+\.\d+\.\d+)`),
	})
}

// CheckKVM checks that hardware virtualization is available to libguestfs.
func CheckKVM(exec CommandExecutor) Check {
	check := Check{
		ID:          IDKVM,
		Name:        "/dev/kvm",
		Description: "Hardware acceleration for the libguestfs appliance",
	}

	if exec.FileExists("/dev/kvm") {
		check.Status = StatusOK
		check.Message = "available"
		return check
	}

	check.Status = StatusWarning
	check.Message = "not available, customization falls back to TCG and runs slowly"
	return check
}

// CheckScratchDir checks the directory images are staged in.
func CheckScratchDir(exec CommandExecutor, dir string) Check {
	check := Check{
		ID:          IDScratchDir,
		Name:        "Scratch directory",
		Description: "Holds images while they are fetched and customized",
	}

	if dir == "" {
		check.Status = StatusError
		check.Message = "not configured"
		return check
	}

	if exec.FileExists(dir) {
		check.Status = StatusOK
		check.Message = dir
		return check
	}

	check.Status = StatusWarning
	check.Message = dir + " does not exist yet, it is created on the first run"
	return check
}

// CheckUnzip checks for unzip.
func CheckUnzip(exec CommandExecutor) Check {
	return checkTool(exec, tool{
		id:          IDUnzip,
		name:        "unzip",
		desc:        "Extracts zip-packed images",
		versionArgs: []string{"-v"},
		versionRe:   regexp.MustCompile(`UnZip\s+(\d+\.\d+)`),
	})
}

// CheckXz checks for xz.
func CheckXz(exec CommandExecutor) Check {
	return checkTool(exec, tool{
		id:          IDXz,
		name:        "xz",
		desc:        "Decompresses .xz images",
		versionArgs: []string{"--version"},
		versionRe:   regexp.MustCompile(`xz \(XZ Utils\)\s+(\d+\.\d+\.\d+)`),
	})
}

// CheckTar checks for tar.
func CheckTar(exec CommandExecutor) Check {
	return checkTool(exec, tool{
		id:          IDTar,
		name:        "tar",
		desc:        "Extracts images from archives",
		versionArgs: []string{"--version"},
	})
}
