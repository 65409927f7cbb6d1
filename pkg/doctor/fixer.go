package doctor

import (
	"fmt"
)

// fixCommands defines how to install each tool on a Proxmox (Debian) host.
var fixCommands = map[string]*FixCommand{
	IDVirtCustomize: {
		Description: "Install libguestfs tools via apt",
		Command:     "apt-get install -y libguestfs-tools",
		Sudo:        true,
	},
	IDUnzip: {
		Description: "Install via apt",
		Command:     "apt-get install -y unzip",
		Sudo:        true,
	},
	IDXz: {
		Description: "Install via apt",
		Command:     "apt-get install -y xz-utils",
		Sudo:        true,
	},
	IDTar: {
		Description: "Install via apt",
		Command:     "apt-get install -y tar",
		Sudo:        true,
	},
}

// GetFixCommand returns the fix command for a tool, or nil when the tool
// cannot be installed automatically.
func GetFixCommand(toolID string) *FixCommand {
	return fixCommands[toolID]
}

// Fixer provides functionality to run fix commands.
type Fixer struct {
	executor CommandExecutor
}

// NewFixer creates a new Fixer.
func NewFixer() *Fixer {
	return &Fixer{
		executor: &RealExecutor{},
	}
}

// NewFixerWithExecutor creates a new Fixer with a custom executor.
func NewFixerWithExecutor(exec CommandExecutor) *Fixer {
	return &Fixer{
		executor: exec,
	}
}

// RunFix executes a fix command.
func (f *Fixer) RunFix(fix *FixCommand) error {
	if fix == nil {
		return fmt.Errorf("no fix command available")
	}

	output, err := f.executor.CombinedOutput("sh", "-c", fix.Command)
	if err != nil {
		return fmt.Errorf("fix failed: %w\nOutput: %s", err, string(output))
	}

	return nil
}

// Fixable returns the checks that have issues and a fix command, without
// duplicates.
func Fixable(groups []CheckGroup) []Check {
	var result []Check
	seen := make(map[string]bool)
	for _, group := range groups {
		for _, check := range group.Checks {
			if check.Status == StatusOK || check.FixCommand == nil || seen[check.ID] {
				continue
			}
			seen[check.ID] = true
			result = append(result, check)
		}
	}
	return result
}
