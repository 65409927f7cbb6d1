// Package doctor checks that the host tools pvetmpl drives are installed
// and can install the missing ones.
package doctor

// CheckStatus represents the status of a dependency check.
type CheckStatus int

const (
	// StatusOK indicates the dependency is installed and working.
	StatusOK CheckStatus = iota
	// StatusMissing indicates the dependency is not installed.
	StatusMissing
	// StatusError indicates an error occurred during the check.
	StatusError
	// StatusWarning indicates the dependency has issues but may work.
	StatusWarning
)

// String returns the string representation of the status.
func (s CheckStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMissing:
		return "missing"
	case StatusError:
		return "error"
	case StatusWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Check represents a single dependency check result.
type Check struct {
	ID          string      // Unique identifier, e.g., "virt-customize", "qm"
	Name        string      // Display name
	Description string      // What this tool does
	Required    bool        // A run cannot start without it
	Status      CheckStatus // Current status
	Message     string      // Status message (version info, error, etc.)
	FixCommand  *FixCommand // How to fix if missing (nil if not fixable)
}

// Blocking reports whether the check prevents a run.
func (c Check) Blocking() bool {
	return c.Required && (c.Status == StatusMissing || c.Status == StatusError)
}

// FixCommand describes how to fix a missing dependency.
type FixCommand struct {
	Description string // Human-readable description of what the fix does
	Command     string // Shell command to run
	Sudo        bool   // Whether the command requires root
}

// CheckGroup represents a group of related dependency checks.
type CheckGroup struct {
	ID          string  // Unique identifier, e.g., "proxmox", "customize"
	Name        string  // Display name
	Description string  // What this group is for
	Checks      []Check // Individual checks in this group
}

// GroupID constants for check groups.
const (
	GroupProxmox   = "proxmox"
	GroupCustomize = "customize"
	GroupUnpack    = "unpack"
)

// CheckID constants for individual checks.
const (
	IDQm            = "qm"
	IDPvesh         = "pvesh"
	IDVirtCustomize = "virt-customize"
	IDKVM           = "kvm"
	IDScratchDir    = "scratch-dir"
	IDUnzip         = "unzip"
	IDXz            = "xz"
	IDTar           = "tar"
)
