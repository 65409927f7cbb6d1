// Package manifest loads the template manifest: the list of cloud images to
// import and the customizations applied to each of them.
package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrManifest is wrapped by every error caused by manifest content.
var ErrManifest = errors.New("invalid manifest")

// DefaultFileName is the manifest looked up when no path is given.
const DefaultFileName = "templates.yaml"

// Proxmox accepts guest IDs in this range.
const (
	MinVMID = 100
	MaxVMID = 999999999
)

// Manifest is a parsed and alias-resolved templates file.
type Manifest struct {
	Path      string            // File the manifest was loaded from
	Aliases   map[string]string // Reusable commands by name
	Templates []Template
}

// Template describes one cloud image and how to turn it into a template.
type Template struct {
	VMID      int
	Name      string
	URL       string
	SHA256    string // Expected digest of the downloaded file (optional)
	Unpack    string // Host command with {dl} and {img} placeholders (optional)
	CloudInit bool
	Memory    int    // MiB, 0 means the configured default
	Bridge    string // Empty means the configured default
	Uploads   []Upload
	Commands  []string
	AliasRefs []string // Aliases referenced by Commands, in order
}

// String identifies the template in logs and errors.
func (t Template) String() string {
	return fmt.Sprintf("%d (%s)", t.VMID, t.Name)
}

// HasCustomizations reports whether the image needs a customization pass.
func (t Template) HasCustomizations() bool {
	return len(t.Uploads) > 0 || len(t.Commands) > 0
}

// Find returns the template with the given name.
func (m *Manifest) Find(name string) (*Template, bool) {
	for i := range m.Templates {
		if m.Templates[i].Name == name {
			return &m.Templates[i], true
		}
	}
	return nil, false
}

// Select returns the templates whose names are listed, in manifest order.
// An empty list selects every template.
func (m *Manifest) Select(names []string) ([]Template, error) {
	if len(names) == 0 {
		return m.Templates, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := m.Find(n); !ok {
			return nil, fmt.Errorf("template %q not found in %s", n, m.Path)
		}
		wanted[n] = true
	}

	var selected []Template
	for _, t := range m.Templates {
		if wanted[t.Name] {
			selected = append(selected, t)
		}
	}
	return selected, nil
}

// Upload copies a host file into the guest filesystem.
type Upload struct {
	Local  string // Host path, absolute after loading
	Remote string // Absolute guest path
}

// String returns the upload in "local:remote" form.
func (u Upload) String() string {
	return u.Local + ":" + u.Remote
}

// ParseUpload parses "<local-file-path>:<absolute-guest-path>". virt-customize
// splits its --upload argument at the first ':', so local paths must not
// contain one.
func ParseUpload(s string) (Upload, error) {
	i := strings.Index(s, ":/")
	if i < 0 {
		return Upload{}, fmt.Errorf("%w: upload %q must be <local-path>:<absolute-guest-path>", ErrManifest, s)
	}
	if strings.Contains(s[:i], ":") {
		return Upload{}, fmt.Errorf("%w: upload %q: local path must not contain ':'", ErrManifest, s)
	}

	u := Upload{Local: s[:i], Remote: s[i+1:]}
	if u.Local == "" {
		return Upload{}, fmt.Errorf("%w: upload %q has an empty local path", ErrManifest, s)
	}
	if strings.ContainsAny(u.Remote, "\n\x00") {
		return Upload{}, fmt.Errorf("%w: upload %q has an invalid guest path", ErrManifest, s)
	}
	return u, nil
}
