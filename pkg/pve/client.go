// Package pve talks to the local Proxmox VE node through its command line
// tools (pvesh and qm).
package pve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/runner"
)

// StorageKind tells how a storage lays out VM disks.
type StorageKind int

const (
	// StorageFile keeps disks as files, e.g. dir, nfs or cifs.
	StorageFile StorageKind = iota
	// StorageVolume keeps disks as block volumes, e.g. lvm or zfs.
	StorageVolume
)

// String returns the string representation of StorageKind.
func (k StorageKind) String() string {
	if k == StorageFile {
		return "file"
	}
	return "volume"
}

var storageKinds = map[string]StorageKind{
	"dir":       StorageFile,
	"nfs":       StorageFile,
	"cifs":      StorageFile,
	"glusterfs": StorageFile,
	"btrfs":     StorageFile,
	"cephfs":    StorageFile,
	"zfspool":   StorageVolume,
	"lvm":       StorageVolume,
	"lvmthin":   StorageVolume,
	"rbd":       StorageVolume,
	"iscsi":     StorageVolume,
	"zfs":       StorageVolume,
}

// Storage is a Proxmox storage that can hold VM disk images.
type Storage struct {
	Name    string
	Type    string
	Kind    StorageKind
	Content []string
}

// DiskName returns the volume id Proxmox assigns to the first disk
// imported for vmid.
func (s *Storage) DiskName(vmid int) string {
	if s.Kind == StorageFile {
		return fmt.Sprintf("%s:%d/vm-%d-disk-0.qcow2", s.Name, vmid, vmid)
	}
	return fmt.Sprintf("%s:vm-%d-disk-0", s.Name, vmid)
}

// Resource is a guest known to the cluster.
type Resource struct {
	VMID     int    `json:"vmid"`
	Name     string `json:"name"`
	Type     string `json:"type"` // qemu or lxc
	Node     string `json:"node"`
	Status   string `json:"status"`
	Template int    `json:"template"`
}

// IsTemplate reports whether the guest has been converted to a template.
func (r Resource) IsTemplate() bool {
	return r.Type == "qemu" && r.Template == 1
}

// Client runs pvesh and qm on the local node.
type Client struct {
	runner runner.Runner
	logger *log.Logger
}

// NewClient creates a client that runs commands through r.
func NewClient(r runner.Runner, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{runner: r, logger: logger}
}

// Resources lists every qemu and lxc guest in the cluster.
func (c *Client) Resources(ctx context.Context) ([]Resource, error) {
	var resources []Resource
	err := c.pvesh(ctx, &resources, "get", "/cluster/resources", "--type", "vm")
	if err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}
	return resources, nil
}

type storageEntry struct {
	Storage string `json:"storage"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Storage looks up a storage by name and checks it can hold disk images.
func (c *Client) Storage(ctx context.Context, name string) (*Storage, error) {
	var entries []storageEntry
	if err := c.pvesh(ctx, &entries, "get", "/storage"); err != nil {
		return nil, fmt.Errorf("failed to list storages: %w", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Storage)
		if e.Storage != name {
			continue
		}
		return newStorage(e)
	}
	return nil, fmt.Errorf("storage %q not found (available: %s)", name, strings.Join(names, ", "))
}

func newStorage(e storageEntry) (*Storage, error) {
	kind, ok := storageKinds[e.Type]
	if !ok {
		return nil, fmt.Errorf("storage %q has unsupported type %q", e.Storage, e.Type)
	}

	var content []string
	for _, c := range strings.Split(e.Content, ",") {
		if c = strings.TrimSpace(c); c != "" {
			content = append(content, c)
		}
	}
	if !slices.Contains(content, "images") {
		return nil, fmt.Errorf("storage %q does not allow disk images (content: %s)", e.Storage, e.Content)
	}

	return &Storage{Name: e.Storage, Type: e.Type, Kind: kind, Content: content}, nil
}

func (c *Client) pvesh(ctx context.Context, out any, args ...string) error {
	args = append(args, "--output-format", "json")
	res, err := c.runner.Run(ctx, runner.Command{Name: "pvesh", Args: args})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(res.Stdout), out); err != nil {
		return fmt.Errorf("failed to parse pvesh output: %w", err)
	}
	return nil
}
