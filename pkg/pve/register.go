package pve

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/runner"
)

// Defaults for the VM created around an imported image.
const (
	DefaultMemory = 512
	DefaultBridge = "vmbr0"
)

// "Successfully imported disk as 'unused0:local-lvm:vm-9000-disk-0'"
var importedDisk = regexp.MustCompile(`imported disk as '(?:unused\d+:)?([^']+)'`)

// RegisterRequest describes a template to create from a disk image.
type RegisterRequest struct {
	VMID      int
	Name      string
	Image     string
	Storage   *Storage
	Memory    int
	Bridge    string
	CloudInit bool

	// KeepOnFailure leaves a partially configured VM in place for debugging.
	KeepOnFailure bool
}

func (r RegisterRequest) memory() int {
	if r.Memory > 0 {
		return r.Memory
	}
	return DefaultMemory
}

func (r RegisterRequest) bridge() string {
	if r.Bridge != "" {
		return r.Bridge
	}
	return DefaultBridge
}

func (r RegisterRequest) id() string {
	return strconv.Itoa(r.VMID)
}

func createCommand(req RegisterRequest) runner.Command {
	return qm("create", req.id(),
		"--name", req.Name,
		"--memory", strconv.Itoa(req.memory()),
		"--net0", "virtio,bridge="+req.bridge(),
	)
}

func importCommand(req RegisterRequest) runner.Command {
	args := []string{"importdisk", req.id(), req.Image, req.Storage.Name}
	if req.Storage.Kind == StorageFile {
		args = append(args, "--format", "qcow2")
	}
	return qm(args...)
}

func configureCommands(req RegisterRequest, disk string) []runner.Command {
	cmds := []runner.Command{
		qm("set", req.id(), "--scsihw", "virtio-scsi-pci", "--scsi0", disk),
		qm("set", req.id(), "--boot", "c", "--bootdisk", "scsi0"),
		qm("set", req.id(), "--serial0", "socket"),
	}
	if req.CloudInit {
		cmds = append(cmds,
			qm("set", req.id(), "--ide2", req.Storage.Name+":cloudinit"),
			qm("set", req.id(), "--ciuser", "root"),
		)
	}
	return append(cmds, qm("template", req.id()))
}

// RegisterCommands returns the qm invocations Register runs, with the disk
// name Proxmox is expected to assign.
func RegisterCommands(req RegisterRequest) []runner.Command {
	cmds := []runner.Command{createCommand(req), importCommand(req)}
	return append(cmds, configureCommands(req, req.Storage.DiskName(req.VMID))...)
}

// Register creates a VM, imports the image as its boot disk and converts it
// into a template. If a step after creation fails, the VM is destroyed
// unless KeepOnFailure is set.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (err error) {
	if req.Storage == nil {
		return errors.New("no storage given")
	}

	if _, err := c.runner.Run(ctx, createCommand(req)); err != nil {
		return fmt.Errorf("failed to create vm %d: %w", req.VMID, err)
	}

	defer func() {
		if err == nil || req.KeepOnFailure {
			return
		}
		// The caller's context may already be cancelled.
		if derr := c.Destroy(context.WithoutCancel(ctx), req.VMID); derr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", derr))
			return
		}
		c.logger.Info("removed partially created vm", "vmid", req.VMID)
	}()

	res, err := c.runner.Run(ctx, importCommand(req))
	if err != nil {
		return fmt.Errorf("failed to import disk: %w", err)
	}

	disk := req.Storage.DiskName(req.VMID)
	if m := importedDisk.FindStringSubmatch(res.Stdout); m != nil {
		disk = m[1]
	} else {
		c.logger.Warn("could not find imported disk name, guessing", "disk", disk)
	}

	for _, cmd := range configureCommands(req, disk) {
		if _, err := c.runner.Run(ctx, cmd); err != nil {
			return fmt.Errorf("failed to configure vm %d: %w", req.VMID, err)
		}
	}
	return nil
}

// Destroy removes a VM and its disks.
func (c *Client) Destroy(ctx context.Context, vmid int) error {
	_, err := c.runner.Run(ctx, qm("destroy", strconv.Itoa(vmid), "--purge"))
	return err
}

func qm(args ...string) runner.Command {
	return runner.Command{Name: "qm", Args: args}
}
