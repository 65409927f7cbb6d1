package customize

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/runner"
)

// DefaultBackend avoids libguestfs' libvirt backend, which cannot read
// root-owned kernels when running as root on Proxmox hosts.
const DefaultBackend = "direct"

// virt-customize prints "[   3.1] Uploading: a.cfg to /etc/x.cfg" and
// "[   3.4] Running: echo hi" before applying each op.
var progressLine = regexp.MustCompile(`^\[\s*[0-9.]+\]\s+(Uploading|Running):\s`)

// VirtCustomize is the Engine backed by libguestfs' virt-customize.
type VirtCustomize struct {
	runner  runner.Runner
	Binary  string
	Backend string        // LIBGUESTFS_BACKEND value, empty leaves it unset
	Timeout time.Duration // Zero means no timeout beyond the caller's context
}

// NewVirtCustomize creates an engine using the given runner.
func NewVirtCustomize(r runner.Runner) *VirtCustomize {
	return &VirtCustomize{
		runner:  r,
		Binary:  "virt-customize",
		Backend: DefaultBackend,
	}
}

// Command builds the single virt-customize invocation for ops.
func (v *VirtCustomize) Command(image string, ops []Op) runner.Command {
	args := []string{"-a", image}
	for _, op := range ops {
		switch op.Kind {
		case OpUpload:
			args = append(args, "--upload", op.Upload.String())
		case OpCommand:
			args = append(args, "--run-command", op.Command)
		}
	}

	cmd := runner.Command{Name: v.Binary, Args: args}
	if v.Backend != "" {
		cmd.Env = []string{"LIBGUESTFS_BACKEND=" + v.Backend}
	}
	return cmd
}

// Customize applies ops to image in one virt-customize run. A failure is
// attributed to the last op the tool reported starting; failures before the
// first op are attributed to the first op, which could not be applied.
func (v *VirtCustomize) Customize(ctx context.Context, image string, ops []Op, observe ObserveFunc) error {
	if len(ops) == 0 {
		return nil
	}
	if err := CheckSources(ops); err != nil {
		return err
	}

	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}

	current := -1
	cmd := v.Command(image, ops)
	cmd.OnLine = func(line string) {
		if !progressLine.MatchString(line) || current+1 >= len(ops) {
			return
		}
		current++
		if observe != nil {
			observe(ops[current])
		}
	}

	_, err := v.runner.Run(ctx, cmd)
	if err == nil {
		return nil
	}

	failed := ops[0]
	if current >= 0 {
		failed = ops[current]
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("virt-customize timed out after %s: %w", v.Timeout, err)
	}
	return &OpError{Op: failed, Err: err}
}
