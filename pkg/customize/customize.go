// Package customize applies file uploads and shell commands to a disk image
// offline, without booting it.
package customize

import (
	"context"
	"fmt"
	"os"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/manifest"
)

// OpKind distinguishes uploads from commands.
type OpKind int

const (
	OpUpload OpKind = iota
	OpCommand
)

// String returns the string representation of OpKind.
func (k OpKind) String() string {
	switch k {
	case OpUpload:
		return "upload"
	case OpCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Op is a single customization applied to the guest filesystem.
type Op struct {
	Kind    OpKind
	Index   int // Position within its kind, as listed in the manifest
	Upload  manifest.Upload
	Command string
}

// String describes the op for logs and errors.
func (o Op) String() string {
	if o.Kind == OpUpload {
		return fmt.Sprintf("upload #%d %s", o.Index+1, o.Upload)
	}
	return fmt.Sprintf("command #%d %q", o.Index+1, o.Command)
}

// Ops returns the customizations of a template in application order:
// every upload in listed order, then every command in listed order.
func Ops(t manifest.Template) []Op {
	ops := make([]Op, 0, len(t.Uploads)+len(t.Commands))
	for i, u := range t.Uploads {
		ops = append(ops, Op{Kind: OpUpload, Index: i, Upload: u})
	}
	for i, c := range t.Commands {
		ops = append(ops, Op{Kind: OpCommand, Index: i, Command: c})
	}
	return ops
}

// ObserveFunc is called when the engine starts applying an op.
type ObserveFunc func(op Op)

// Engine applies ops to a disk image in order.
type Engine interface {
	Customize(ctx context.Context, image string, ops []Op, observe ObserveFunc) error
}

// OpError reports the op that was being applied when customization failed.
type OpError struct {
	Op  Op
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// CheckSources verifies that every upload source is a readable regular file.
// Zero-length files are valid: uploading one truncates the guest file.
func CheckSources(ops []Op) error {
	for _, op := range ops {
		if op.Kind != OpUpload {
			continue
		}
		info, err := os.Stat(op.Upload.Local)
		if err != nil {
			return &OpError{Op: op, Err: fmt.Errorf("local file: %w", err)}
		}
		if !info.Mode().IsRegular() {
			return &OpError{Op: op, Err: fmt.Errorf("local file %s is not a regular file", op.Upload.Local)}
		}
	}
	return nil
}
