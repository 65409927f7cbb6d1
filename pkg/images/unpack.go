package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/runner"
)

// Placeholders substituted into unpack commands.
const (
	PlaceholderDownload = "{dl}"
	PlaceholderImage    = "{img}"
)

// Unpacker turns a downloaded file into a disk image.
type Unpacker struct {
	runner runner.Runner
}

// NewUnpacker creates an unpacker that runs commands through r.
func NewUnpacker(r runner.Runner) *Unpacker {
	return &Unpacker{runner: r}
}

// UnpackCommand substitutes the quoted download and image paths into script.
func UnpackCommand(script, download, image string) (string, error) {
	for _, path := range []string{download, image} {
		if strings.ContainsRune(path, 0) {
			return "", fmt.Errorf("cannot quote path %q", path)
		}
	}
	r := strings.NewReplacer(PlaceholderDownload, runner.Quote(download), PlaceholderImage, runner.Quote(image))
	return r.Replace(script), nil
}

// Unpack runs script to produce image from download. With an empty script
// the download is the image and is renamed into place. The download is
// removed once the image exists.
func (u *Unpacker) Unpack(ctx context.Context, script, download, image string) error {
	if script == "" {
		if err := os.Rename(download, image); err != nil {
			return fmt.Errorf("failed to move %s: %w", download, err)
		}
		return nil
	}

	line, err := UnpackCommand(script, download, image)
	if err != nil {
		return err
	}
	if _, err := u.runner.Run(ctx, runner.Command{Name: "sh", Args: []string{"-c", line}}); err != nil {
		return err
	}

	info, err := os.Stat(image)
	if err != nil {
		return fmt.Errorf("unpack did not produce %s: %w", image, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("unpack produced an empty image %s", image)
	}

	os.Remove(download)
	return nil
}

// DownloadPath returns where the raw download for a template is stored.
func DownloadPath(dir, name string) string {
	return filepath.Join(dir, name+".img.download")
}

// ImagePath returns where the customizable disk image for a template lives.
func ImagePath(dir, name string) string {
	return filepath.Join(dir, name+".img")
}
