// Package sample provides the example manifest written by "pvetmpl init".
package sample

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Manifest is the example templates.yaml.
//
//go:embed templates.yaml
var Manifest string

//go:embed templates.yaml files
var files embed.FS

// ErrExists is returned when a file would be overwritten.
var ErrExists = errors.New("file already exists")

// Write copies the sample manifest and the files it uploads into dir. It
// returns the paths written. Existing files are only replaced when force is
// set.
func Write(dir string, force bool) ([]string, error) {
	var written []string
	err := fs.WalkDir(files, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		dest := filepath.Join(dir, filepath.FromSlash(path))
		if _, err := os.Stat(dest); err == nil && !force {
			return fmt.Errorf("%w: %s", ErrExists, dest)
		}

		data, err := files.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(dest, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", dest, err)
		}
		written = append(written, dest)
		return nil
	})
	return written, err
}
