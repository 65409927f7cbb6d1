package images

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/runner"
)

func TestUnpackCommand(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		download string
		image    string
		want     string
	}{
		{
			name:     "plain paths",
			script:   "xz -dc {dl} > {img}",
			download: "/var/tmp/cloud_img/debian.img.download",
			image:    "/var/tmp/cloud_img/debian.img",
			want:     "xz -dc /var/tmp/cloud_img/debian.img.download > /var/tmp/cloud_img/debian.img",
		},
		{
			name:     "paths with spaces are quoted",
			script:   "unzip -p {dl} > {img}",
			download: "/scratch dir/a.img.download",
			image:    "/scratch dir/a.img",
			want:     "unzip -p '/scratch dir/a.img.download' > '/scratch dir/a.img'",
		},
		{
			name:     "repeated placeholders",
			script:   "cp {dl} {img} && test -s {img}",
			download: "/d",
			image:    "/i",
			want:     "cp /d /i && test -s /i",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnpackCommand(tt.script, tt.download, tt.image)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnpacker_Unpack(t *testing.T) {
	ctx := context.Background()

	t.Run("no script renames the download", func(t *testing.T) {
		dir := t.TempDir()
		dl := DownloadPath(dir, "ubuntu")
		img := ImagePath(dir, "ubuntu")
		require.NoError(t, os.WriteFile(dl, []byte("qcow2"), 0644))

		require.NoError(t, NewUnpacker(runner.NewExec(nil)).Unpack(ctx, "", dl, img))

		assert.NoFileExists(t, dl)
		data, err := os.ReadFile(img)
		require.NoError(t, err)
		assert.Equal(t, "qcow2", string(data))
	})

	t.Run("script output replaces the download", func(t *testing.T) {
		dir := t.TempDir()
		dl := DownloadPath(dir, "debian")
		img := ImagePath(dir, "debian")
		require.NoError(t, os.WriteFile(dl, []byte("raw disk"), 0644))

		require.NoError(t, NewUnpacker(runner.NewExec(nil)).Unpack(ctx, "cat {dl} > {img}", dl, img))

		assert.NoFileExists(t, dl)
		data, err := os.ReadFile(img)
		require.NoError(t, err)
		assert.Equal(t, "raw disk", string(data))
	})

	t.Run("script that produces nothing", func(t *testing.T) {
		dir := t.TempDir()
		dl := filepath.Join(dir, "x.img.download")
		require.NoError(t, os.WriteFile(dl, []byte("x"), 0644))

		err := NewUnpacker(runner.NewExec(nil)).Unpack(ctx, "true", dl, filepath.Join(dir, "x.img"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unpack did not produce")
	})

	t.Run("failing script", func(t *testing.T) {
		dir := t.TempDir()
		dl := filepath.Join(dir, "x.img.download")
		require.NoError(t, os.WriteFile(dl, []byte("x"), 0644))

		err := NewUnpacker(runner.NewExec(nil)).Unpack(ctx, "exit 4", dl, filepath.Join(dir, "x.img"))

		var exitErr *runner.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 4, exitErr.ExitCode)
	})
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/scratch/ubuntu-noble.img.download", DownloadPath("/scratch", "ubuntu-noble"))
	assert.Equal(t, "/scratch/ubuntu-noble.img", ImagePath("/scratch", "ubuntu-noble"))
}
