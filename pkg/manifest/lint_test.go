package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLint(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "a.cfg")
	empty := filepath.Join(dir, "empty")
	assert.NoError(t, os.WriteFile(present, []byte("x=1\n"), 0644))
	assert.NoError(t, os.WriteFile(empty, nil, 0644))

	t.Run("clean manifest", func(t *testing.T) {
		m := &Manifest{
			Aliases: map[string]string{"root": "passwd -d root"},
			Templates: []Template{
				{VMID: 9000, Name: "a", Uploads: []Upload{{Local: empty, Remote: "/etc/machine-id"}},
					Commands: []string{"passwd -d root"}, AliasRefs: []string{"root"}},
				{VMID: 9001, Name: "b"},
			},
		}
		result := Lint(m)
		assert.Empty(t, result.Issues)
		assert.False(t, result.HasErrors())
	})

	t.Run("collisions and missing sources", func(t *testing.T) {
		m := &Manifest{
			Aliases: map[string]string{"unused": "true"},
			Templates: []Template{
				{VMID: 9000, Name: "a", Uploads: []Upload{
					{Local: present, Remote: "/etc/x"},
					{Local: present, Remote: "/etc/x"},
				}},
				{VMID: 9000, Name: "b", Uploads: []Upload{{Local: filepath.Join(dir, "nope"), Remote: "/etc/y"}}},
				{VMID: 9002, Name: "a", Uploads: []Upload{{Local: dir, Remote: "/etc/z"}}},
				{VMID: 9003, Name: "d", Unpack: "unzip {dl}"},
			},
		}

		result := Lint(m)
		assert.Equal(t, 4, result.ErrorCount())
		assert.Equal(t, 3, result.WarningCount())
		assert.True(t, result.HasErrors())

		var messages []string
		for _, issue := range result.Issues {
			messages = append(messages, issue.Message)
		}
		assert.Contains(t, messages, `vmid 9000 is also used by template "a"`)
		assert.Contains(t, messages, `name "a" is also used by vmid 9000`)
		assert.Contains(t, messages, "guest path /etc/x is uploaded more than once")
		assert.Contains(t, messages, `alias "unused" is never used`)
		assert.Contains(t, messages, "unpack command does not reference both {dl} and {img}")
	})
}

func TestLint_AliasUseComesFromReferences(t *testing.T) {
	content := `
aliases:
  upgrade: &upgrade apt-get -y upgrade
  clean: apt-get clean
  agent: apt-get install -y qemu-guest-agent
templates:
  - vmid: 9000
    name: a
    url: https://x/a.img
    customize:
      commands:
        - *upgrade
        - alias: agent
        - apt-get clean
`
	m, err := Parse(strings.NewReader(content), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"upgrade", "agent"}, m.Templates[0].AliasRefs)

	var messages []string
	for _, issue := range Lint(m).Issues {
		messages = append(messages, issue.Message)
	}
	assert.Equal(t, []string{`alias "clean" is never used`}, messages,
		"a literal equal to an alias body is not a reference")
}

func TestParse_AliasDefinedTwice(t *testing.T) {
	content := "aliases:\n  a: echo a\n  a: echo b\ntemplates:\n  - {vmid: 9000, name: a, url: \"https://x/a.img\"}\n"

	_, err := Parse(strings.NewReader(content), t.TempDir())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManifest)
	assert.Contains(t, err.Error(), `alias "a" is defined twice`)
}
