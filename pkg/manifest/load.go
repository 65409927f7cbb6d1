package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/syntax"
)

var (
	namePattern   = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?$`)
	sha256Pattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
)

type rawManifest struct {
	Aliases   aliasMap          `yaml:"aliases"`
	Templates []rawTemplate     `yaml:"templates"`
}

type rawTemplate struct {
	VMID      *int          `yaml:"vmid"`
	Name      string        `yaml:"name"`
	URL       string        `yaml:"url"`
	SHA256    string        `yaml:"sha256"`
	Unpack    string        `yaml:"unpack"`
	CloudInit bool          `yaml:"cloud_init"`
	Memory    int           `yaml:"memory"`
	Bridge    string        `yaml:"bridge"`
	Customize *rawCustomize `yaml:"customize"`
}

type rawCustomize struct {
	Uploads  []string     `yaml:"uploads"`
	Commands []commandRef `yaml:"commands"`
}

// aliasDef is one entry of the top-level aliases map. Anchor is the YAML
// anchor declared on its value, if any.
type aliasDef struct {
	Command string
	Anchor  string
}

type aliasMap map[string]aliasDef

func (a *aliasMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: aliases must map names to commands", node.Line)
	}
	m := make(aliasMap, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if _, dup := m[key.Value]; dup {
			return fmt.Errorf("line %d: alias %q is defined twice", key.Line, key.Value)
		}
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: alias %q must be a command string", val.Line, key.Value)
		}
		m[key.Value] = aliasDef{Command: val.Value, Anchor: val.Anchor}
	}
	*a = m
	return nil
}

// commandRef is one entry of customize.commands: a literal command or a
// reference to a named alias. YAML aliases (*name) are resolved by the YAML
// decoder and arrive here as literals carrying the anchor of the node they
// point to.
type commandRef struct {
	Literal string
	Alias   string
	Anchor  string
	Line    int
}

func (c *commandRef) UnmarshalYAML(node *yaml.Node) error {
	c.Line = node.Line
	switch node.Kind {
	case yaml.ScalarNode:
		c.Literal = node.Value
		c.Anchor = node.Anchor
		return nil
	case yaml.MappingNode:
		var ref struct {
			Alias string `yaml:"alias"`
		}
		if err := node.Decode(&ref); err != nil {
			return err
		}
		if ref.Alias == "" {
			return fmt.Errorf("line %d: command reference must be {alias: <name>}", node.Line)
		}
		c.Alias = ref.Alias
		return nil
	default:
		return fmt.Errorf("line %d: command must be a string or {alias: <name>}", node.Line)
	}
}

// Load reads and resolves the manifest at path. Relative upload paths are
// resolved against the manifest's directory.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}

	m, err := Parse(bytes.NewReader(data), filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = abs
	return m, nil
}

// Parse decodes a manifest. baseDir anchors relative upload paths.
func Parse(r io.Reader, baseDir string) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var raw rawManifest
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: manifest is empty", ErrManifest)
		}
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}

	if len(raw.Templates) == 0 {
		return nil, fmt.Errorf("%w: no templates defined", ErrManifest)
	}

	aliases := make(map[string]string, len(raw.Aliases))
	anchors := make(map[string]string)
	for name, def := range raw.Aliases {
		cmd := def.Command
		if strings.TrimSpace(cmd) == "" {
			return nil, fmt.Errorf("%w: alias %q is empty", ErrManifest, name)
		}
		if err := checkShell(cmd); err != nil {
			return nil, fmt.Errorf("%w: alias %q: %v", ErrManifest, name, err)
		}
		aliases[name] = cmd
		if def.Anchor != "" {
			anchors[def.Anchor] = name
		}
	}

	m := &Manifest{Aliases: aliases}
	for i, rt := range raw.Templates {
		t, err := rt.resolve(aliases, anchors, baseDir)
		if err != nil {
			label := fmt.Sprintf("templates[%d]", i)
			if rt.Name != "" {
				label += fmt.Sprintf(" (%s)", rt.Name)
			}
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		m.Templates = append(m.Templates, t)
	}

	return m, nil
}

// resolve validates a template and substitutes alias references. anchors maps
// YAML anchor names to the alias that declares them.
func (rt rawTemplate) resolve(aliases, anchors map[string]string, baseDir string) (Template, error) {
	if rt.VMID == nil {
		return Template{}, fmt.Errorf("%w: missing required field \"vmid\"", ErrManifest)
	}
	if rt.Name == "" {
		return Template{}, fmt.Errorf("%w: missing required field \"name\"", ErrManifest)
	}
	if rt.URL == "" {
		return Template{}, fmt.Errorf("%w: missing required field \"url\"", ErrManifest)
	}

	t := Template{
		VMID:      *rt.VMID,
		Name:      rt.Name,
		URL:       rt.URL,
		SHA256:    strings.ToLower(rt.SHA256),
		Unpack:    rt.Unpack,
		CloudInit: rt.CloudInit,
		Memory:    rt.Memory,
		Bridge:    rt.Bridge,
	}

	if t.VMID < MinVMID || t.VMID > MaxVMID {
		return Template{}, fmt.Errorf("%w: vmid %d out of range %d-%d", ErrManifest, t.VMID, MinVMID, MaxVMID)
	}
	if !namePattern.MatchString(t.Name) {
		return Template{}, fmt.Errorf("%w: name %q is not a valid DNS name", ErrManifest, t.Name)
	}
	if err := checkURL(t.URL); err != nil {
		return Template{}, err
	}
	if t.SHA256 != "" && !sha256Pattern.MatchString(t.SHA256) {
		return Template{}, fmt.Errorf("%w: sha256 %q is not a hex SHA-256 digest", ErrManifest, rt.SHA256)
	}
	if t.Memory < 0 {
		return Template{}, fmt.Errorf("%w: memory must be positive", ErrManifest)
	}
	if t.Unpack != "" {
		if err := checkShell(t.Unpack); err != nil {
			return Template{}, fmt.Errorf("%w: unpack: %v", ErrManifest, err)
		}
	}

	if rt.Customize == nil {
		return t, nil
	}

	for _, s := range rt.Customize.Uploads {
		u, err := ParseUpload(s)
		if err != nil {
			return Template{}, err
		}
		if !filepath.IsAbs(u.Local) {
			u.Local = filepath.Join(baseDir, u.Local)
			if strings.Contains(u.Local, ":") {
				return Template{}, fmt.Errorf("%w: upload %q resolves to %s, which contains ':'", ErrManifest, s, u.Local)
			}
		}
		t.Uploads = append(t.Uploads, u)
	}

	for _, ref := range rt.Customize.Commands {
		cmd := ref.Literal
		if ref.Alias != "" {
			resolved, ok := aliases[ref.Alias]
			if !ok {
				return Template{}, fmt.Errorf("%w: line %d: unknown alias %q", ErrManifest, ref.Line, ref.Alias)
			}
			cmd = resolved
			t.AliasRefs = append(t.AliasRefs, ref.Alias)
		} else if name, ok := anchors[ref.Anchor]; ok && aliases[name] == cmd {
			t.AliasRefs = append(t.AliasRefs, name)
		}
		if strings.TrimSpace(cmd) == "" {
			return Template{}, fmt.Errorf("%w: line %d: empty command", ErrManifest, ref.Line)
		}
		if err := checkShell(cmd); err != nil {
			return Template{}, fmt.Errorf("%w: line %d: %v", ErrManifest, ref.Line, err)
		}
		t.Commands = append(t.Commands, cmd)
	}

	return t, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: url %q: %v", ErrManifest, raw, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("%w: url %q has no host", ErrManifest, raw)
		}
	case "s3":
		if u.Host == "" || strings.Trim(u.Path, "/") == "" {
			return fmt.Errorf("%w: url %q must be s3://<bucket>/<key>", ErrManifest, raw)
		}
	default:
		return fmt.Errorf("%w: url %q: unsupported scheme %q", ErrManifest, raw, u.Scheme)
	}
	return nil
}

// checkShell parses cmd as a shell program so syntax errors surface before
// any image is downloaded.
func checkShell(cmd string) error {
	if _, err := syntax.NewParser().Parse(strings.NewReader(cmd), ""); err != nil {
		return fmt.Errorf("shell syntax error: %w", err)
	}
	return nil
}
