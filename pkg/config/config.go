// Package config loads the optional workspace configuration file.
package config

import (
	"bytes"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// FileNames are looked up, in order, at the workspace root.
var FileNames = []string{".promptls.yaml", ".promptls.yml", ".promptls.hcl"}

// DefaultFiles are the globs served when the config does not say otherwise.
var DefaultFiles = []string{"**/*.prompt", "**/*.txt", "**/*.sdprompt"}

// Config is the workspace configuration.
type Config struct {
	// Files are doublestar globs of documents the server handles
	Files []string `json:"files,omitempty" yaml:"files,omitempty" hcl:"files,optional"`

	// Theme colors, one per token type
	Theme *Theme `json:"theme,omitempty" yaml:"theme,omitempty" hcl:"theme,block"`

	// Glossary maps prompt words to the text shown in hover tooltips
	Glossary map[string]string `json:"glossary,omitempty" yaml:"glossary,omitempty" hcl:"glossary,optional"`

	// LogLevel is a zerolog level name
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty" hcl:"log_level,optional"`
}

// Default returns the built in configuration.
func Default() *Config {
	return &Config{
		Files:    append([]string(nil), DefaultFiles...),
		Theme:    DefaultTheme(),
		Glossary: map[string]string{},
		LogLevel: zerolog.InfoLevel.String(),
	}
}

// Find returns the first config file present in dir.
func Find(fs afero.Fs, dir string) (string, bool) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if ok, err := afero.Exists(fs, p); err == nil && ok {
			return p, true
		}
	}
	return "", false
}

// LoadFromDir loads the config file in dir, or the defaults when there is
// none. The returned path is empty in the latter case.
func LoadFromDir(fs afero.Fs, dir string) (*Config, string, error) {
	p, ok := Find(fs, dir)
	if !ok {
		return Default(), "", nil
	}
	cfg, err := Load(fs, p)
	if err != nil {
		return nil, p, err
	}
	return cfg, p, nil
}

// Load reads a YAML or HCL config file, fills unset fields with defaults
// and validates the result.
func Load(fs afero.Fs, p string) (*Config, error) {
	data, err := afero.ReadFile(fs, p)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(p, data)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating %s: %w", p, err)
	}

	return cfg, nil
}

// Parse decodes config bytes, picking the format from the file extension.
func Parse(p string, data []byte) (*Config, error) {
	var cfg Config

	switch strings.ToLower(path.Ext(filepath.ToSlash(p))) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Errorf("parsing YAML: %w", err)
		}
	case ".hcl":
		parser := hclparse.NewParser()
		hclFile, diags := parser.ParseHCL(data, p)
		if diags.HasErrors() {
			return nil, errors.Errorf("parsing HCL: %s", diags.Error())
		}

		ctx := &hcl.EvalContext{
			Variables: map[string]cty.Value{},
		}

		diags = gohcl.DecodeBody(hclFile.Body, ctx, &cfg)
		if diags.HasErrors() {
			return nil, errors.Errorf("decoding HCL: %s", diags.Error())
		}
	default:
		return nil, errors.Errorf("unsupported config format %q", path.Ext(p))
	}

	cfg.fillDefaults()
	return &cfg, nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if len(c.Files) == 0 {
		c.Files = def.Files
	}
	if c.Theme == nil {
		c.Theme = def.Theme
	} else {
		if c.Theme.SingleTag == "" {
			c.Theme.SingleTag = def.Theme.SingleTag
		}
		if len(c.Theme.Brackets) == 0 {
			c.Theme.Brackets = def.Theme.Brackets
		}
	}
	if c.Glossary == nil {
		c.Glossary = def.Glossary
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Level is the parsed LogLevel, info when unset or invalid.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Matches reports whether a document path is covered by Files. Globs are
// tried against the slash separated path and its base name.
func (c *Config) Matches(p string) bool {
	p = strings.TrimPrefix(filepath.ToSlash(p), "/")
	base := path.Base(p)
	for _, glob := range c.Files {
		if ok, _ := doublestar.Match(glob, p); ok {
			return true
		}
		if ok, _ := doublestar.Match(glob, base); ok {
			return true
		}
	}
	return false
}
