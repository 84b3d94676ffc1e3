// Package projectconfig provides the ProjectConfig struct and loader for
// .dynlab.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dynlab/dynlab/internal/stability"
	"github.com/dynlab/dynlab/internal/turns"
	"github.com/dynlab/dynlab/internal/validation"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".dynlab.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultWindow         = 25
	DefaultBandK          = 1.0
	DefaultSigmaThreshold = 80.0
	DefaultPersistLength  = 50
	DefaultScope          = turns.ScopeGPT

	DefaultServerPort = 3000
)

// ErrInvalidConfig is returned when .dynlab.yaml fails schema validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// AnalysisConfig holds the default stability analysis parameters.
type AnalysisConfig struct {
	Window         int         `yaml:"window,omitempty"`
	BandK          *float64    `yaml:"band_k,omitempty"`
	SigmaThreshold *float64    `yaml:"sigma_threshold,omitempty"`
	PersistLength  int         `yaml:"persist_length,omitempty"`
	Scope          turns.Scope `yaml:"scope,omitempty"`
	ShowBand       *bool       `yaml:"show_band,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .dynlab.yaml.
type ProjectConfig struct {
	Analysis AnalysisConfig `yaml:"analysis,omitempty"`
	// Threads maps a display name to a thread CSV path.
	Threads map[string]string `yaml:"threads,omitempty"`
	Server  ServerConfig      `yaml:"server,omitempty"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Analysis: AnalysisConfig{
			Window:         DefaultWindow,
			BandK:          floatPtr(DefaultBandK),
			SigmaThreshold: floatPtr(DefaultSigmaThreshold),
			PersistLength:  DefaultPersistLength,
			Scope:          DefaultScope,
			ShowBand:       boolPtr(true),
		},
		Threads: map[string]string{},
		Server: ServerConfig{
			Port: DefaultServerPort,
		},
	}
}

// Params returns the configured analysis parameters.
func (c *ProjectConfig) Params() stability.Params {
	return stability.Params{
		Window:         c.Analysis.Window,
		SigmaThreshold: deref(c.Analysis.SigmaThreshold, DefaultSigmaThreshold),
		PersistLength:  c.Analysis.PersistLength,
		BandK:          deref(c.Analysis.BandK, DefaultBandK),
	}
}

// ShowBand reports whether renderers should draw the ±kσ band.
func (c *ProjectConfig) ShowBand() bool {
	return deref(c.Analysis.ShowBand, true)
}

// ThreadNames returns the configured thread names in sorted order.
func (c *ProjectConfig) ThreadNames() []string {
	names := make([]string, 0, len(c.Threads))
	for name := range c.Threads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ThreadPath returns the CSV path for a configured thread.
func (c *ProjectConfig) ThreadPath(name string) (string, bool) {
	p, ok := c.Threads[name]
	return p, ok
}

// Load finds .dynlab.yaml by walking up from startDir (max 10 levels),
// validates and unmarshals it, and fills in missing fields with defaults.
// Relative thread paths are resolved against the directory holding the
// file. If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, path, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil // no file found → return defaults
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	if errs := validation.ValidateConfigBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidConfig, path, strings.Join(errs, "; "))
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	baseDir := filepath.Dir(path)
	for name, p := range fileCfg.Threads {
		if !filepath.IsAbs(p) {
			fileCfg.Threads[name] = filepath.Join(baseDir, p)
		}
	}

	// Merge file values onto defaults.
	mergeConfig(cfg, &fileCfg)
	cfg.Path = path
	return cfg, nil
}

// findConfigFile walks up from dir looking for .dynlab.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found. Propagates real I/O
// errors (e.g. permission denied) instead of silently swallowing them.
func findConfigFile(dir string) ([]byte, string, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, p, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, "", os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Analysis
	if src.Analysis.Window != 0 {
		dst.Analysis.Window = src.Analysis.Window
	}
	if src.Analysis.BandK != nil {
		dst.Analysis.BandK = src.Analysis.BandK
	}
	if src.Analysis.SigmaThreshold != nil {
		dst.Analysis.SigmaThreshold = src.Analysis.SigmaThreshold
	}
	if src.Analysis.PersistLength != 0 {
		dst.Analysis.PersistLength = src.Analysis.PersistLength
	}
	if src.Analysis.Scope != "" {
		dst.Analysis.Scope = src.Analysis.Scope
	}
	if src.Analysis.ShowBand != nil {
		dst.Analysis.ShowBand = src.Analysis.ShowBand
	}

	// Threads
	for name, p := range src.Threads {
		dst.Threads[name] = p
	}

	// Server
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if len(src.Server.AllowedOrigins) > 0 {
		dst.Server.AllowedOrigins = src.Server.AllowedOrigins
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func floatPtr(f float64) *float64 {
	return &f
}

func deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
