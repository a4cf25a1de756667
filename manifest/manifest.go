// Package manifest handles classreg.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/classreg/loader"
)

// FileName is the name of the configuration file.
const FileName = "classreg.toml"

// Manifest represents a classreg.toml configuration.
type Manifest struct {
	Runtime Runtime        `toml:"runtime"`
	Log     Log            `toml:"log"`
	Loaders []LoaderConfig `toml:"loader"`

	// Dir is the directory containing the classreg.toml file (set at load time).
	Dir string `toml:"-"`
}

// Runtime holds the switches every engine of the loader graph shares.
type Runtime struct {
	EnforceFinalSuper  *bool    `toml:"enforce-final-super"`
	ReservedPrefixes   []string `toml:"reserved-prefixes"`
	RestrictedPackages []string `toml:"restricted-packages"`
	PreloadLimit       int      `toml:"preload-limit"`
}

// Log configures the log backend.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// LoaderConfig declares one loader of the graph. The built-in "boot" and
// "platform" loaders may be declared to give them a class path.
type LoaderConfig struct {
	Name      string   `toml:"name"`
	Kind      string   `toml:"kind"`
	Parent    string   `toml:"parent"`
	Classpath []string `toml:"classpath"`
	Preload   []string `toml:"preload"`
}

// Load parses a classreg.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes and validates classreg.toml content and applies defaults.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	// Defaults
	if m.Runtime.EnforceFinalSuper == nil {
		enforce := true
		m.Runtime.EnforceFinalSuper = &enforce
	}
	if m.Runtime.PreloadLimit == 0 {
		m.Runtime.PreloadLimit = loader.DefaultPreloadLimit
	}
	for i := range m.Loaders {
		lc := &m.Loaders[i]
		if lc.Kind == "" {
			lc.Kind = defaultKind(lc.Name)
		}
		if lc.Parent == "" && lc.Kind == "app" {
			lc.Parent = loader.PlatformName
		}
	}

	prefixes, err := normalizePrefixes(m.Runtime.ReservedPrefixes)
	if err != nil {
		return nil, err
	}
	m.Runtime.ReservedPrefixes = prefixes
	return &m, nil
}

// FindAndLoad walks up from startDir to find a classreg.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Options returns the loader options the runtime section describes.
func (m *Manifest) Options() loader.Options {
	opts := loader.DefaultOptions()
	if m.Runtime.EnforceFinalSuper != nil {
		opts.EnforceFinalSuper = *m.Runtime.EnforceFinalSuper
	}
	opts.ReservedPrefixes = m.Runtime.ReservedPrefixes
	opts.RestrictedPackages = m.Runtime.RestrictedPackages
	if m.Runtime.PreloadLimit > 0 {
		opts.PreloadLimit = m.Runtime.PreloadLimit
	}
	return opts
}

// LogFilePath returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogFilePath() string {
	if m.Log.File == "" || filepath.IsAbs(m.Log.File) {
		return m.Log.File
	}
	return filepath.Join(m.Dir, m.Log.File)
}

// Loader returns the configuration of the loader called name.
func (m *Manifest) Loader(name string) *LoaderConfig {
	for i := range m.Loaders {
		if m.Loaders[i].Name == name {
			return &m.Loaders[i]
		}
	}
	return nil
}
