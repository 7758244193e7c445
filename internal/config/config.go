// Package config loads the optional .testbuild project file and merges it
// with command-line overrides into an immutable Settings value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/deixis/testbuild/internal/toolchain"
)

// Default values, matching the layout of a header-only library with its
// tests in test/ and headers in include/.
const (
	DefaultTimeout   = 5 * time.Minute
	DefaultMaxOutput = 1 << 20 // 1 MB
	DefaultBuildDir  = "../build_test"
	DefaultCompiler  = "gcc"
	DefaultExtension = "cpp"
)

var (
	DefaultIncludePaths = []string{"", "../include/"}
	DefaultMacros       = []string{"NO_DEBUG", "NDEBUG"}
	DefaultMemcheck     = []string{"valgrind", "--leak-check=full", "--error-exitcode=1"}
	DefaultCoverage     = []string{"gcov"}
)

// FileNames are the project file names searched for, in order.
var FileNames = []string{".testbuild.yaml", ".testbuild.yml", ".testbuild.toml"}

// Config holds the parsed project file. All fields are optional; zero
// values mean defaults.
type Config struct {
	Version           int                      `yaml:"version" toml:"version"`
	RawTimeout        string                   `yaml:"timeout" toml:"timeout"`       // e.g. "5m", "30s"
	RawMaxOutput      int                      `yaml:"max_output" toml:"max_output"` // bytes
	BuildDir          string                   `yaml:"build_dir" toml:"build_dir"`
	CompilerBuildDirs bool                     `yaml:"compiler_build_dirs" toml:"compiler_build_dirs"`
	Extension         string                   `yaml:"extension" toml:"extension"`
	IncludePaths      []string                 `yaml:"include_paths" toml:"include_paths"`
	Macros            []string                 `yaml:"macros" toml:"macros"`
	Compiler          string                   `yaml:"compiler" toml:"compiler"`
	Compilers         map[string]ProfileConfig `yaml:"compilers" toml:"compilers"`
	Memcheck          []string                 `yaml:"memcheck" toml:"memcheck"` // argv prefix
	Coverage          []string                 `yaml:"coverage" toml:"coverage"` // argv prefix

	// dir is the directory holding the project file; relative paths in
	// the file are relative to it. Empty when no file was found.
	dir string
}

// ProfileConfig adds or overrides a compiler profile. Unset fields are
// inherited from the built-in profile named Base, or of the same name.
type ProfileConfig struct {
	Base          string   `yaml:"base" toml:"base"`
	Exe           string   `yaml:"exe" toml:"exe"`
	Flags         []string `yaml:"flags" toml:"flags"`
	Macro         string   `yaml:"macro" toml:"macro"`
	IncPath       string   `yaml:"incpath" toml:"incpath"`
	Obj           string   `yaml:"obj" toml:"obj"`
	Out           string   `yaml:"out" toml:"out"`
	JoinOutput    *bool    `yaml:"join_output" toml:"join_output"`
	CoverageFlags []string `yaml:"coverage_flags" toml:"coverage_flags"`
	ObjExt        string   `yaml:"obj_ext" toml:"obj_ext"`
}

// Timeout returns the configured per-command timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// CompilerName returns the configured default compiler or "gcc".
func (c *Config) CompilerName() string {
	if c.Compiler != "" {
		return c.Compiler
	}
	return DefaultCompiler
}

// TUExtension returns the translation unit extension without a dot.
func (c *Config) TUExtension() string {
	if c.Extension != "" {
		return trimDot(c.Extension)
	}
	return DefaultExtension
}

// BuildDirectory returns the build output directory.
func (c *Config) BuildDirectory() string {
	if c.BuildDir != "" {
		return c.relative(c.BuildDir)
	}
	return c.relative(DefaultBuildDir)
}

// SearchPaths returns the include search paths, in order.
func (c *Config) SearchPaths() []string {
	paths := DefaultIncludePaths
	if c.IncludePaths != nil {
		paths = c.IncludePaths
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		if p == "" {
			continue
		}
		out[i] = c.relative(p)
	}
	return out
}

// MacroList returns the macros defined for every compilation.
func (c *Config) MacroList() []string {
	if c.Macros != nil {
		return append([]string(nil), c.Macros...)
	}
	return append([]string(nil), DefaultMacros...)
}

// MemcheckArgv returns the memory checker argv prefix.
func (c *Config) MemcheckArgv() []string {
	if len(c.Memcheck) > 0 {
		return append([]string(nil), c.Memcheck...)
	}
	return append([]string(nil), DefaultMemcheck...)
}

// CoverageArgv returns the coverage tool argv prefix.
func (c *Config) CoverageArgv() []string {
	if len(c.Coverage) > 0 {
		return append([]string(nil), c.Coverage...)
	}
	return append([]string(nil), DefaultCoverage...)
}

// Profiles returns the built-in profile table with the project file's
// additions and overrides applied.
func (c *Config) Profiles() (map[string]toolchain.Profile, error) {
	table := toolchain.Builtin()
	builtin := toolchain.Builtin()
	for name, pc := range c.Compilers {
		base := pc.Base
		if base == "" {
			base = name
		}
		p, ok := builtin[base]
		if !ok && pc.Base != "" {
			return nil, fmt.Errorf("compiler %s: unknown base %q", name, pc.Base)
		}
		p.Name = name
		if pc.Exe != "" {
			p.Exe = pc.Exe
		}
		if pc.Flags != nil {
			p.Flags = append([]string(nil), pc.Flags...)
		}
		if pc.Macro != "" {
			p.Macro = pc.Macro
		}
		if pc.IncPath != "" {
			p.IncPath = pc.IncPath
		}
		if pc.Obj != "" {
			p.Obj = pc.Obj
		}
		if pc.Out != "" {
			p.Out = pc.Out
		}
		if pc.JoinOutput != nil {
			p.JoinOutput = *pc.JoinOutput
		}
		if pc.CoverageFlags != nil {
			p.CoverageFlags = append([]string(nil), pc.CoverageFlags...)
		}
		if pc.ObjExt != "" {
			p.ObjExt = pc.ObjExt
		}
		if p.Exe == "" || p.Out == "" {
			return nil, fmt.Errorf("compiler %s: exe and out are required", name)
		}
		table[name] = p
	}
	return table, nil
}

func (c *Config) relative(p string) string {
	if c.dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// Overrides are the command-line switches layered over the project file.
type Overrides struct {
	Compiler         string // empty keeps the configured compiler
	Clean            bool
	Recompile        bool
	ShowDependencies bool
	ContinueOnFail   bool
	Memcheck         bool
	Coverage         bool
	Timeout          time.Duration // zero keeps the configured timeout
}

// Settings is the immutable run configuration handed to every component.
type Settings struct {
	Profile      toolchain.Profile
	BuildDir     string
	IncludePaths []string
	Macros       []string
	Extension    string // translation unit extension, no dot
	ArtifactExt  string // ".exe" on Windows hosts
	Windows      bool

	// Root anchors artifact names and dependency lookup. Empty means the
	// process working directory.
	Root string

	Clean            bool
	Recompile        bool
	ShowDependencies bool
	ContinueOnFail   bool
	Memcheck         bool
	Coverage         bool

	MemcheckArgv []string
	CoverageArgv []string

	Timeout   time.Duration
	MaxOutput int
}

// Settings merges o into the project configuration. An unknown compiler
// yields a *toolchain.UnsupportedCompilerError.
func (c *Config) Settings(o Overrides) (Settings, error) {
	table, err := c.Profiles()
	if err != nil {
		return Settings{}, err
	}
	name := o.Compiler
	if name == "" {
		name = c.CompilerName()
	}
	profile, err := toolchain.Lookup(table, name)
	if err != nil {
		return Settings{}, err
	}

	buildDir := c.BuildDirectory()
	if c.CompilerBuildDirs {
		buildDir = filepath.Join(buildDir, profile.Name)
	}

	timeout := c.Timeout()
	if o.Timeout > 0 {
		timeout = o.Timeout
	}

	windows := runtime.GOOS == "windows"
	artifactExt := ""
	if windows {
		artifactExt = ".exe"
	}

	return Settings{
		Profile:          profile,
		BuildDir:         buildDir,
		IncludePaths:     c.SearchPaths(),
		Macros:           c.MacroList(),
		Extension:        c.TUExtension(),
		ArtifactExt:      artifactExt,
		Windows:          windows,
		Clean:            o.Clean,
		Recompile:        o.Recompile,
		ShowDependencies: o.ShowDependencies,
		ContinueOnFail:   o.ContinueOnFail,
		Memcheck:         o.Memcheck,
		Coverage:         o.Coverage,
		MemcheckArgv:     c.MemcheckArgv(),
		CoverageArgv:     c.CoverageArgv(),
		Timeout:          timeout,
		MaxOutput:        c.MaxOutputBytes(),
	}, nil
}

// Rooted returns a copy of s whose relative build directory and include
// paths are anchored at dir, with Root set to dir. Empty include paths are
// kept as is and resolve against Root.
func (s Settings) Rooted(dir string) Settings {
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	s.BuildDir = anchor(s.BuildDir)
	paths := make([]string, len(s.IncludePaths))
	for i, p := range s.IncludePaths {
		paths[i] = anchor(p)
	}
	s.IncludePaths = paths
	s.Root = dir
	return s
}

// LoadResult holds the parsed config and where it was found.
type LoadResult struct {
	Config *Config
	Path   string // project file path; empty if none was found
	Root   string // directory holding the project file; falls back to workspace
}

// Load searches workspace and its parents for a project file. If none
// exists, a default Config is returned with Root set to workspace.
func Load(workspace string) (*LoadResult, error) {
	path, err := findProjectFile(workspace)
	if err != nil {
		return &LoadResult{Config: &Config{}, Root: workspace}, nil
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, Path: path, Root: filepath.Dir(path)}, nil
}

// LoadFile parses a single project file, choosing the decoder by
// extension.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	name := filepath.Base(path)

	switch filepath.Ext(path) {
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		// An explicit empty list clears the defaults.
		if meta.IsDefined("include_paths") && cfg.IncludePaths == nil {
			cfg.IncludePaths = []string{}
		}
		if meta.IsDefined("macros") && cfg.Macros == nil {
			cfg.Macros = []string{}
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", name, err)
	}
	cfg.dir = abs
	return cfg, nil
}

// findProjectFile walks upward from dir looking for a project file.
func findProjectFile(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		for _, name := range FileNames {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no project file found")
		}
		dir = parent
	}
}

func trimDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		return ext[1:]
	}
	return ext
}
