package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Execution modes accepted in [execution].mode.
const (
	ModeAuto     = "auto"
	ModeBounded  = "bounded"
	ModeParallel = "parallel"
)

// Paths contains state and log directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Execution contains worker and resource settings. It is read-only for the
// duration of a run.
type Execution struct {
	Workers      int      `toml:"workers"`
	Mode         string   `toml:"mode"`
	MaxMemoryGiB int      `toml:"max_memory_gib"`
	Providers    []string `toml:"providers"`
	Resume       bool     `toml:"resume"`
}

// Processors selects the chain stages and their tuning knobs.
type Processors struct {
	// Enabled lists stage names in chain order.
	Enabled           []string `toml:"enabled"`
	ResizeWidth       int      `toml:"resize_width"`
	ResizeHeight      int      `toml:"resize_height"`
	BlurSigma         float64  `toml:"blur_sigma"`
	SharpenSigma      float64  `toml:"sharpen_sigma"`
	Contrast          float64  `toml:"contrast"`
	Brightness        float64  `toml:"brightness"`
	WatermarkPath     string   `toml:"watermark_path"`
	WatermarkPosition string   `toml:"watermark_position"`
	JPEGQuality       int      `toml:"jpeg_quality"`
}

// Progress controls live progress rendering.
type Progress struct {
	RefreshMillis int     `toml:"refresh_millis"`
	LogBucket     float64 `toml:"log_bucket"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for framepipe.
//
// Configuration sections by subsystem:
//   - Paths: progress database and log locations
//   - Execution: worker count, execution mode, resource hints, resume policy
//   - Processors: enabled chain stages in order plus per-stage settings
//   - Progress: render cadence for the live progress reporter
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Execution  Execution  `toml:"execution"`
	Processors Processors `toml:"processors"`
	Progress   Progress   `toml:"progress"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/framepipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("framepipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the progress database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "framepipe.db")
}

// LockDir returns the directory holding per-job run locks.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
