package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// unsupportedProviders are accelerator hints that are accepted in config files
// but never offered to stages.
var unsupportedProviders = map[string]struct{}{
	"tensorrt": {},
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeExecution(); err != nil {
		return err
	}
	if err := c.normalizeProcessors(); err != nil {
		return err
	}
	c.normalizeProgress()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if value, ok := os.LookupEnv("FRAMEPIPE_STATE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.StateDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeExecution() error {
	if value, ok := os.LookupEnv("FRAMEPIPE_WORKERS"); ok && strings.TrimSpace(value) != "" {
		workers, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("FRAMEPIPE_WORKERS: %w", err)
		}
		c.Execution.Workers = workers
	}
	c.Execution.Mode = strings.ToLower(strings.TrimSpace(c.Execution.Mode))
	if c.Execution.Mode == "" {
		c.Execution.Mode = defaultMode
	}
	if c.Execution.MaxMemoryGiB < 0 {
		c.Execution.MaxMemoryGiB = 0
	}
	c.Execution.Providers = normalizeProviders(c.Execution.Providers)
	return nil
}

func normalizeProviders(values []string) []string {
	providers := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		normalized = strings.TrimSuffix(normalized, "executionprovider")
		if normalized == "" {
			continue
		}
		if _, skip := unsupportedProviders[normalized]; skip {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		providers = append(providers, normalized)
	}
	if len(providers) == 0 {
		providers = []string{"cpu"}
	}
	return providers
}

func (c *Config) normalizeProcessors() error {
	names := make([]string, 0, len(c.Processors.Enabled))
	seen := make(map[string]struct{}, len(c.Processors.Enabled))
	for _, name := range c.Processors.Enabled {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		names = append(names, normalized)
	}
	c.Processors.Enabled = names

	if strings.TrimSpace(c.Processors.WatermarkPath) != "" {
		var err error
		if c.Processors.WatermarkPath, err = expandPath(strings.TrimSpace(c.Processors.WatermarkPath)); err != nil {
			return fmt.Errorf("processors.watermark_path: %w", err)
		}
	}
	c.Processors.WatermarkPosition = strings.ToLower(strings.TrimSpace(c.Processors.WatermarkPosition))
	if c.Processors.WatermarkPosition == "" {
		c.Processors.WatermarkPosition = defaultWatermarkSide
	}
	if c.Processors.JPEGQuality <= 0 || c.Processors.JPEGQuality > 100 {
		c.Processors.JPEGQuality = defaultJPEGQuality
	}
	return nil
}

func (c *Config) normalizeProgress() {
	if c.Progress.RefreshMillis <= 0 {
		c.Progress.RefreshMillis = defaultProgressTick
	}
	if c.Progress.LogBucket <= 0 {
		c.Progress.LogBucket = 5
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
