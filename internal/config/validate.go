package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateExecution(); err != nil {
		return err
	}
	if err := c.validateProcessors(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateExecution() error {
	if c.Execution.Workers < 1 {
		return fmt.Errorf("execution.workers must be at least 1, got %d", c.Execution.Workers)
	}
	switch c.Execution.Mode {
	case ModeAuto, ModeBounded, ModeParallel:
	default:
		return fmt.Errorf("execution.mode must be one of %q, %q or %q, got %q", ModeAuto, ModeBounded, ModeParallel, c.Execution.Mode)
	}
	return nil
}

func (c *Config) validateProcessors() error {
	if len(c.Processors.Enabled) == 0 {
		return errors.New("processors.enabled must list at least one processor")
	}
	for _, name := range c.Processors.Enabled {
		if name == "watermark" && strings.TrimSpace(c.Processors.WatermarkPath) == "" {
			return errors.New("processors.watermark_path must be set when the watermark processor is enabled")
		}
	}
	if c.Processors.ResizeWidth < 0 || c.Processors.ResizeHeight < 0 {
		return errors.New("processors.resize_width and processors.resize_height must not be negative")
	}
	if c.Processors.BlurSigma < 0 || c.Processors.SharpenSigma < 0 {
		return errors.New("processors.blur_sigma and processors.sharpen_sigma must not be negative")
	}
	if c.Processors.Contrast < -100 || c.Processors.Contrast > 100 {
		return errors.New("processors.contrast must be between -100 and 100")
	}
	if c.Processors.Brightness < -100 || c.Processors.Brightness > 100 {
		return errors.New("processors.brightness must be between -100 and 100")
	}
	return nil
}
