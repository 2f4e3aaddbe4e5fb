package config

const (
	defaultStateDir      = "~/.local/share/framepipe"
	defaultLogDir        = "~/.local/share/framepipe/logs"
	defaultWorkers       = 4
	defaultMode          = ModeAuto
	defaultMaxMemoryGiB  = 0
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultResizeWidth   = 1920
	defaultResizeHeight  = 1080
	defaultBlurSigma     = 1.5
	defaultSharpenSigma  = 1.0
	defaultContrast      = 10
	defaultBrightness    = 0
	defaultWatermarkSide = "bottom-right"
	defaultJPEGQuality   = 95
	defaultProgressTick  = 500
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Execution: Execution{
			Workers:      defaultWorkers,
			Mode:         defaultMode,
			MaxMemoryGiB: defaultMaxMemoryGiB,
			Providers:    []string{"cpu"},
			Resume:       true,
		},
		Processors: Processors{
			Enabled:           []string{"sharpen"},
			ResizeWidth:       defaultResizeWidth,
			ResizeHeight:      defaultResizeHeight,
			BlurSigma:         defaultBlurSigma,
			SharpenSigma:      defaultSharpenSigma,
			Contrast:          defaultContrast,
			Brightness:        defaultBrightness,
			WatermarkPosition: defaultWatermarkSide,
			JPEGQuality:       defaultJPEGQuality,
		},
		Progress: Progress{
			RefreshMillis: defaultProgressTick,
			LogBucket:     5,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
