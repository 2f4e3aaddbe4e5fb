package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"

	"framepipe/internal/config"
)

var (
	_ Processor = (*grayscale)(nil)
	_ Processor = (*invert)(nil)
	_ Processor = (*sharpen)(nil)
	_ Processor = (*blur)(nil)
	_ Processor = (*contrast)(nil)
	_ Processor = (*brightness)(nil)
	_ Processor = (*resize)(nil)
	_ Processor = (*watermark)(nil)
)

func builtins() []Entry {
	return []Entry{
		{Name: "grayscale", Description: "Convert frames to grayscale", Factory: func(config.Processors) (Processor, error) {
			return &grayscale{}, nil
		}},
		{Name: "invert", Description: "Invert frame colours", Factory: func(config.Processors) (Processor, error) {
			return &invert{}, nil
		}},
		{Name: "sharpen", Description: "Unsharp mask (sharpen_sigma)", Factory: func(cfg config.Processors) (Processor, error) {
			return &sharpen{sigma: cfg.SharpenSigma}, nil
		}},
		{Name: "blur", Description: "Gaussian blur (blur_sigma)", Factory: func(cfg config.Processors) (Processor, error) {
			return &blur{sigma: cfg.BlurSigma}, nil
		}},
		{Name: "contrast", Description: "Adjust contrast by percentage (contrast)", Factory: func(cfg config.Processors) (Processor, error) {
			return &contrast{percent: cfg.Contrast}, nil
		}},
		{Name: "brightness", Description: "Adjust brightness by percentage (brightness)", Factory: func(cfg config.Processors) (Processor, error) {
			return &brightness{percent: cfg.Brightness}, nil
		}},
		{Name: "resize", Description: "Downscale to fit resize_width x resize_height", Factory: func(cfg config.Processors) (Processor, error) {
			return &resize{width: cfg.ResizeWidth, height: cfg.ResizeHeight}, nil
		}},
		{Name: "watermark", Description: "Overlay watermark_path at watermark_position", Factory: newWatermark},
	}
}

// stateless stages apply to every target.
type stateless struct{}

func (stateless) PreCheck(context.Context) error { return nil }

func (stateless) PreStart(context.Context, Target) (bool, error) { return true, nil }

type grayscale struct{ stateless }

func (*grayscale) Name() string { return "grayscale" }

func (*grayscale) ProcessFrame(_ context.Context, img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

type invert struct{ stateless }

func (*invert) Name() string { return "invert" }

func (*invert) ProcessFrame(_ context.Context, img image.Image) (image.Image, error) {
	return imaging.Invert(img), nil
}

type sharpen struct {
	stateless
	sigma float64
}

func (*sharpen) Name() string { return "sharpen" }

func (s *sharpen) PreStart(context.Context, Target) (bool, error) { return s.sigma > 0, nil }

func (s *sharpen) ProcessFrame(_ context.Context, img image.Image) (image.Image, error) {
	return imaging.Sharpen(img, s.sigma), nil
}

type blur struct {
	stateless
	sigma float64
}

func (*blur) Name() string { return "blur" }

func (b *blur) PreStart(context.Context, Target) (bool, error) { return b.sigma > 0, nil }

func (b *blur) ProcessFrame(_ context.Context, img image.Image) (image.Image, error) {
	return imaging.Blur(img, b.sigma), nil
}

type contrast struct {
	stateless
	percent float64
}

func (*contrast) Name() string { return "contrast" }

func (c *contrast) PreStart(context.Context, Target) (bool, error) { return c.percent != 0, nil }

func (c *contrast) ProcessFrame(_ context.Context, img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, c.percent), nil
}

type brightness struct {
	stateless
	percent float64
}

func (*brightness) Name() string { return "brightness" }

func (b *brightness) PreStart(context.Context, Target) (bool, error) { return b.percent != 0, nil }

func (b *brightness) ProcessFrame(_ context.Context, img image.Image) (image.Image, error) {
	return imaging.AdjustBrightness(img, b.percent), nil
}

// unbounded stands in for a zero resize dimension.
const unbounded = 1 << 30

type resize struct {
	stateless
	width  int
	height int
}

func (*resize) Name() string { return "resize" }

// PreStart declines only when no box is configured. Whether a frame already
// fits is decided per frame, since frames of a resumed target may differ.
func (r *resize) PreStart(context.Context, Target) (bool, error) {
	return r.width > 0 || r.height > 0, nil
}

func (r *resize) ProcessFrame(_ context.Context, img image.Image) (image.Image, error) {
	w, h := r.box()
	if b := img.Bounds(); b.Dx() <= w && b.Dy() <= h {
		return img, nil
	}
	return imaging.Fit(img, w, h, imaging.Lanczos), nil
}

func (r *resize) box() (int, int) {
	w, h := r.width, r.height
	if w <= 0 {
		w = unbounded
	}
	if h <= 0 {
		h = unbounded
	}
	return w, h
}

const watermarkMargin = 8

type watermark struct {
	path     string
	position string
	overlay  *Lazy[image.Image]
}

func newWatermark(cfg config.Processors) (Processor, error) {
	if cfg.WatermarkPath == "" {
		return nil, errors.New("watermark_path is required")
	}
	switch cfg.WatermarkPosition {
	case "", "top-left", "top-right", "bottom-left", "bottom-right", "center":
	default:
		return nil, fmt.Errorf("unsupported watermark_position %q", cfg.WatermarkPosition)
	}
	w := &watermark{path: cfg.WatermarkPath, position: cfg.WatermarkPosition}
	w.overlay = NewLazy(func() (image.Image, error) {
		return imaging.Open(w.path)
	})
	return w, nil
}

func (*watermark) Name() string { return "watermark" }

func (w *watermark) PreCheck(context.Context) error {
	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("watermark image: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("watermark image %s is a directory", w.path)
	}
	return nil
}

func (*watermark) PreStart(context.Context, Target) (bool, error) { return true, nil }

func (w *watermark) ProcessFrame(_ context.Context, img image.Image) (image.Image, error) {
	overlay, err := w.overlay.Get()
	if err != nil {
		return nil, fmt.Errorf("load watermark: %w", err)
	}
	return imaging.Overlay(img, overlay, w.anchor(img.Bounds(), overlay.Bounds()), 1.0), nil
}

func (w *watermark) anchor(frame, mark image.Rectangle) image.Point {
	left := frame.Min.X + watermarkMargin
	top := frame.Min.Y + watermarkMargin
	right := frame.Max.X - mark.Dx() - watermarkMargin
	bottom := frame.Max.Y - mark.Dy() - watermarkMargin
	switch w.position {
	case "top-left":
		return image.Pt(left, top)
	case "top-right":
		return image.Pt(right, top)
	case "bottom-left":
		return image.Pt(left, bottom)
	case "center":
		return image.Pt(frame.Min.X+(frame.Dx()-mark.Dx())/2, frame.Min.Y+(frame.Dy()-mark.Dy())/2)
	default:
		return image.Pt(right, bottom)
	}
}
