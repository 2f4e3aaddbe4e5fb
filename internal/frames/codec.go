package frames

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

const defaultFileMode os.FileMode = 0o644

// EncodeOptions tunes how frames are written back.
type EncodeOptions struct {
	JPEGQuality int
}

// Load decodes the frame at path.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Save encodes img to path in the format implied by its extension. The
// frame is written to a temporary file in the same directory and renamed
// over the original so a failed encode never leaves a truncated frame. An
// existing frame keeps its permission bits.
func Save(path string, img image.Image, opts EncodeOptions) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp frame: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if err := tmp.Chmod(fileMode(path, defaultFileMode)); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp frame: %w", err)
	}

	var encodeOpts []imaging.EncodeOption
	if opts.JPEGQuality > 0 {
		encodeOpts = append(encodeOpts, imaging.JPEGQuality(opts.JPEGQuality))
	}
	if err := imaging.Encode(tmp, img, format, encodeOpts...); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp frame: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Copy duplicates src to dst byte for byte through a temporary file in dst's
// directory. An existing dst keeps its permission bits; a new one takes src's.
func Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(src), err)
	}
	defer in.Close()
	mode := defaultFileMode
	if info, err := in.Stat(); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp frame: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(fileMode(dst, mode)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp frame: %w", err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp frame: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", filepath.Base(dst), err)
	}
	return nil
}

// fileMode returns the permission bits of path, or fallback when it does not
// exist yet.
func fileMode(path string, fallback os.FileMode) os.FileMode {
	info, err := os.Stat(path)
	if err != nil {
		return fallback
	}
	return info.Mode().Perm()
}
