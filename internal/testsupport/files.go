package testsupport

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteFrames writes count solid-colour PNG frames named 0001.png, 0002.png,
// ... into dir and returns their paths in order. Each frame gets a distinct
// colour so transformed output can be told apart.
func WriteFrames(t testing.TB, dir string, count, width, height int) []string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%04d.png", i+1))
		WritePNG(t, path, width, height, color.RGBA{R: uint8(40 + i*7), G: uint8(120 + i*3), B: uint8(200 - i*5), A: 255})
		paths = append(paths, path)
	}
	return paths
}

// WritePNG writes a solid-colour PNG at path.
func WritePNG(t testing.TB, path string, width, height int, c color.Color) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// WriteCorrupt writes bytes that no image decoder accepts.
func WriteCorrupt(t testing.TB, path string) {
	t.Helper()

	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
