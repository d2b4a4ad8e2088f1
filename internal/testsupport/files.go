package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// PNGBytes encodes a solid-color PNG of the requested dimensions.
func PNGBytes(t testing.TB, width, height int) []byte {
	t.Helper()
	return PNGBytesColor(t, width, height, color.NRGBA{R: 0x30, G: 0x60, B: 0x90, A: 0xff})
}

// PNGBytesColor encodes a PNG filled with the given color, for tests that
// need to tell two renders of the same file apart.
func PNGBytesColor(t testing.TB, width, height int, fill color.NRGBA) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// WritePNG writes a generated PNG to path, creating parent directories.
func WritePNG(t testing.TB, path string, width, height int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, PNGBytes(t, width, height), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
