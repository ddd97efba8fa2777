package screenshot

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromPixelsFlipsRows(t *testing.T) {
	// Two rows, bottom row red, top row blue, as OpenGL returns them.
	pixels := []byte{
		255, 0, 0, 255, 255, 0, 0, 255,
		0, 0, 255, 255, 0, 0, 255, 255,
	}
	img, err := FromPixels(pixels, 2, 2)
	if err != nil {
		t.Fatalf("FromPixels: %v", err)
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("top-left = %v, want blue", got)
	}
	if got := img.RGBAAt(1, 1); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("bottom-right = %v, want red", got)
	}

	if _, err := FromPixels(pixels[:4], 2, 2); err == nil {
		t.Error("expected size mismatch error")
	}
}

func TestCaptureWritesPNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	c := New(dir, "globe")
	c.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC) }

	name, err := c.Capture(make([]byte, 4*3*2), 3, 2)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if want := filepath.Join(dir, "globe_2024-03-01_12-30-00.000.png"); name != want {
		t.Errorf("name = %s, want %s", name, want)
	}

	f, err := os.Open(name)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 3 || cfg.Height != 2 {
		t.Errorf("size = %dx%d", cfg.Width, cfg.Height)
	}
}
