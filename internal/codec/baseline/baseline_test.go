package baseline

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 200, 255})
		}
	}
	return img
}

func TestDecodePNGFullSize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradient(16, 8)))

	img, err := Decode(buf.Bytes(), 0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
	assert.Equal(t, color.RGBA{12, 20, 200, 255}, img.RGBAAt(3, 5))
}

func TestDecodeBMPScalesDown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, gradient(64, 32)))

	img, err := Decode(buf.Bytes(), 16)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
}

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	_, err := Decode([]byte("not an image"), 0)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestHandles(t *testing.T) {
	assert.True(t, Handles("L0/nw/000/000/000000000_020000000.PNG"))
	assert.True(t, Handles("a/b.jpeg"))
	assert.True(t, Handles("a/b.tif"))
	assert.False(t, Handles("a/b.ptw"))
	assert.False(t, Handles("a/b"))
}

func TestFit(t *testing.T) {
	w, h := fit(100, 10, 50)
	assert.Equal(t, [2]int{50, 5}, [2]int{w, h})
	w, h = fit(10, 1000, 100)
	assert.Equal(t, [2]int{1, 100}, [2]int{w, h})
	w, h = fit(30, 20, 0)
	assert.Equal(t, [2]int{30, 20}, [2]int{w, h})
}
