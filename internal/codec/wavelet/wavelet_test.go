package wavelet

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noiseImage(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8((x * 7) % 256),
				B: uint8((y*13 + x) % 256),
				A: 0xff,
			})
		}
	}
	return img
}

func TestLiftingRoundTrip(t *testing.T) {
	for n := 1; n <= 17; n++ {
		src := make([]int32, n)
		for i := range src {
			src[i] = int32((i*37)%255 - 100)
		}
		x := append([]int32(nil), src...)
		tmp := make([]int32, n)

		forward53(x, 0, 1, n, tmp)
		inverse53(x, 0, 1, n, tmp)
		assert.Equal(t, src, x, "length %d", n)
	}
}

func TestEncodeDecodeLossless(t *testing.T) {
	for _, size := range [][2]int{{64, 64}, {37, 21}, {1, 9}, {5, 1}} {
		img := noiseImage(size[0], size[1], 1)
		data, err := Encode(img, Options{Levels: 3, Step: 1})
		require.NoError(t, err)

		n, err := NumResolutions(data)
		require.NoError(t, err)
		require.Equal(t, 4, n)

		out, err := Decode(data, n-1)
		require.NoError(t, err)
		assert.Equal(t, img.Pix, out.Pix, "size %v", size)
	}
}

func TestResolutionDimensions(t *testing.T) {
	img := noiseImage(100, 60, 2)
	data, err := Encode(img, Options{Levels: 4, Step: 1})
	require.NoError(t, err)

	dec, err := NewDecoder(data)
	require.NoError(t, err)

	want := [][2]int{{7, 4}, {13, 8}, {25, 15}, {50, 30}, {100, 60}}
	for k := 0; k < dec.NumResolutions(); k++ {
		w, h, err := dec.Header().Dimensions(k)
		require.NoError(t, err)
		assert.Equal(t, want[k], [2]int{w, h})

		out, err := dec.Decode(k)
		require.NoError(t, err)
		assert.Equal(t, want[k][0], out.Bounds().Dx())
		assert.Equal(t, want[k][1], out.Bounds().Dy())
	}
}

func TestDecodeIdempotent(t *testing.T) {
	data, err := Encode(noiseImage(48, 48, 3), Options{Levels: 3, Step: 4})
	require.NoError(t, err)

	// Progressive path on one decoder, direct path on another.
	progressive, err := NewDecoder(data)
	require.NoError(t, err)
	for k := 0; k < 3; k++ {
		_, err := progressive.Decode(k)
		require.NoError(t, err)
	}
	a, err := progressive.Decode(2)
	require.NoError(t, err)
	b, err := progressive.Decode(2)
	require.NoError(t, err)
	c, err := Decode(data, 2)
	require.NoError(t, err)

	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, a.Pix, c.Pix)
	a.Pix[0] ^= 0xff
	assert.NotEqual(t, a.Pix, b.Pix, "decoded rasters must not share buffers")
}

func TestConstantImageAllResolutions(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 33, 17))
	fill := color.RGBA{R: 200, G: 40, B: 90, A: 0xff}
	for y := 0; y < 17; y++ {
		for x := 0; x < 33; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	data, err := Encode(img, Options{Levels: 3, Step: 8})
	require.NoError(t, err)

	for k := 0; k < 4; k++ {
		out, err := Decode(data, k)
		require.NoError(t, err)
		assert.Equal(t, fill, out.RGBAAt(0, 0), "resolution %d", k)
		b := out.Bounds()
		assert.Equal(t, fill, out.RGBAAt(b.Dx()-1, b.Dy()-1), "resolution %d", k)
	}
}

func TestProgressivePrefix(t *testing.T) {
	data, err := Encode(noiseImage(64, 32, 4), DefaultOptions())
	require.NoError(t, err)
	hdr, err := ParseHeader(data)
	require.NoError(t, err)
	require.Equal(t, len(data), hdr.TotalLen())

	prefix := data[:hdr.PrefixLen(1)]
	dec, err := NewDecoder(prefix)
	require.NoError(t, err)
	assert.Equal(t, 1, dec.Available())

	low, err := dec.Decode(1)
	require.NoError(t, err)
	full, err := Decode(data, 1)
	require.NoError(t, err)
	assert.Equal(t, full.Pix, low.Pix)

	_, err = dec.Decode(2)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeErrors(t *testing.T) {
	data, err := Encode(noiseImage(16, 16, 5), DefaultOptions())
	require.NoError(t, err)

	_, err = NewDecoder(data[:5])
	assert.ErrorIs(t, err, ErrTruncated)

	bad := append([]byte(nil), data...)
	copy(bad, "XXXX")
	_, err = NewDecoder(bad)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode(data, 9)
	assert.ErrorIs(t, err, ErrResolution)

	hdr, err := ParseHeader(data)
	require.NoError(t, err)
	garbled := append([]byte(nil), data...)
	for i := hdr.Len(); i < hdr.PrefixLen(0); i++ {
		garbled[i] = 0xa5
	}
	_, err = Decode(garbled, 0)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeRejectsOversizedHeaders(t *testing.T) {
	seg := entropyEncode([]int32{1, 2, 3})
	stream := func(w, h int) []byte {
		hdr := Header{Width: w, Height: h, Levels: 0, Step: 1, Segments: []uint32{uint32(len(seg))}}
		return append(hdr.marshal(), seg...)
	}

	_, err := ParseHeader(stream(65535, 65535))
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = Decode(stream(65535, 65535), 0)
	assert.ErrorIs(t, err, ErrCorrupt)

	// Within bounds, but the segment is far too short for the declared size.
	_, err = Decode(stream(MaxDimension, MaxDimension), 0)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Encode(image.NewRGBA(image.Rect(0, 0, MaxDimension+1, 1)), DefaultOptions())
	assert.Error(t, err)
}

func TestEncodeRejectsBadOptions(t *testing.T) {
	img := noiseImage(8, 8, 6)
	_, err := Encode(img, Options{Levels: MaxLevels + 1, Step: 1})
	assert.Error(t, err)
	_, err = Encode(img, Options{Levels: 2, Step: 0})
	assert.Error(t, err)
}
