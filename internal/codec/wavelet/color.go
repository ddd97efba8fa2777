package wavelet

import (
	"image"
	"image/color"
)

// forwardRCT splits an image into the reversible Y, Cb, Cr planes.
func forwardRCT(img image.Image) [channels]plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var planes [channels]plane
	for i := range planes {
		planes[i] = newPlane(w, h)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			r, g, bl := int32(c.R), int32(c.G), int32(c.B)
			i := y*w + x
			planes[0].c[i] = (r + 2*g + bl) >> 2
			planes[1].c[i] = bl - g
			planes[2].c[i] = r - g
		}
	}
	return planes
}

// inverseRCT packs the top-left w x h samples of the planes into an opaque
// RGBA raster.
func inverseRCT(planes [channels]plane, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	stride := planes[0].w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*stride + x
			yy, cb, cr := planes[0].c[i], planes[1].c[i], planes[2].c[i]
			g := yy - ((cb + cr) >> 2)
			r := cr + g
			bl := cb + g

			o := img.PixOffset(x, y)
			img.Pix[o+0] = clamp8(r)
			img.Pix[o+1] = clamp8(g)
			img.Pix[o+2] = clamp8(bl)
			img.Pix[o+3] = 0xff
		}
	}
	return img
}

func clamp8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
