package renderer

import (
	"fmt"
	"image"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/globestream/internal/engine/texture"
)

// Device allocates tile textures on the current GL context.
type Device struct{}

// CreateTexture uploads img into a new texture.
func (Device) CreateTexture(img *image.RGBA) (texture.Handle, error) {
	var id uint32
	gl.GenTextures(1, &id)
	if id == 0 {
		return texture.None, texture.ErrExhausted
	}
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)

	if err := texImage(img); err != nil {
		gl.DeleteTextures(1, &id)
		return texture.None, err
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return texture.Handle(id), nil
}

// UpdateTexture replaces the contents of h.
func (Device) UpdateTexture(h texture.Handle, img *image.RGBA) error {
	gl.BindTexture(gl.TEXTURE_2D, uint32(h))
	defer gl.BindTexture(gl.TEXTURE_2D, 0)
	return texImage(img)
}

// DeleteTextures frees the given handles.
func (Device) DeleteTextures(hs []texture.Handle) {
	if len(hs) == 0 {
		return
	}
	ids := make([]uint32, len(hs))
	for i, h := range hs {
		ids[i] = uint32(h)
	}
	gl.DeleteTextures(int32(len(ids)), &ids[0])
}

func texImage(img *image.RGBA) error {
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("empty image")
	}
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(img.Stride/4))
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(b.Dx()), int32(b.Dy()), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)

	if e := gl.GetError(); e == gl.OUT_OF_MEMORY {
		return texture.ErrExhausted
	} else if e != gl.NO_ERROR {
		return fmt.Errorf("glTexImage2D: error 0x%x", e)
	}
	return nil
}
