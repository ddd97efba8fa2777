package wavelet

import (
	"bytes"
	"fmt"
	"image"
)

// Options controls encoding.
type Options struct {
	Levels int // Decomposition levels; resolutions = Levels+1
	Step   int // Quantization step for detail bands; 1 is lossless
}

// DefaultOptions returns lossless encoding with three decompositions.
func DefaultOptions() Options {
	return Options{Levels: 3, Step: 1}
}

// Encode compresses img into a progressive codestream.
func Encode(img image.Image, opts Options) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 || w > MaxDimension || h > MaxDimension {
		return nil, fmt.Errorf("wavelet: unsupported image size %dx%d", w, h)
	}
	if opts.Levels < 0 || opts.Levels > MaxLevels {
		return nil, fmt.Errorf("wavelet: levels %d out of range [0,%d]", opts.Levels, MaxLevels)
	}
	if opts.Step < 1 || opts.Step > 0xffff {
		return nil, fmt.Errorf("wavelet: quantization step %d out of range", opts.Step)
	}

	planes := forwardRCT(img)
	for l := 1; l <= opts.Levels; l++ {
		cw, ch := levelDims(w, h, l-1)
		for _, p := range planes {
			forwardLevel(p, cw, ch)
		}
	}

	hdr := Header{
		Width:    w,
		Height:   h,
		Levels:   opts.Levels,
		Step:     opts.Step,
		Segments: make([]uint32, opts.Levels+1),
	}
	segments := make([][]byte, opts.Levels+1)
	for s := range segments {
		vals := extractSegment(planes, opts.Levels, s)
		if s > 0 {
			quantize(vals, opts.Step)
		}
		segments[s] = entropyEncode(vals)
		hdr.Segments[s] = uint32(len(segments[s]))
	}

	buf := bytes.NewBuffer(hdr.marshal())
	for _, seg := range segments {
		buf.Write(seg)
	}
	return buf.Bytes(), nil
}
