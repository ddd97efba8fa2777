package wavelet

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// maxSegmentBytes bounds a decompressed segment: every coefficient of a
// full-size image at the longest varint encoding.
const maxSegmentBytes = MaxDimension * MaxDimension * channels * binary.MaxVarintLen32

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		panic(fmt.Sprintf("wavelet: zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(maxSegmentBytes),
	)
	if err != nil {
		panic(fmt.Sprintf("wavelet: zstd decoder: %v", err))
	}
}

// entropyEncode packs coefficients as zig-zag varints and compresses them.
func entropyEncode(vals []int32) []byte {
	raw := make([]byte, 0, len(vals)*2)
	for _, v := range vals {
		raw = binary.AppendVarint(raw, int64(v))
	}
	return zstdEncoder.EncodeAll(raw, nil)
}

// entropyDecode reverses entropyEncode and requires exactly n coefficients.
func entropyDecode(data []byte, n int) ([]int32, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	// Each coefficient takes at least one byte.
	if len(raw) < n {
		return nil, fmt.Errorf("%w: %d bytes for %d coefficients", ErrCorrupt, len(raw), n)
	}
	vals := make([]int32, n)
	for i := range vals {
		v, sz := binary.Varint(raw)
		if sz <= 0 {
			return nil, fmt.Errorf("%w: coefficient %d of %d", ErrCorrupt, i, n)
		}
		vals[i] = int32(v)
		raw = raw[sz:]
	}
	if len(raw) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(raw))
	}
	return vals, nil
}

// quantize applies a dead-zone scalar quantizer.
func quantize(vals []int32, step int) {
	if step <= 1 {
		return
	}
	s := int32(step)
	for i, v := range vals {
		if v < 0 {
			vals[i] = -((-v) / s)
		} else {
			vals[i] = v / s
		}
	}
}

// dequantize reconstructs quantized values at the bin midpoint.
func dequantize(vals []int32, step int) {
	if step <= 1 {
		return
	}
	s := int32(step)
	for i, q := range vals {
		switch {
		case q > 0:
			vals[i] = q*s + s/2
		case q < 0:
			vals[i] = q*s - s/2
		}
	}
}
