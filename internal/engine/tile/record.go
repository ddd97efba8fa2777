package tile

import (
	"sync/atomic"

	"github.com/Faultbox/globestream/internal/codec/wavelet"
	"github.com/Faultbox/globestream/internal/engine/texture"
)

// MaxResolutions bounds the wavelet resolutions tracked per tile.
const MaxResolutions = wavelet.MaxLevels + 1

// WaveletState tracks one imagery resolution of a tile.
type WaveletState struct {
	Requested bool
	DataReady bool
	Failed    bool
	Texture   texture.Handle
}

// Record is the mutable state of one grid cell. Apart from InScene and
// Generation, which workers read to drop stale work, it is owned by the
// render thread.
type Record struct {
	Key    Key
	Source Source

	Wavelets          [MaxResolutions]WaveletState
	CurrentResolution int // Highest uploaded resolution, -1 when none
	Elevation         *Elevation
	ElevationFailed   bool

	MapRequestInFlight       bool
	ElevationRequestInFlight bool

	inScene    atomic.Bool
	generation atomic.Uint64
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{CurrentResolution: -1}
}

// InScene reports whether the tile is part of the visible working set.
func (r *Record) InScene() bool {
	return r.inScene.Load()
}

// SetInScene updates visibility.
func (r *Record) SetInScene(v bool) {
	r.inScene.Store(v)
}

// Generation changes every time the record is retired.
func (r *Record) Generation() uint64 {
	return r.generation.Load()
}

// Assign points an empty record at a new key.
func (r *Record) Assign(key Key, src Source) {
	r.Key = key
	r.Source = src
}

// Retire clears all payload state and bumps the generation so in-flight
// results for the old key are discarded. The texture handle, if any, is
// returned for the trash list rather than deleted.
func (r *Record) Retire() []texture.Trashed {
	var trash []texture.Trashed
	for i := range r.Wavelets {
		if h := r.Wavelets[i].Texture; h != texture.None {
			trash = append(trash, texture.Trashed{Handle: h, Resolution: i})
		}
	}

	r.Wavelets = [MaxResolutions]WaveletState{}
	r.CurrentResolution = -1
	r.Elevation = nil
	r.ElevationFailed = false
	r.MapRequestInFlight = false
	r.ElevationRequestInFlight = false
	r.inScene.Store(false)
	r.generation.Add(1)
	return trash
}

// Texture returns the handle of the current resolution.
func (r *Record) Texture() texture.Handle {
	if r.CurrentResolution < 0 {
		return texture.None
	}
	return r.Wavelets[r.CurrentResolution].Texture
}

// HasImagery reports whether any resolution has been uploaded.
func (r *Record) HasImagery() bool {
	return r.CurrentResolution >= 0
}

// NextResolution returns the lowest resolution above the current one and
// at most target that still needs data and is not already requested.
func (r *Record) NextResolution(target int) (int, bool) {
	if target >= MaxResolutions {
		target = MaxResolutions - 1
	}
	for k := r.CurrentResolution + 1; k <= target; k++ {
		w := r.Wavelets[k]
		if w.Failed || w.DataReady {
			continue
		}
		if w.Requested {
			return 0, false
		}
		return k, true
	}
	return 0, false
}

// Promote installs the texture for resolution res and makes it current.
// Resolutions only move up; a result at or below the current resolution is
// refused and its handle must be trashed by the caller. The previous
// resolution's handle is returned for the trash list.
func (r *Record) Promote(res int, h texture.Handle) (old []texture.Trashed, ok bool) {
	if res <= r.CurrentResolution || res >= MaxResolutions {
		return nil, false
	}
	if cur := r.CurrentResolution; cur >= 0 && r.Wavelets[cur].Texture != texture.None {
		old = append(old, texture.Trashed{Handle: r.Wavelets[cur].Texture, Resolution: cur})
		r.Wavelets[cur].Texture = texture.None
	}
	w := &r.Wavelets[res]
	w.DataReady = true
	w.Requested = false
	w.Texture = h
	r.CurrentResolution = res
	return old, true
}
