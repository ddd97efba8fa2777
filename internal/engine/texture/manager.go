// Package texture manages the GPU texture handles owned by tiles.
//
// Handles vacated by evicted tiles pass through a one-frame quarantine and
// then onto a per-resolution free list, so tiles streaming in later at the
// same resolution reuse them instead of allocating.
package texture

import (
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"
)

// Handle is an opaque GPU texture name. Zero means no texture.
type Handle uint32

// None is the absent handle.
const None Handle = 0

// ErrExhausted is returned when the GPU cannot allocate a texture.
var ErrExhausted = errors.New("texture allocation failed")

// Trashed is a handle vacated by a tile together with the resolution it held.
type Trashed struct {
	Handle     Handle
	Resolution int
}

// GPU is the part of the rendering device the manager drives.
// All calls happen on the render thread.
type GPU interface {
	CreateTexture(img *image.RGBA) (Handle, error)
	// UpdateTexture replaces the contents of an existing texture, resizing it
	// when the image dimensions differ.
	UpdateTexture(h Handle, img *image.RGBA) error
	DeleteTextures(hs []Handle)
}

// Config controls recycling.
type Config struct {
	Recycle         bool // Keep vacated handles for reuse instead of deleting them
	Resolutions     int  // Number of per-resolution free lists
	InitialCapacity int  // Starting capacity of each free list
	MaxFree         int  // Handles kept per resolution; the rest are deleted
}

// DefaultConfig returns the settings used by the viewer.
func DefaultConfig() Config {
	return Config{
		Recycle:         true,
		Resolutions:     8,
		InitialCapacity: 16,
		MaxFree:         64,
	}
}

// Stats is a snapshot of manager counters.
type Stats struct {
	Live        int
	Free        int
	Quarantined int
	Created     int
	Recycled    int
	Deleted     int
}

// Manager allocates, recycles and deletes tile textures.
// It is not safe for concurrent use; it belongs to the render thread.
type Manager struct {
	gpu GPU
	cfg Config
	log *zap.Logger

	free       []freeList
	quarantine []Trashed
	live       map[Handle]int

	created  int
	recycled int
	deleted  int
}

// NewManager creates a manager over gpu.
func NewManager(gpu GPU, cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Resolutions <= 0 {
		cfg.Resolutions = DefaultConfig().Resolutions
	}
	m := &Manager{
		gpu:  gpu,
		cfg:  cfg,
		log:  log.Named("texture"),
		free: make([]freeList, cfg.Resolutions),
		live: make(map[Handle]int),
	}
	for i := range m.free {
		m.free[i].initial = cfg.InitialCapacity
	}
	return m
}

// DestroyTrash processes the handles vacated since the previous frame.
// Last frame's quarantine becomes reusable (or is deleted); this frame's
// trash enters quarantine. With recycling off the trash is deleted at once.
func (m *Manager) DestroyTrash(trash []Trashed) {
	var doomed []Handle

	for _, t := range m.quarantine {
		if h, ok := m.release(t); !ok {
			doomed = append(doomed, h)
		}
	}
	m.quarantine = m.quarantine[:0]

	for _, t := range trash {
		if t.Handle == None {
			continue
		}
		if _, ok := m.live[t.Handle]; !ok {
			m.log.Warn("ignoring trash for handle that is not live",
				zap.Uint32("handle", uint32(t.Handle)),
				zap.Int("resolution", t.Resolution))
			continue
		}
		delete(m.live, t.Handle)
		if m.cfg.Recycle {
			m.quarantine = append(m.quarantine, t)
		} else {
			doomed = append(doomed, t.Handle)
		}
	}

	if len(doomed) > 0 {
		m.gpu.DeleteTextures(doomed)
		m.deleted += len(doomed)
	}
}

// release puts a quarantined handle on its free list. It reports false when
// the handle should be deleted instead.
func (m *Manager) release(t Trashed) (Handle, bool) {
	if !m.cfg.Recycle || t.Resolution < 0 || t.Resolution >= len(m.free) {
		return t.Handle, false
	}
	fl := &m.free[t.Resolution]
	if m.cfg.MaxFree > 0 && fl.len() >= m.cfg.MaxFree {
		return t.Handle, false
	}
	fl.push(t.Handle)
	return t.Handle, true
}

// Acquire pops a recycled handle for resolution res. The caller owns it
// until it is trashed again.
func (m *Manager) Acquire(res int) (Handle, bool) {
	if res < 0 || res >= len(m.free) {
		return None, false
	}
	h, ok := m.free[res].pop()
	if !ok {
		return None, false
	}
	m.live[h] = res
	return h, true
}

// Upload stores img as a texture for resolution res, reusing a recycled
// handle when one is available. On allocation failure it returns an error
// wrapping ErrExhausted and the tile stays untextured.
func (m *Manager) Upload(res int, img *image.RGBA) (Handle, error) {
	if h, ok := m.Acquire(res); ok {
		err := m.gpu.UpdateTexture(h, img)
		if err == nil {
			m.recycled++
			return h, nil
		}
		m.log.Debug("recycled texture update failed, allocating",
			zap.Uint32("handle", uint32(h)), zap.Error(err))
		delete(m.live, h)
		m.gpu.DeleteTextures([]Handle{h})
		m.deleted++
	}

	h, err := m.gpu.CreateTexture(img)
	if err != nil {
		return None, fmt.Errorf("%w: %v", ErrExhausted, err)
	}
	if h == None {
		return None, fmt.Errorf("%w: device returned no handle", ErrExhausted)
	}
	if _, dup := m.live[h]; dup {
		m.log.Error("device returned a handle that is already live", zap.Uint32("handle", uint32(h)))
	}
	m.live[h] = res
	m.created++
	return h, nil
}

// Stats returns current counters.
func (m *Manager) Stats() Stats {
	free := 0
	for i := range m.free {
		free += m.free[i].len()
	}
	return Stats{
		Live:        len(m.live),
		Free:        free,
		Quarantined: len(m.quarantine),
		Created:     m.created,
		Recycled:    m.recycled,
		Deleted:     m.deleted,
	}
}

// Close deletes every handle the manager knows about.
func (m *Manager) Close() {
	var all []Handle
	for h := range m.live {
		all = append(all, h)
	}
	for _, t := range m.quarantine {
		all = append(all, t.Handle)
	}
	for i := range m.free {
		all = append(all, m.free[i].drain()...)
	}
	if len(all) > 0 {
		m.gpu.DeleteTextures(all)
		m.deleted += len(all)
	}
	m.live = make(map[Handle]int)
	m.quarantine = nil
	m.log.Debug("texture manager closed", zap.Int("deleted", len(all)))
}
