package texture

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGPU hands out sequential handles and records deletions.
type fakeGPU struct {
	next    Handle
	deleted []Handle
	updated []Handle
	failNew bool
}

func (g *fakeGPU) CreateTexture(img *image.RGBA) (Handle, error) {
	if g.failNew {
		return None, errors.New("out of memory")
	}
	g.next++
	return g.next, nil
}

func (g *fakeGPU) UpdateTexture(h Handle, img *image.RGBA) error {
	g.updated = append(g.updated, h)
	return nil
}

func (g *fakeGPU) DeleteTextures(hs []Handle) {
	g.deleted = append(g.deleted, hs...)
}

func testImage() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func TestUploadAllocatesWhenNothingFree(t *testing.T) {
	gpu := &fakeGPU{}
	m := NewManager(gpu, DefaultConfig(), nil)

	h, err := m.Upload(2, testImage())
	require.NoError(t, err)
	assert.Equal(t, Handle(1), h)
	assert.Equal(t, 1, m.Stats().Live)
	assert.Equal(t, 1, m.Stats().Created)
}

func TestTrashIsQuarantinedForOneFrame(t *testing.T) {
	gpu := &fakeGPU{}
	m := NewManager(gpu, DefaultConfig(), nil)

	h, err := m.Upload(1, testImage())
	require.NoError(t, err)

	// Frame N: the tile is evicted.
	m.DestroyTrash([]Trashed{{Handle: h, Resolution: 1}})
	_, ok := m.Acquire(1)
	assert.False(t, ok, "handle must not be reusable in the frame it was vacated")
	assert.Equal(t, 1, m.Stats().Quarantined)

	// Frame N+1: quarantine is promoted to the free list.
	m.DestroyTrash(nil)
	got, ok := m.Acquire(1)
	require.True(t, ok)
	assert.Equal(t, h, got)
	assert.Empty(t, gpu.deleted)
}

func TestUploadReusesRecycledHandle(t *testing.T) {
	gpu := &fakeGPU{}
	m := NewManager(gpu, DefaultConfig(), nil)

	h, _ := m.Upload(0, testImage())
	m.DestroyTrash([]Trashed{{Handle: h, Resolution: 0}})
	m.DestroyTrash(nil)

	// Different resolution does not take it.
	other, err := m.Upload(3, testImage())
	require.NoError(t, err)
	assert.NotEqual(t, h, other)

	again, err := m.Upload(0, testImage())
	require.NoError(t, err)
	assert.Equal(t, h, again)
	assert.Equal(t, []Handle{h}, gpu.updated)
	assert.Equal(t, 1, m.Stats().Recycled)
}

func TestRecycleDisabledDeletesImmediately(t *testing.T) {
	gpu := &fakeGPU{}
	cfg := DefaultConfig()
	cfg.Recycle = false
	m := NewManager(gpu, cfg, nil)

	h, _ := m.Upload(0, testImage())
	m.DestroyTrash([]Trashed{{Handle: h, Resolution: 0}})
	assert.Equal(t, []Handle{h}, gpu.deleted)
	assert.Equal(t, 0, m.Stats().Live)
}

func TestFreeListCapIsEnforced(t *testing.T) {
	gpu := &fakeGPU{}
	cfg := DefaultConfig()
	cfg.MaxFree = 2
	m := NewManager(gpu, cfg, nil)

	var trash []Trashed
	for i := 0; i < 5; i++ {
		h, _ := m.Upload(0, testImage())
		trash = append(trash, Trashed{Handle: h, Resolution: 0})
	}
	m.DestroyTrash(trash)
	m.DestroyTrash(nil)

	assert.Equal(t, 2, m.Stats().Free)
	assert.Len(t, gpu.deleted, 3)
}

func TestDoubleTrashIsIgnored(t *testing.T) {
	gpu := &fakeGPU{}
	m := NewManager(gpu, DefaultConfig(), nil)

	h, _ := m.Upload(0, testImage())
	m.DestroyTrash([]Trashed{{Handle: h, Resolution: 0}, {Handle: h, Resolution: 0}})
	m.DestroyTrash(nil)

	assert.Equal(t, 1, m.Stats().Free)
	a, ok := m.Acquire(0)
	require.True(t, ok)
	assert.Equal(t, h, a)
	_, ok = m.Acquire(0)
	assert.False(t, ok, "a handle must never be handed out twice")
}

func TestUploadExhausted(t *testing.T) {
	gpu := &fakeGPU{failNew: true}
	m := NewManager(gpu, DefaultConfig(), nil)

	_, err := m.Upload(0, testImage())
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 0, m.Stats().Live)
}

func TestCloseDeletesEverything(t *testing.T) {
	gpu := &fakeGPU{}
	m := NewManager(gpu, DefaultConfig(), nil)

	a, _ := m.Upload(0, testImage())
	b, _ := m.Upload(1, testImage())
	c, _ := m.Upload(1, testImage())
	m.DestroyTrash([]Trashed{{Handle: b, Resolution: 1}})
	m.DestroyTrash([]Trashed{{Handle: c, Resolution: 1}})

	m.Close()
	assert.ElementsMatch(t, []Handle{a, b, c}, gpu.deleted)
}

func TestFreeListGrowth(t *testing.T) {
	fl := freeList{initial: 4}
	for i := 1; i <= 9; i++ {
		fl.push(Handle(i))
	}
	assert.Equal(t, 9, fl.len())
	assert.Equal(t, 16, cap(fl.items))

	h, ok := fl.pop()
	require.True(t, ok)
	assert.Equal(t, Handle(9), h)
}
