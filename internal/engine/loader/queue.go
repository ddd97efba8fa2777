package loader

import (
	"github.com/Faultbox/globestream/internal/engine/tile"
)

// Request is one fetch-and-decode work item.
type Request struct {
	Key        tile.Key
	Kind       tile.Kind
	Resolution int // Imagery resolution, 0 for elevation
	Source     tile.Source

	record     *tile.Record
	generation uint64
	distance   float64
}

type requestKey struct {
	key  tile.Key
	kind tile.Kind
	res  int
}

func (r *Request) id() requestKey {
	return requestKey{key: r.Key, kind: r.Kind, res: r.Resolution}
}

// requestHeap orders requests coarse resolution first, then nearest first,
// so every visible tile gets something on screen before any tile sharpens.
type requestHeap []*Request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].Resolution != h[j].Resolution {
		return h[i].Resolution < h[j].Resolution
	}
	return h[i].distance < h[j].distance
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) {
	*h = append(*h, x.(*Request))
}

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return r
}
