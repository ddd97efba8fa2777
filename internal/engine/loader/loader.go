// Package loader streams tile payloads in the background and applies the
// results on the render thread.
//
// The render thread calls AcquireTile for every active level, which queues
// the next missing resolution of every in-scene tile. Workers fetch and
// decode; Drain uploads the results once per frame. Tiles that leave the
// scene while a request is in flight have the result discarded.
package loader

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Faultbox/globestream/internal/codec/baseline"
	"github.com/Faultbox/globestream/internal/codec/wavelet"
	"github.com/Faultbox/globestream/internal/engine/landscape"
	"github.com/Faultbox/globestream/internal/engine/texture"
	"github.com/Faultbox/globestream/internal/engine/tile"
	"github.com/Faultbox/globestream/internal/network"
	"github.com/Faultbox/globestream/pkg/formats"
)

// errStale marks work dropped because its tile left the scene.
var errStale = errors.New("tile left the scene")

// Source returns at least need bytes of a payload, or all of it when need
// is 0.
type Source interface {
	Get(ctx context.Context, srv network.Server, path string, need int64) ([]byte, error)
}

// Uploader turns decoded imagery into a texture.
type Uploader interface {
	Upload(res int, img *image.RGBA) (texture.Handle, error)
}

// Config tunes the worker pool.
type Config struct {
	Workers           int
	MaxQueued         int
	MaxAttempts       int
	RetryBackoff      time.Duration
	RequestsPerSecond float64 // 0 disables rate limiting
	Burst             int
	MaxImageSize      int // Baseline images are scaled to fit
}

// DefaultConfig returns the default loader settings.
func DefaultConfig() Config {
	return Config{
		Workers:      2,
		MaxQueued:    512,
		MaxAttempts:  3,
		RetryBackoff: 500 * time.Millisecond,
		Burst:        8,
		MaxImageSize: 2048,
	}
}

// Result is a finished request.
type Result struct {
	Request
	Image     *image.RGBA
	Elevation *tile.Elevation
	Err       error
}

// Stats is a snapshot of loader activity.
type Stats struct {
	Queued    int
	InFlight  int
	Ready     int
	Completed int64
	Failed    int64
	Discarded int64
	Dropped   int64 // Requests refused because the queue was full
}

// Loader schedules tile requests across a worker pool.
type Loader struct {
	cfg     Config
	src     Source
	servers map[int]network.Server
	limiter *rate.Limiter
	log     *zap.Logger

	mu          sync.Mutex
	queue       requestHeap
	pending     map[requestKey]struct{} // Queued, running or waiting in ready
	ready       []Result
	trash       []texture.Trashed
	runCtx      context.Context
	fetchCtx    context.Context
	cancelFetch context.CancelFunc

	wake chan struct{}

	group *errgroup.Group
	stop  context.CancelFunc

	running   atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64
	discarded atomic.Int64
	dropped   atomic.Int64
}

// New creates a loader reading payloads from src.
func New(cfg Config, src Source, servers []network.Server, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	byID := make(map[int]network.Server, len(servers))
	for _, s := range servers {
		byID[s.ID] = s
	}

	return &Loader{
		cfg:     cfg,
		src:     src,
		servers: byID,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.Named("loader"),
		pending: make(map[requestKey]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Start launches the workers. They run until ctx is done or Close is called.
func (l *Loader) Start(ctx context.Context) {
	ctx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	l.mu.Lock()
	l.runCtx = gctx
	l.fetchCtx, l.cancelFetch = context.WithCancel(gctx)
	l.mu.Unlock()

	for i := 0; i < l.cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			return l.worker(gctx, id)
		})
	}
	l.group = g
	l.stop = stop
	l.log.Info("loader started", zap.Int("workers", l.cfg.Workers))
}

// Close stops the workers and waits for them to exit.
func (l *Loader) Close() error {
	if l.stop == nil {
		return nil
	}
	l.stop()
	err := l.group.Wait()
	l.stop = nil
	return err
}

// AcquireTile queues the next missing resolution of every in-scene record
// of level, plus elevation when level is the finest active one. A request
// already pending for the same tile, kind and resolution is not queued
// again.
func (l *Loader) AcquireTile(level *landscape.Level, finest bool) {
	for _, rec := range level.Records() {
		if !rec.InScene() {
			continue
		}

		if !rec.MapRequestInFlight {
			target := level.TargetResolution(rec, finest)
			if k, ok := rec.NextResolution(target); ok {
				l.request(rec, tile.KindImagery, k, level.Distance(rec))
			}
		}

		if finest && level.WantsElevation() && rec.Elevation == nil &&
			!rec.ElevationFailed && !rec.ElevationRequestInFlight {
			l.request(rec, tile.KindElevation, 0, level.Distance(rec))
		}
	}
}

// request queues work for rec and marks it in flight.
func (l *Loader) request(rec *tile.Record, kind tile.Kind, res int, distance float64) bool {
	req := &Request{
		Key:        rec.Key,
		Kind:       kind,
		Resolution: res,
		Source:     rec.Source,
		record:     rec,
		generation: rec.Generation(),
		distance:   distance,
	}
	if !l.enqueue(req) {
		return false
	}

	switch kind {
	case tile.KindImagery:
		rec.MapRequestInFlight = true
		rec.Wavelets[res].Requested = true
	case tile.KindElevation:
		rec.ElevationRequestInFlight = true
	}
	return true
}

func (l *Loader) enqueue(req *Request) bool {
	l.mu.Lock()
	id := req.id()
	if _, dup := l.pending[id]; dup {
		l.mu.Unlock()
		return false
	}
	if l.cfg.MaxQueued > 0 && l.queue.Len() >= l.cfg.MaxQueued {
		l.mu.Unlock()
		l.dropped.Add(1)
		return false
	}
	heap.Push(&l.queue, req)
	l.pending[id] = struct{}{}
	l.mu.Unlock()

	l.Wake()
	return true
}

// requeue puts an interrupted request back without touching pending.
func (l *Loader) requeue(req *Request) {
	l.mu.Lock()
	heap.Push(&l.queue, req)
	l.mu.Unlock()
	l.Wake()
}

// Wake nudges an idle worker to look at the queue.
func (l *Loader) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Interrupt aborts the fetches currently running. Interrupted requests whose
// tile is still in the scene go back on the queue; workers keep running.
func (l *Loader) Interrupt() {
	l.mu.Lock()
	if l.cancelFetch != nil {
		l.cancelFetch()
		l.fetchCtx, l.cancelFetch = context.WithCancel(l.runCtx)
	}
	l.mu.Unlock()
	l.Wake()
}

func (l *Loader) currentFetchContext() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetchCtx
}

// next blocks until a request is available or ctx is done.
func (l *Loader) next(ctx context.Context) (*Request, bool) {
	for {
		l.mu.Lock()
		if l.queue.Len() > 0 {
			req := heap.Pop(&l.queue).(*Request)
			more := l.queue.Len() > 0
			l.mu.Unlock()
			if more {
				l.Wake()
			}
			return req, true
		}
		l.mu.Unlock()

		select {
		case <-l.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (l *Loader) worker(ctx context.Context, id int) error {
	log := l.log.With(zap.Int("worker", id))
	for {
		req, ok := l.next(ctx)
		if !ok {
			return nil
		}

		l.running.Add(1)
		res, done := l.process(ctx, req, log)
		l.running.Add(-1)

		if done {
			l.mu.Lock()
			l.ready = append(l.ready, res)
			l.mu.Unlock()
		}
	}
}

func stale(req *Request) bool {
	return req.record.Generation() != req.generation || !req.record.InScene()
}

// process runs one request with retries. It returns false when the request
// was interrupted and put back on the queue.
func (l *Loader) process(ctx context.Context, req *Request, log *zap.Logger) (Result, bool) {
	res := Result{Request: *req}
	for attempt := 1; ; attempt++ {
		if stale(req) {
			res.Err = errStale
			return res, true
		}
		if err := l.limiter.Wait(ctx); err != nil {
			res.Err = err
			return res, true
		}

		fctx := l.currentFetchContext()
		err := l.fetch(fctx, &res)
		if err == nil {
			return res, true
		}

		if fctx.Err() != nil && ctx.Err() == nil {
			if stale(req) {
				res.Err = errStale
				return res, true
			}
			log.Debug("request interrupted", zap.Stringer("tile", req.Key))
			l.requeue(req)
			return Result{}, false
		}

		if attempt >= l.cfg.MaxAttempts || !network.IsTemporary(err) {
			res.Err = err
			return res, true
		}

		log.Debug("retrying request",
			zap.Stringer("tile", req.Key),
			zap.Stringer("kind", req.Kind),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-time.After(l.cfg.RetryBackoff):
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res, true
		}
	}
}

func (l *Loader) fetch(ctx context.Context, res *Result) error {
	srv, ok := l.servers[res.Source.ServerID]
	if !ok {
		return fmt.Errorf("tile %s: unknown server %d", res.Key, res.Source.ServerID)
	}

	switch res.Kind {
	case tile.KindImagery:
		img, err := l.fetchImagery(ctx, srv, res.Source.Imagery, res.Resolution)
		if err != nil {
			return err
		}
		res.Image = img
	case tile.KindElevation:
		elev, err := l.fetchElevation(ctx, srv, res.Key, res.Source.Elevation)
		if err != nil {
			return err
		}
		res.Elevation = elev
	}
	return nil
}

// fetchImagery reads just the codestream prefix resolution k needs.
// Baseline images carry a single resolution.
func (l *Loader) fetchImagery(ctx context.Context, srv network.Server, path string, k int) (*image.RGBA, error) {
	if baseline.Handles(path) {
		if k > 0 {
			return nil, fmt.Errorf("%s: %w", path, wavelet.ErrResolution)
		}
		data, err := l.src.Get(ctx, srv, path, 0)
		if err != nil {
			return nil, err
		}
		img, err := baseline.Decode(data, l.cfg.MaxImageSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return img, nil
	}

	data, err := l.src.Get(ctx, srv, path, wavelet.MaxHeaderLen)
	if err != nil {
		return nil, err
	}
	hdr, err := wavelet.ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, _, err := hdr.Dimensions(k); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if need := hdr.PrefixLen(k); len(data) < need {
		data, err = l.src.Get(ctx, srv, path, int64(need))
		if err != nil {
			return nil, err
		}
	}

	img, err := wavelet.Decode(data, k)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func (l *Loader) fetchElevation(ctx context.Context, srv network.Server, key tile.Key, path string) (*tile.Elevation, error) {
	data, err := l.src.Get(ctx, srv, path, 0)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".dem") {
		dem, err := formats.ParseDEM(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return tile.NewDEMElevation(key, dem), nil
	}
	tin, err := formats.ParseTIN(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tile.NewTINElevation(key, tin), nil
}

// Drain applies every finished request. It must run on the render thread
// and never blocks. It returns how many results were applied.
func (l *Loader) Drain(up Uploader) int {
	l.mu.Lock()
	batch := l.ready
	l.ready = nil
	for i := range batch {
		delete(l.pending, batch[i].id())
	}
	l.mu.Unlock()

	applied := 0
	for i := range batch {
		if l.apply(&batch[i], up) {
			applied++
		}
	}
	return applied
}

func (l *Loader) apply(res *Result, up Uploader) bool {
	rec := res.record
	current := rec.Generation() == res.generation

	// A retired record may already carry requests for its new tile.
	if current {
		switch res.Kind {
		case tile.KindImagery:
			rec.MapRequestInFlight = false
		case tile.KindElevation:
			rec.ElevationRequestInFlight = false
		}
	}

	if !current || !rec.InScene() || errors.Is(res.Err, errStale) {
		if current && res.Kind == tile.KindImagery {
			rec.Wavelets[res.Resolution].Requested = false
		}
		l.discarded.Add(1)
		return false
	}

	if res.Err != nil {
		l.fail(rec, res)
		return false
	}

	switch res.Kind {
	case tile.KindImagery:
		k := res.Resolution
		h, err := up.Upload(k, res.Image)
		if err != nil {
			rec.Wavelets[k].Failed = true
			rec.Wavelets[k].Requested = false
			l.failed.Add(1)
			l.log.Warn("texture upload failed", zap.Stringer("tile", res.Key), zap.Int("resolution", k), zap.Error(err))
			return false
		}
		old, ok := rec.Promote(k, h)
		if !ok {
			// Never step down: a late lower resolution goes straight to the trash.
			rec.Wavelets[k].Requested = false
			l.Trash([]texture.Trashed{{Handle: h, Resolution: k}})
			l.discarded.Add(1)
			return false
		}
		l.Trash(old)

	case tile.KindElevation:
		rec.Elevation = res.Elevation
	}

	l.completed.Add(1)
	return true
}

func (l *Loader) fail(rec *tile.Record, res *Result) {
	l.failed.Add(1)

	switch res.Kind {
	case tile.KindImagery:
		k := res.Resolution
		rec.Wavelets[k].Requested = false
		rec.Wavelets[k].Failed = true
		// A missing payload or resolution cannot appear at a finer one.
		if errors.Is(res.Err, network.ErrNotFound) || errors.Is(res.Err, wavelet.ErrResolution) {
			for i := k + 1; i < tile.MaxResolutions; i++ {
				rec.Wavelets[i].Failed = true
			}
		}
	case tile.KindElevation:
		rec.ElevationFailed = true
	}

	if errors.Is(res.Err, network.ErrNotFound) || errors.Is(res.Err, wavelet.ErrResolution) {
		l.log.Debug("tile unavailable", zap.Stringer("tile", res.Key), zap.Stringer("kind", res.Kind), zap.Int("resolution", res.Resolution))
		return
	}
	l.log.Warn("tile request failed",
		zap.Stringer("tile", res.Key),
		zap.Stringer("kind", res.Kind),
		zap.Int("resolution", res.Resolution),
		zap.Error(res.Err))
}

// Trash collects textures vacated by retired or superseded records.
func (l *Loader) Trash(handles []texture.Trashed) {
	if len(handles) == 0 {
		return
	}
	l.mu.Lock()
	l.trash = append(l.trash, handles...)
	l.mu.Unlock()
}

// TextureTrash returns and clears the collected textures.
func (l *Loader) TextureTrash() []texture.Trashed {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.trash
	l.trash = nil
	return t
}

// Stats returns a snapshot of loader activity.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	queued, ready := l.queue.Len(), len(l.ready)
	l.mu.Unlock()
	return Stats{
		Queued:    queued,
		InFlight:  int(l.running.Load()),
		Ready:     ready,
		Completed: l.completed.Load(),
		Failed:    l.failed.Load(),
		Discarded: l.discarded.Load(),
		Dropped:   l.dropped.Load(),
	}
}
