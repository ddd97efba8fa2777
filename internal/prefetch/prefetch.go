// Package prefetch downloads every payload of a region into a SQLite store
// so the region can be viewed offline.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/teris-io/shortid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/Faultbox/globestream/internal/engine/landscape"
	"github.com/Faultbox/globestream/internal/network"
	"github.com/Faultbox/globestream/internal/store"
)

// Options selects what to download.
type Options struct {
	Bound     orb.Bound // Degrees
	MinLevel  int
	MaxLevel  int
	Imagery   bool
	Elevation bool
	Workers   int
	BatchSize int  // Payloads per store transaction
	Overwrite bool // Fetch paths already in the store again
	Retries   int
	Backoff   time.Duration
	Progress  io.Writer // Progress bar output; nil hides the bars
}

// DefaultOptions downloads imagery and elevation of every level.
func DefaultOptions() Options {
	return Options{
		Bound:     landscape.WorldBounds,
		MaxLevel:  -1,
		Imagery:   true,
		Elevation: true,
		Workers:   8,
		BatchSize: 64,
		Retries:   3,
		Backoff:   time.Second,
		Progress:  os.Stdout,
	}
}

// Report counts the outcome of a run.
type Report struct {
	Fetched int64
	Skipped int64 // Already in the store
	Missing int64 // Not on the server
	Failed  int64
	Bytes   int64
}

type job struct {
	srv  network.Server
	path string
}

// Task is one prefetch run.
type Task struct {
	ID    string
	Total int64

	opts    Options
	land    landscape.Config
	servers map[int]network.Server
	fetcher network.Fetcher
	store   *store.Store
	log     *zap.Logger
	levels  [][]job

	fetched, skipped, missing, failed, bytes atomic.Int64
}

// NewTask enumerates the payloads of the region.
func NewTask(land landscape.Config, servers []network.Server, fetcher network.Fetcher, st *store.Store, opts Options, log *zap.Logger) (*Task, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxLevel < 0 || opts.MaxLevel >= len(land.Levels) {
		opts.MaxLevel = len(land.Levels) - 1
	}
	if opts.MinLevel < 0 || opts.MinLevel > opts.MaxLevel {
		return nil, fmt.Errorf("level range %d..%d outside 0..%d", opts.MinLevel, opts.MaxLevel, len(land.Levels)-1)
	}
	if !opts.Imagery && !opts.Elevation {
		return nil, errors.New("nothing to fetch: imagery and elevation both disabled")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}

	id, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generating task id: %w", err)
	}

	byID := make(map[int]network.Server, len(servers))
	for _, s := range servers {
		byID[s.ID] = s
	}

	t := &Task{
		ID:      id,
		opts:    opts,
		land:    land,
		servers: byID,
		fetcher: fetcher,
		store:   st,
		log:     log.Named("prefetch").With(zap.String("task", id)),
	}

	for lv := opts.MinLevel; lv <= opts.MaxLevel; lv++ {
		srv, ok := byID[land.Levels[lv].ServerID]
		if !ok {
			return nil, fmt.Errorf("level %d: unknown server id %d", lv, land.Levels[lv].ServerID)
		}
		var jobs []job
		for _, k := range land.Cover(lv, opts.Bound) {
			src := land.Source(lv, k)
			if opts.Imagery {
				jobs = append(jobs, job{srv: srv, path: src.Imagery})
			}
			if opts.Elevation {
				jobs = append(jobs, job{srv: srv, path: src.Elevation})
			}
		}
		t.levels = append(t.levels, jobs)
		t.Total += int64(len(jobs))
	}
	return t, nil
}

// Run downloads every payload. It returns early only when ctx is cancelled
// or the store fails, in which case downloads still in flight are cancelled
// and the store error is returned. Missing and failed payloads are counted
// in the report.
func (t *Task) Run(ctx context.Context) (Report, error) {
	t.log.Info("task started",
		zap.Int64("payloads", t.Total),
		zap.Int("min_level", t.opts.MinLevel),
		zap.Int("max_level", t.opts.MaxLevel),
	)
	start := time.Now()

	total := pb.New64(t.Total).Prefix("Task : ")
	total.Output = t.opts.Progress
	total.Start()

	runCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	saving := make(chan store.Item, t.opts.BatchSize*2)
	saveErr := make(chan error, 1)
	go func() {
		saveErr <- t.savePipe(runCtx, saving, abort)
	}()

	var err error
	for i, jobs := range t.levels {
		if err = t.downloadLevel(runCtx, t.opts.MinLevel+i, jobs, total, saving); err != nil {
			break
		}
	}
	close(saving)
	if serr := <-saveErr; serr != nil {
		err = serr
	}

	total.FinishPrint(fmt.Sprintf("task %s finished ~", t.ID))
	r := t.report()
	t.log.Info("task finished",
		zap.Int64("fetched", r.Fetched),
		zap.Int64("skipped", r.Skipped),
		zap.Int64("missing", r.Missing),
		zap.Int64("failed", r.Failed),
		zap.Int64("bytes", r.Bytes),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	return r, err
}

func (t *Task) downloadLevel(ctx context.Context, level int, jobs []job, total *pb.ProgressBar, saving chan<- store.Item) error {
	bar := pb.New64(int64(len(jobs))).Prefix(fmt.Sprintf("Level %d : ", level))
	bar.Output = t.opts.Progress
	bar.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)
	for _, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		j := j
		g.Go(func() error {
			defer bar.Increment()
			defer total.Increment()
			return t.fetch(gctx, j, saving)
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	bar.FinishPrint(fmt.Sprintf("Task %s level %d finished ~", t.ID, level))
	return err
}

func (t *Task) fetch(ctx context.Context, j job, saving chan<- store.Item) error {
	if !t.opts.Overwrite {
		has, err := t.store.Has(ctx, j.path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if has {
			t.skipped.Add(1)
			return nil
		}
	}

	var data []byte
	var err error
	for attempt := 0; ; attempt++ {
		data, err = t.fetcher.Fetch(ctx, j.srv, j.path, network.Full)
		if err == nil || !network.IsTemporary(err) || attempt >= t.opts.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.opts.Backoff):
		}
	}

	switch {
	case errors.Is(err, network.ErrNotFound):
		t.missing.Add(1)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		t.failed.Add(1)
		t.log.Warn("fetch failed", zap.String("path", j.path), zap.Error(err))
		return nil
	}

	t.fetched.Add(1)
	t.bytes.Add(int64(len(data)))
	select {
	case saving <- store.Item{Path: j.path, Data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// savePipe writes fetched payloads in batches until in is closed. The first
// failed batch aborts the task; later items are drained and dropped.
func (t *Task) savePipe(ctx context.Context, in <-chan store.Item, abort context.CancelCauseFunc) error {
	batch := make([]store.Item, 0, t.opts.BatchSize)
	var firstErr error

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := t.store.PutBatch(context.WithoutCancel(ctx), batch); err != nil {
			firstErr = fmt.Errorf("saving batch: %w", err)
			t.log.Error("saving batch", zap.Int("items", len(batch)), zap.Error(err))
			abort(firstErr)
		}
		batch = batch[:0]
	}

	for item := range in {
		if firstErr != nil {
			continue
		}
		batch = append(batch, item)
		if len(batch) >= t.opts.BatchSize {
			flush()
		}
	}
	if firstErr == nil {
		flush()
	}
	return firstErr
}

func (t *Task) report() Report {
	return Report{
		Fetched: t.fetched.Load(),
		Skipped: t.skipped.Load(),
		Missing: t.missing.Load(),
		Failed:  t.failed.Load(),
		Bytes:   t.bytes.Load(),
	}
}
