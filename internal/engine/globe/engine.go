// Package globe wires the streaming components into one engine context and
// runs the per-frame control flow.
package globe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/globestream/internal/assets"
	"github.com/Faultbox/globestream/internal/engine/landscape"
	"github.com/Faultbox/globestream/internal/engine/loader"
	"github.com/Faultbox/globestream/internal/engine/texture"
	"github.com/Faultbox/globestream/internal/network"
	"github.com/Faultbox/globestream/internal/store"
)

// Config gathers the settings of every engine component.
type Config struct {
	Landscape   landscape.Config
	Loader      loader.Config
	Texture     texture.Config
	Assets      assets.Config
	Servers     []network.Server
	HTTPTimeout time.Duration
	DialTimeout time.Duration
}

// DefaultConfig returns working defaults with no servers configured.
func DefaultConfig() Config {
	return Config{
		Landscape:   landscape.DefaultConfig(),
		Loader:      loader.DefaultConfig(),
		Texture:     texture.DefaultConfig(),
		Assets:      assets.DefaultConfig(),
		HTTPTimeout: 30 * time.Second,
		DialTimeout: 10 * time.Second,
	}
}

// Stats is a snapshot of all component counters.
type Stats struct {
	Loader   loader.Stats
	Textures texture.Stats
	Assets   assets.Stats
	Drawn    int
	Frames   uint64
}

// Engine owns the landscape, loader and texture manager.
// Frame and the accessors must be called from the render thread.
type Engine struct {
	cfg      Config
	log      *zap.Logger
	land     *landscape.Landscape
	loader   *loader.Loader
	textures *texture.Manager

	cache  *assets.Cache
	socket *network.SocketFetcher
	sqlite *store.Fetcher

	drawn  int
	frames uint64
}

// New builds an engine fetching from the configured servers over HTTP, raw
// sockets or local SQLite stores.
func New(cfg Config, gpu texture.GPU, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	socket := network.NewSocketFetcher(cfg.DialTimeout, log)
	sqlite := store.NewFetcher(log)

	router := network.NewRouter()
	router.Register(network.ProtocolHTTP, network.NewHTTPFetcher(&http.Client{Timeout: cfg.HTTPTimeout}, log))
	router.Register(network.ProtocolSocket, socket)
	router.Register(network.ProtocolSQLite, sqlite)

	cache, err := assets.New(router, cfg.Assets, log)
	if err != nil {
		socket.Close()
		_ = sqlite.Close()
		return nil, fmt.Errorf("creating payload cache: %w", err)
	}

	e, err := NewWithSource(cfg, cache, gpu, log)
	if err != nil {
		cache.Close()
		socket.Close()
		_ = sqlite.Close()
		return nil, err
	}
	e.cache = cache
	e.socket = socket
	e.sqlite = sqlite
	return e, nil
}

// NewWithSource builds an engine reading payloads from src.
func NewWithSource(cfg Config, src loader.Source, gpu texture.GPU, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := validateServers(cfg); err != nil {
		return nil, err
	}

	ld := loader.New(cfg.Loader, src, cfg.Servers, log)
	land, err := landscape.New(cfg.Landscape, ld, log)
	if err != nil {
		return nil, fmt.Errorf("creating landscape: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		log:      log.Named("globe"),
		land:     land,
		loader:   ld,
		textures: texture.NewManager(gpu, cfg.Texture, log),
	}, nil
}

// validateServers checks that every level's server is configured.
func validateServers(cfg Config) error {
	ids := make(map[int]bool, len(cfg.Servers))
	for _, s := range cfg.Servers {
		if ids[s.ID] {
			return fmt.Errorf("duplicate server id %d", s.ID)
		}
		ids[s.ID] = true
	}
	for i, lv := range cfg.Landscape.Levels {
		if !ids[lv.ServerID] {
			return fmt.Errorf("level %d: unknown server id %d", i, lv.ServerID)
		}
	}
	return nil
}

// Start launches the background workers.
func (e *Engine) Start(ctx context.Context) {
	e.loader.Start(ctx)
	e.log.Info("engine started",
		zap.Int("levels", len(e.land.Levels())),
		zap.Int("servers", len(e.cfg.Servers)),
	)
}

// Close stops the workers and releases every texture and connection.
func (e *Engine) Close() error {
	err := e.loader.Close()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	e.land.Reset()
	e.textures.DestroyTrash(e.loader.TextureTrash())
	e.textures.Close()

	if e.cache != nil {
		e.cache.Close()
	}
	if e.socket != nil {
		e.socket.Close()
	}
	if e.sqlite != nil {
		err = errors.Join(err, e.sqlite.Close())
	}
	e.log.Info("engine closed", zap.Uint64("frames", e.frames))
	return err
}

// Frame advances the engine one frame for view and returns the tiles to draw.
func (e *Engine) Frame(view landscape.View) []landscape.DrawItem {
	e.frames++
	e.land.PrepareFrame(view)
	e.textures.DestroyTrash(e.loader.TextureTrash())
	e.land.CorrectLevels()
	e.land.ProcessVisibility(view, e.loader)
	e.loader.Drain(e.textures)

	items := e.land.DrawList()
	e.drawn = len(items)
	return items
}

// GroundHeight returns the terrain height in metres at lon/lat degrees.
func (e *Engine) GroundHeight(lon, lat float64) float64 {
	return e.land.GroundHeight(e.land.ToDD(lon), e.land.ToDD(lat), 0)
}

// Interrupt abandons in-flight fetches, typically because the camera moved
// quickly. Interrupted requests go back on the queue.
func (e *Engine) Interrupt() { e.loader.Interrupt() }

// Wake nudges idle workers to recheck the queue.
func (e *Engine) Wake() { e.loader.Wake() }

// Landscape returns the level manager.
func (e *Engine) Landscape() *landscape.Landscape { return e.land }

// SetDisplayMode changes how tiles are drawn.
func (e *Engine) SetDisplayMode(m landscape.DisplayMode) { e.land.SetDisplayMode(m) }

// ToggleTerrain turns elevation on or off, keeping the height scale.
func (e *Engine) ToggleTerrain() bool {
	on, scale := e.land.Terrain()
	e.land.SetTerrain(!on, scale)
	return !on
}

// Stats returns counters from every component.
func (e *Engine) Stats() Stats {
	s := Stats{
		Loader:   e.loader.Stats(),
		Textures: e.textures.Stats(),
		Drawn:    e.drawn,
		Frames:   e.frames,
	}
	if e.cache != nil {
		s.Assets = e.cache.Stats()
	}
	return s
}
