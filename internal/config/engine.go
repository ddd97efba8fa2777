package config

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/Faultbox/globestream/internal/assets"
	"github.com/Faultbox/globestream/internal/engine/globe"
	"github.com/Faultbox/globestream/internal/engine/landscape"
	"github.com/Faultbox/globestream/internal/engine/loader"
	"github.com/Faultbox/globestream/internal/engine/texture"
	"github.com/Faultbox/globestream/internal/network"
)

// Validate checks the configuration without building anything.
func (c *Config) Validate() error {
	if _, err := c.Engine(); err != nil {
		return err
	}
	return c.Window.validate()
}

func (w WindowConfig) validate() error {
	if w.Width <= 0 || w.Height <= 0 {
		return fmt.Errorf("window size %dx%d must be positive", w.Width, w.Height)
	}
	if w.Segments < 1 {
		return fmt.Errorf("window segments %d: need at least 1", w.Segments)
	}
	switch w.Samples {
	case 0, 2, 4, 8, 16:
	default:
		return fmt.Errorf("window samples %d: must be 0, 2, 4, 8 or 16", w.Samples)
	}
	return nil
}

// Landscape converts the globe and level sections.
func (c *Config) Landscape() (landscape.Config, error) {
	b := c.Globe.Bounds
	if b[0] >= b[2] || b[1] >= b[3] {
		return landscape.Config{}, fmt.Errorf("globe bounds %v: west/south must be below east/north", b)
	}

	lc := landscape.Config{
		UnitDD:              c.Globe.UnitDD,
		Bounds:              orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}},
		MaxActiveLevels:     c.Globe.MaxActiveLevels,
		CoarseMaxResolution: c.Globe.CoarseMaxResolution,
		Terrain:             c.Globe.Terrain,
		TerrainScale:        c.Globe.TerrainScale,
		ImageryExt:          c.Globe.ImageryExt,
		ElevationExt:        c.Globe.ElevationExt,
		Levels:              make([]landscape.LevelConfig, len(c.Levels)),
	}
	for i, lv := range c.Levels {
		lc.Levels[i] = landscape.LevelConfig{
			TileSize:       lv.TileSize,
			MinZoom:        lv.MinZoom,
			MaxZoom:        lv.MaxZoom,
			Divisor:        lv.Divisor,
			ServerID:       lv.Server,
			NumResolutions: lv.Resolutions,
			GridWidth:      lv.GridWidth,
			GridHeight:     lv.GridHeight,
		}
	}
	if err := lc.Validate(); err != nil {
		return landscape.Config{}, err
	}
	return lc, nil
}

// NetworkServers converts the server section.
func (c *Config) NetworkServers() ([]network.Server, error) {
	if len(c.Servers) == 0 {
		return nil, errors.New("no servers configured")
	}
	out := make([]network.Server, len(c.Servers))
	for i, s := range c.Servers {
		switch s.Protocol {
		case "", network.ProtocolHTTP, network.ProtocolSocket, network.ProtocolSQLite:
		default:
			return nil, fmt.Errorf("server %d: unknown protocol %q", s.ID, s.Protocol)
		}
		if s.URL == "" {
			return nil, fmt.Errorf("server %d: url is required", s.ID)
		}
		out[i] = network.Server{
			ID:        s.ID,
			Name:      s.Name,
			Protocol:  s.Protocol,
			URL:       s.URL,
			BasicAuth: s.BasicAuth,
			URLAppend: s.URLAppend,
		}
	}
	return out, nil
}

// Engine converts the configuration into engine settings.
func (c *Config) Engine() (globe.Config, error) {
	land, err := c.Landscape()
	if err != nil {
		return globe.Config{}, err
	}
	servers, err := c.NetworkServers()
	if err != nil {
		return globe.Config{}, err
	}
	for i, lv := range c.Levels {
		if _, ok := c.Server(lv.Server); !ok {
			return globe.Config{}, fmt.Errorf("level %d: unknown server id %d", i, lv.Server)
		}
	}
	if _, err := landscape.ParseDisplayMode(c.Globe.DisplayMode); err != nil {
		return globe.Config{}, err
	}
	if c.Loader.Workers < 1 {
		return globe.Config{}, fmt.Errorf("loader workers %d must be at least 1", c.Loader.Workers)
	}

	tex := texture.DefaultConfig()
	tex.Recycle = c.Texture.Recycle
	tex.MaxFree = c.Texture.MaxFree

	return globe.Config{
		Landscape: land,
		Loader: loader.Config{
			Workers:           c.Loader.Workers,
			MaxQueued:         c.Loader.MaxQueued,
			MaxAttempts:       c.Loader.MaxAttempts,
			RetryBackoff:      c.Loader.RetryBackoff,
			RequestsPerSecond: c.Loader.RequestsPerSecond,
			Burst:             c.Loader.Burst,
			MaxImageSize:      c.Loader.MaxImageSize,
		},
		Texture: tex,
		Assets: assets.Config{
			MaxBytes:    c.Cache.MaxBytes,
			NumCounters: c.Cache.NumCounters,
		},
		Servers:     servers,
		HTTPTimeout: c.Network.HTTPTimeout,
		DialTimeout: c.Network.DialTimeout,
	}, nil
}

// Server returns the server with id.
func (c *Config) Server(id int) (ServerConfig, bool) {
	for _, s := range c.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return ServerConfig{}, false
}
