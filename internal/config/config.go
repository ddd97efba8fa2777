// Package config handles viewer and tool configuration loading and
// management.
package config

import (
	"time"

	"github.com/Faultbox/globestream/internal/engine/landscape"
)

// Config holds all settings.
type Config struct {
	Globe   GlobeConfig    `yaml:"globe"`
	Levels  []LevelConfig  `yaml:"levels"`
	Servers []ServerConfig `yaml:"servers"`
	Loader  LoaderConfig   `yaml:"loader"`
	Texture TextureConfig  `yaml:"texture"`
	Cache   CacheConfig    `yaml:"cache"`
	Network NetworkConfig  `yaml:"network"`
	Window  WindowConfig   `yaml:"window"`
	Camera  CameraConfig   `yaml:"camera"`
	Logging LoggingConfig  `yaml:"logging"`
}

// GlobeConfig holds landscape-wide settings.
type GlobeConfig struct {
	UnitDD              int        `yaml:"unit_dd"`
	Bounds              [4]float64 `yaml:"bounds"` // west, south, east, north in degrees
	MaxActiveLevels     int        `yaml:"max_active_levels"`
	CoarseMaxResolution int        `yaml:"coarse_max_resolution"`
	Terrain             bool       `yaml:"terrain"`
	TerrainScale        float64    `yaml:"terrain_scale"`
	DisplayMode         string     `yaml:"display_mode"`
	ImageryExt          string     `yaml:"imagery_ext"`
	ElevationExt        string     `yaml:"elevation_ext"`
}

// LevelConfig describes one detail level.
type LevelConfig struct {
	TileSize    int     `yaml:"tile_size"`
	MinZoom     float64 `yaml:"min_zoom"`
	MaxZoom     float64 `yaml:"max_zoom"`
	Divisor     int     `yaml:"divisor"`
	Server      int     `yaml:"server"`
	Resolutions int     `yaml:"resolutions"`
	GridWidth   int     `yaml:"grid_width"`
	GridHeight  int     `yaml:"grid_height"`
}

// ServerConfig describes a data server.
type ServerConfig struct {
	ID        int    `yaml:"id"`
	Name      string `yaml:"name"`
	Protocol  string `yaml:"protocol"`
	URL       string `yaml:"url"`
	BasicAuth string `yaml:"basic_auth"`
	URLAppend string `yaml:"url_append"`
}

// LoaderConfig holds streaming worker settings.
type LoaderConfig struct {
	Workers           int           `yaml:"workers"`
	MaxQueued         int           `yaml:"max_queued"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxImageSize      int           `yaml:"max_image_size"`
}

// TextureConfig holds texture recycling settings.
type TextureConfig struct {
	Recycle bool `yaml:"recycle"`
	MaxFree int  `yaml:"max_free"`
}

// CacheConfig holds payload cache settings.
type CacheConfig struct {
	MaxBytes    int64 `yaml:"max_bytes"`
	NumCounters int64 `yaml:"num_counters"`
}

// NetworkConfig holds transport timeouts.
type NetworkConfig struct {
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// WindowConfig holds display settings.
type WindowConfig struct {
	Title      string `yaml:"title"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Fullscreen bool   `yaml:"fullscreen"`
	VSync      bool   `yaml:"vsync"`
	Samples    int    `yaml:"samples"` // MSAA samples, 0 disables
	FPSLimit   int    `yaml:"fps_limit"`
	Segments   int    `yaml:"segments"` // Mesh quads per tile edge

	ScreenshotDir string `yaml:"screenshot_dir"`
}

// CameraConfig holds the starting view.
type CameraConfig struct {
	Lon      float64 `yaml:"lon"`
	Lat      float64 `yaml:"lat"`
	Altitude float64 `yaml:"altitude"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	JSON    bool   `yaml:"json"`
}

// Default returns a Config with sensible default values. It has one HTTP
// server on localhost serving every level.
func Default() *Config {
	land := landscape.DefaultConfig()
	levels := make([]LevelConfig, len(land.Levels))
	for i, lv := range land.Levels {
		levels[i] = LevelConfig{
			TileSize:    lv.TileSize,
			MinZoom:     lv.MinZoom,
			MaxZoom:     lv.MaxZoom,
			Divisor:     lv.Divisor,
			Server:      lv.ServerID,
			Resolutions: lv.NumResolutions,
			GridWidth:   lv.GridWidth,
			GridHeight:  lv.GridHeight,
		}
	}

	return &Config{
		Globe: GlobeConfig{
			UnitDD:              land.UnitDD,
			Bounds:              [4]float64{-180, -90, 180, 90},
			MaxActiveLevels:     land.MaxActiveLevels,
			CoarseMaxResolution: land.CoarseMaxResolution,
			Terrain:             land.Terrain,
			TerrainScale:        land.TerrainScale,
			DisplayMode:         "textured",
			ImageryExt:          land.ImageryExt,
			ElevationExt:        land.ElevationExt,
		},
		Levels: levels,
		Servers: []ServerConfig{
			{ID: 0, Name: "local", Protocol: "http", URL: "http://127.0.0.1:8080/tiles"},
		},
		Loader: LoaderConfig{
			Workers:      2,
			MaxQueued:    512,
			MaxAttempts:  3,
			RetryBackoff: 500 * time.Millisecond,
			Burst:        8,
			MaxImageSize: 2048,
		},
		Texture: TextureConfig{
			Recycle: true,
			MaxFree: 64,
		},
		Cache: CacheConfig{
			MaxBytes:    256 << 20,
			NumCounters: 100000,
		},
		Network: NetworkConfig{
			HTTPTimeout: 30 * time.Second,
			DialTimeout: 10 * time.Second,
		},
		Window: WindowConfig{
			Title:    "globestream",
			Width:    1280,
			Height:   720,
			VSync:    true,
			Samples:  4,
			Segments: 16,

			ScreenshotDir: "screenshots",
		},
		Camera: CameraConfig{
			Altitude: 20000000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
