package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagServer     = flag.String("server", "", "URL of the first data server")
	flagWindowed   = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
	flagWorkers    = flag.Int("workers", 0, "Loader worker count")
	flagMode       = flag.String("mode", "", "Display mode: textured, wireframe or untextured")
	flagNoTerrain  = flag.Bool("no-terrain", false, "Disable elevation")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagServer != "" && len(cfg.Servers) > 0 {
		cfg.Servers[0].URL = *flagServer
	}
	if *flagWindowed {
		cfg.Window.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Window.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Window.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Window.Height = *flagHeight
	}
	if *flagWorkers > 0 {
		cfg.Loader.Workers = *flagWorkers
	}
	if *flagMode != "" {
		cfg.Globe.DisplayMode = *flagMode
	}
	if *flagNoTerrain {
		cfg.Globe.Terrain = false
	}
}
