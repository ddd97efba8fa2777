// Package viewer implements the interactive globe viewer loop.
package viewer

import (
	"context"
	"fmt"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/globestream/internal/config"
	"github.com/Faultbox/globestream/internal/engine/camera"
	"github.com/Faultbox/globestream/internal/engine/globe"
	"github.com/Faultbox/globestream/internal/engine/input"
	"github.com/Faultbox/globestream/internal/engine/landscape"
	"github.com/Faultbox/globestream/internal/engine/renderer"
	"github.com/Faultbox/globestream/internal/engine/screenshot"
	"github.com/Faultbox/globestream/internal/engine/window"
)

// Viewer is the main viewer instance.
type Viewer struct {
	cfg      *config.Config
	log      *zap.Logger
	running  bool
	window   *window.Window
	renderer *renderer.Renderer
	input    *input.Input
	camera   *camera.GlobeCamera
	engine   *globe.Engine
	shots    *screenshot.Capturer
	mode     landscape.DisplayMode
	wantShot bool
}

// New creates the window, renderer and engine.
func New(cfg *config.Config, log *zap.Logger) (*Viewer, error) {
	ec, err := cfg.Engine()
	if err != nil {
		return nil, err
	}
	mode, err := landscape.ParseDisplayMode(cfg.Globe.DisplayMode)
	if err != nil {
		return nil, err
	}

	v := &Viewer{cfg: cfg, log: log.Named("viewer"), mode: mode}

	// Window first; the renderer needs its GL context.
	v.window, err = window.New(window.Config{
		Title:      cfg.Window.Title,
		Width:      cfg.Window.Width,
		Height:     cfg.Window.Height,
		Fullscreen: cfg.Window.Fullscreen,
		VSync:      cfg.Window.VSync,
		Samples:    cfg.Window.Samples,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	w, h := v.window.DrawableSize()
	v.renderer, err = renderer.New(renderer.Config{
		Width:    w,
		Height:   h,
		Segments: cfg.Window.Segments,
	}, log)
	if err != nil {
		v.window.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	v.engine, err = globe.New(ec, renderer.Device{}, log)
	if err != nil {
		v.renderer.Close()
		v.window.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	v.engine.SetDisplayMode(mode)

	v.input = input.New()
	v.shots = screenshot.New(cfg.Window.ScreenshotDir, "globe")
	v.camera = camera.New()
	v.camera.LookAt(cfg.Camera.Lon, cfg.Camera.Lat)
	v.camera.SetAltitude(cfg.Camera.Altitude)

	v.log.Info("viewer initialized",
		zap.Int("levels", len(ec.Landscape.Levels)),
		zap.Stringer("mode", mode),
	)
	return v, nil
}

// Run drives the frame loop until the window closes or ctx is done.
func (v *Viewer) Run(ctx context.Context) error {
	v.running = true
	v.engine.Start(ctx)

	var limiter <-chan time.Time
	if v.cfg.Window.FPSLimit > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(v.cfg.Window.FPSLimit))
		defer ticker.Stop()
		limiter = ticker.C
	}

	lastTime := time.Now()
	frameCount := 0
	fpsTimer := time.Now()

	v.log.Info("starting frame loop")
	for v.running {
		if ctx.Err() != nil {
			break
		}
		now := time.Now()
		dt := now.Sub(lastTime).Seconds()
		lastTime = now

		if v.input.Update() {
			break
		}
		before := *v.camera
		v.handleEvents()
		v.handleKeys(dt)

		switch {
		case v.camera.JumpedFrom(before):
			v.engine.Interrupt()
		case v.input.Activity():
			v.engine.Wake()
		}

		v.camera.SetGround(v.engine.GroundHeight(v.camera.Lon, v.camera.Lat))
		items := v.engine.Frame(v.camera)

		on, scale := v.engine.Landscape().Terrain()
		if !on {
			scale = 0
		}
		v.renderer.Draw(items, renderer.Frame{
			Eye:         v.camera.Position(),
			View:        v.camera.ViewMatrix(),
			Projection:  v.camera.ProjectionMatrix(v.renderer.Aspect()),
			Mode:        v.mode,
			UnitDD:      v.engine.Landscape().UnitDD(),
			HeightScale: scale,
		})
		if v.wantShot {
			v.wantShot = false
			v.capture()
		}
		v.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			v.report(frameCount)
			frameCount = 0
			fpsTimer = time.Now()
		}

		if limiter != nil {
			<-limiter
		}
	}
	return nil
}

func (v *Viewer) handleEvents() {
	for _, e := range v.input.Events() {
		switch e.Type {
		case input.EventWindowResize:
			v.renderer.Resize(v.window.DrawableSize())

		case input.EventMouseWheel:
			v.camera.HandleZoom(float64(e.DeltaY))

		case input.EventMouseMove:
			switch {
			case v.input.IsButtonHeld(sdl.BUTTON_LEFT):
				v.camera.HandleDrag(float64(e.DeltaX), float64(e.DeltaY))
			case v.input.IsButtonHeld(sdl.BUTTON_RIGHT):
				v.camera.HandleRotate(float64(e.DeltaX)*0.005, float64(e.DeltaY)*0.005)
			}

		case input.EventMouseDown:
			if e.Button == sdl.BUTTON_MIDDLE {
				w, h := v.window.Size()
				if lon, lat, ok := v.camera.Pick(float64(e.MouseX), float64(e.MouseY), float64(w), float64(h)); ok {
					v.camera.LookAt(lon, lat)
				}
			}

		case input.EventKeyDown:
			v.handleKeyDown(e.Key)
		}
	}
}

func (v *Viewer) handleKeyDown(key sdl.Scancode) {
	switch key {
	case sdl.SCANCODE_ESCAPE:
		v.running = false
	case sdl.SCANCODE_1:
		v.setMode(landscape.Textured)
	case sdl.SCANCODE_2:
		v.setMode(landscape.Wireframe)
	case sdl.SCANCODE_3:
		v.setMode(landscape.Untextured)
	case sdl.SCANCODE_T:
		on := v.engine.ToggleTerrain()
		v.log.Info("terrain toggled", zap.Bool("enabled", on))
	case sdl.SCANCODE_R:
		v.camera.Heading, v.camera.Tilt = 0, 0
	case sdl.SCANCODE_F11:
		v.window.ToggleFullscreen()
	case sdl.SCANCODE_F12:
		v.wantShot = true
	}
}

func (v *Viewer) capture() {
	pixels, w, h := v.renderer.ReadPixels()
	name, err := v.shots.Capture(pixels, w, h)
	if err != nil {
		v.log.Warn("screenshot failed", zap.Error(err))
		return
	}
	v.log.Info("screenshot saved", zap.String("file", name))
}

func (v *Viewer) setMode(m landscape.DisplayMode) {
	v.mode = m
	v.engine.SetDisplayMode(m)
	v.log.Info("display mode", zap.Stringer("mode", m))
}

// handleKeys moves the camera while arrow keys are held.
func (v *Viewer) handleKeys(dt float64) {
	// Screen-widths per second.
	step := dt * 0.5 * v.camera.Alt / 111000
	var dLon, dLat float64
	if v.input.IsKeyHeld(sdl.SCANCODE_LEFT) {
		dLon -= step
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_RIGHT) {
		dLon += step
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_UP) {
		dLat += step
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_DOWN) {
		dLat -= step
	}
	if dLon != 0 || dLat != 0 {
		v.camera.MoveBy(dLon, dLat)
		v.engine.Wake()
	}
}

func (v *Viewer) report(fps int) {
	s := v.engine.Stats()
	v.window.SetTitle(fmt.Sprintf("%s | %d fps | %d tiles | %d queued",
		v.cfg.Window.Title, fps, s.Drawn, s.Loader.Queued))
	v.log.Debug("frame stats",
		zap.Int("fps", fps),
		zap.Int("drawn", s.Drawn),
		zap.Int("queued", s.Loader.Queued),
		zap.Int("in_flight", s.Loader.InFlight),
		zap.Int("textures", s.Textures.Live),
		zap.Int64("cache_hits", s.Assets.Hits),
		zap.Float64("altitude", v.camera.Alt),
	)
}

// Close stops the engine and tears down the window.
func (v *Viewer) Close() {
	v.log.Info("closing viewer")

	if v.engine != nil {
		if err := v.engine.Close(); err != nil {
			v.log.Warn("engine close", zap.Error(err))
		}
	}
	if v.renderer != nil {
		v.renderer.Close()
	}
	if v.window != nil {
		v.window.Close()
	}
}
