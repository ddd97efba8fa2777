// Package renderer draws the landscape's tile list with OpenGL.
package renderer

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/globestream/internal/engine/landscape"
	"github.com/Faultbox/globestream/internal/engine/mesh"
	"github.com/Faultbox/globestream/internal/engine/tile"
	"github.com/Faultbox/globestream/pkg/math"
)

// Config holds renderer configuration.
type Config struct {
	Width    int
	Height   int
	Segments int // Quads per tile edge
	MaxIdle  int // Frames a mesh may go undrawn before it is freed
}

// Frame is everything one draw pass needs besides the tile list.
type Frame struct {
	Eye         math.Vec3 // Camera position, globe-centred
	View        math.Mat4 // Camera-relative view matrix
	Projection  math.Mat4
	Mode        landscape.DisplayMode
	UnitDD      int
	HeightScale float64
}

type gpuMesh struct {
	vao, vbo, ebo uint32
	count         int32
	origin        math.Vec3
	elevation     *tile.Elevation
	scale         float64
	lastFrame     uint64
}

// Renderer owns the tile meshes and the shader program.
type Renderer struct {
	config Config
	log    *zap.Logger
	prog   *program
	meshes map[tile.Key]*gpuMesh
	frame  uint64
}

// New creates a renderer.
// Must be called after the OpenGL context is created.
func New(cfg Config, log *zap.Logger) (*Renderer, error) {
	if cfg.Segments <= 0 {
		cfg.Segments = 16
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 120
	}
	r := &Renderer{
		config: cfg,
		log:    log,
		meshes: make(map[tile.Key]*gpuMesh),
	}

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LEQUAL)
	gl.Enable(gl.CULL_FACE)
	gl.FrontFace(gl.CCW)
	gl.ClearColor(0.02, 0.02, 0.06, 1.0)

	var err error
	r.prog, err = newTileProgram()
	if err != nil {
		return nil, fmt.Errorf("failed to create shader program: %w", err)
	}
	return r, nil
}

// Close frees all GPU resources held by the renderer.
func (r *Renderer) Close() {
	r.log.Info("closing renderer", zap.Int("meshes", len(r.meshes)))
	for k, m := range r.meshes {
		m.release()
		delete(r.meshes, k)
	}
	if r.prog != nil {
		r.prog.delete()
	}
}

// Resize handles window resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	r.log.Debug("renderer resized", zap.Int("width", width), zap.Int("height", height))
}

// Aspect returns the viewport aspect ratio.
func (r *Renderer) Aspect() float64 {
	if r.config.Height == 0 {
		return 1
	}
	return float64(r.config.Width) / float64(r.config.Height)
}

// Draw renders items, coarsest level first. Each finer level is drawn over
// the previous ones with a fresh depth buffer.
func (r *Renderer) Draw(items []landscape.DrawItem, f Frame) {
	r.frame++
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	gl.UseProgram(r.prog.id)
	gl.UniformMatrix4fv(r.prog.projection, 1, false, f.Projection.Ptr())
	gl.UniformMatrix4fv(r.prog.view, 1, false, f.View.Ptr())
	gl.Uniform1i(r.prog.texture, 0)
	gl.ActiveTexture(gl.TEXTURE0)

	if f.Mode == landscape.Wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
		defer gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}

	level := -1
	for _, it := range items {
		if it.Key.Level != level {
			if level >= 0 {
				gl.Clear(gl.DEPTH_BUFFER_BIT)
			}
			level = it.Key.Level
		}

		m := r.meshFor(it, f)
		off := m.origin.Sub(f.Eye)
		gl.Uniform3f(r.prog.offset, float32(off.X), float32(off.Y), float32(off.Z))

		if f.Mode == landscape.Textured && it.Texture != 0 {
			gl.Uniform1i(r.prog.textured, 1)
			gl.BindTexture(gl.TEXTURE_2D, uint32(it.Texture))
		} else {
			gl.Uniform1i(r.prog.textured, 0)
			c := levelColor(it.Key.Level)
			gl.Uniform4f(r.prog.color, c[0], c[1], c[2], 1)
		}

		gl.BindVertexArray(m.vao)
		gl.DrawElements(gl.TRIANGLES, m.count, gl.UNSIGNED_INT, nil)
	}
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	r.evict()
}

// meshFor returns the cached mesh for the item, rebuilding it when the
// elevation or scale changed.
func (r *Renderer) meshFor(it landscape.DrawItem, f Frame) *gpuMesh {
	m, ok := r.meshes[it.Key]
	if ok && (m.elevation != it.Elevation || m.scale != f.HeightScale) {
		m.release()
		ok = false
	}
	if !ok {
		built := mesh.Build(it.Key, f.UnitDD, it.Elevation, f.HeightScale, r.config.Segments)
		m = upload(built)
		m.elevation = it.Elevation
		m.scale = f.HeightScale
		r.meshes[it.Key] = m
	}
	m.lastFrame = r.frame
	return m
}

func (r *Renderer) evict() {
	for k, m := range r.meshes {
		if r.frame-m.lastFrame > uint64(r.config.MaxIdle) {
			m.release()
			delete(r.meshes, k)
		}
	}
}

func upload(tm mesh.Mesh) *gpuMesh {
	m := &gpuMesh{origin: tm.Origin, count: int32(len(tm.Indices))}

	gl.GenVertexArrays(1, &m.vao)
	gl.BindVertexArray(m.vao)

	gl.GenBuffers(1, &m.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(tm.Vertices)*4, unsafe.Pointer(&tm.Vertices[0]), gl.STATIC_DRAW)

	gl.GenBuffers(1, &m.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(tm.Indices)*4, unsafe.Pointer(&tm.Indices[0]), gl.STATIC_DRAW)

	// Position attribute (location = 0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, mesh.Stride*4, nil)
	gl.EnableVertexAttribArray(0)

	// UV attribute (location = 1)
	gl.VertexAttribPointer(1, 2, gl.FLOAT, false, mesh.Stride*4, unsafe.Pointer(uintptr(3*4)))
	gl.EnableVertexAttribArray(1)

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	return m
}

func (m *gpuMesh) release() {
	gl.DeleteVertexArrays(1, &m.vao)
	gl.DeleteBuffers(1, &m.vbo)
	gl.DeleteBuffers(1, &m.ebo)
}

var palette = [...][3]float32{
	{0.35, 0.55, 0.80},
	{0.40, 0.70, 0.45},
	{0.80, 0.70, 0.35},
	{0.80, 0.45, 0.35},
	{0.65, 0.45, 0.75},
}

func levelColor(level int) [3]float32 {
	return palette[level%len(palette)]
}

// ReadPixels returns the current framebuffer as bottom-up RGBA rows.
func (r *Renderer) ReadPixels() ([]byte, int, int) {
	w, h := r.config.Width, r.config.Height
	pixels := make([]byte, w*h*4)
	if len(pixels) == 0 {
		return pixels, w, h
	}
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
	return pixels, w, h
}
