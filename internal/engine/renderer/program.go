package renderer

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
)

const tileVertexShader = `
#version 410 core

layout (location = 0) in vec3 aPos;
layout (location = 1) in vec2 aUV;

uniform mat4 uProjection;
uniform mat4 uView;
uniform vec3 uOffset;

out vec2 vUV;
out float vShade;

void main() {
	vec3 pos = aPos + uOffset;
	gl_Position = uProjection * uView * vec4(pos, 1.0);
	vUV = aUV;
	vShade = 0.85 + 0.15 * fract(aPos.y * 0.0001);
}
`

const tileFragmentShader = `
#version 410 core

in vec2 vUV;
in float vShade;

uniform sampler2D uTexture;
uniform bool uTextured;
uniform vec4 uColor;

out vec4 FragColor;

void main() {
	if (uTextured) {
		FragColor = texture(uTexture, vUV);
	} else {
		FragColor = vec4(uColor.rgb * vShade, uColor.a);
	}
}
`

// program is a linked shader program with the tile uniforms resolved.
type program struct {
	id         uint32
	projection int32
	view       int32
	offset     int32
	texture    int32
	textured   int32
	color      int32
}

func newTileProgram() (*program, error) {
	id, err := compileProgram(tileVertexShader, tileFragmentShader)
	if err != nil {
		return nil, err
	}
	return &program{
		id:         id,
		projection: uniform(id, "uProjection"),
		view:       uniform(id, "uView"),
		offset:     uniform(id, "uOffset"),
		texture:    uniform(id, "uTexture"),
		textured:   uniform(id, "uTextured"),
		color:      uniform(id, "uColor"),
	}, nil
}

func (p *program) delete() {
	if p.id != 0 {
		gl.DeleteProgram(p.id)
		p.id = 0
	}
}

// compileProgram compiles and links a vertex and fragment shader pair.
func compileProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	vert, err := compileShader(vertexSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex shader: %w", err)
	}
	defer gl.DeleteShader(vert)

	frag, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, fmt.Errorf("fragment shader: %w", err)
	}
	defer gl.DeleteShader(frag)

	id := gl.CreateProgram()
	gl.AttachShader(id, vert)
	gl.AttachShader(id, frag)
	gl.LinkProgram(id)

	var status int32
	gl.GetProgramiv(id, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(id, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(id, logLength, nil, gl.Str(log))
		gl.DeleteProgram(id)
		return 0, fmt.Errorf("link failed: %s", log)
	}
	return id, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)

	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile failed: %s", log)
	}
	return shader, nil
}

func uniform(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}
