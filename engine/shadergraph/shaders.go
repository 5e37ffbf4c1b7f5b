package shadergraph

import "github.com/spaghettifunk/prism/engine/renderer/shader"

// One triangle covering the viewport; UV spans [0, 1] inside it.
const fullscreenWGSL = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> VertexOutput {
    var vertices = array<vec2<f32>, 3>(
        vec2<f32>(-1.0, -1.0),
        vec2<f32>(-1.0, 4.0),
        vec2<f32>(4.0, -1.0),
    );
    let v = vertices[index];
    var out: VertexOutput;
    out.position = vec4<f32>(v, 0.0, 1.0);
    out.uv = v * 0.5 + vec2<f32>(0.5);
    return out;
}
`

func FullscreenVertexShader() shader.Source {
	return shader.Source{Name: "fullscreen.vert.wgsl", Language: shader.LanguageWGSL, Code: []byte(fullscreenWGSL)}
}
