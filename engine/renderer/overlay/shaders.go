package overlay

import "github.com/spaghettifunk/prism/engine/renderer/shader"

// Positions arrive in clip space. Untextured vertices carry a negative UV and
// take their color as is; glyphs modulate alpha with the atlas coverage.
const vertexWGSL = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
    @location(1) color: vec4<f32>,
};

@vertex
fn vs_main(@location(0) pos: vec2<f32>, @location(1) uv: vec2<f32>, @location(2) color: vec4<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = vec4<f32>(pos, 0.0, 1.0);
    out.uv = uv;
    out.color = color;
    return out;
}
`

const fragmentWGSL = `
@group(0) @binding(0) var atlas: texture_2d<f32>;
@group(0) @binding(1) var atlas_sampler: sampler;

@fragment
fn fs_main(@location(0) uv: vec2<f32>, @location(1) color: vec4<f32>) -> @location(0) vec4<f32> {
    let coverage = textureSample(atlas, atlas_sampler, max(uv, vec2<f32>(0.0))).a;
    let alpha = select(color.a * coverage, color.a, uv.x < 0.0);
    return vec4<f32>(color.rgb, alpha);
}
`

func defaultVertexShader() shader.Source {
	return shader.Source{Name: "overlay.vert.wgsl", Language: shader.LanguageWGSL, Code: []byte(vertexWGSL)}
}

func defaultFragmentShader() shader.Source {
	return shader.Source{Name: "overlay.frag.wgsl", Language: shader.LanguageWGSL, Code: []byte(fragmentWGSL)}
}
