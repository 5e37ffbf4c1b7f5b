package overlay

import (
	"fmt"
	"path/filepath"

	"github.com/fzipp/bmfont"
	pmath "github.com/spaghettifunk/prism/engine/math"
)

// Glyph is one character cell of the font atlas, in atlas pixels.
type Glyph struct {
	X, Y          float32
	Width, Height float32
	XOffset       float32
	YOffset       float32
	XAdvance      float32
	Page          int
}

// Font lays out text with the metrics of an AngelCode bitmap font.
type Font struct {
	Face       string
	Size       int
	LineHeight float32
	Base       float32
	// AtlasWidth and AtlasHeight normalize glyph rectangles to UVs.
	AtlasWidth  float32
	AtlasHeight float32
	// Pages are the atlas image paths, indexed by page id.
	Pages []string

	glyphs  map[rune]Glyph
	kerning map[[2]rune]float32
	// advance is used for every rune when the font has no glyphs.
	advance float32
}

// LoadFont reads a .fnt descriptor. Page paths are resolved against the
// descriptor's directory; the atlas images themselves are not decoded.
func LoadFont(path string) (*Font, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load font %s: %w", path, err)
	}
	d := font.Descriptor

	f := &Font{
		Face:        d.Info.Face,
		Size:        int(d.Info.Size),
		LineHeight:  float32(d.Common.LineHeight),
		Base:        float32(d.Common.Base),
		AtlasWidth:  float32(d.Common.ScaleW),
		AtlasHeight: float32(d.Common.ScaleH),
		glyphs:      make(map[rune]Glyph, len(d.Chars)),
		kerning:     make(map[[2]rune]float32, len(d.Kerning)),
	}

	maxPage := -1
	for _, p := range d.Pages {
		if int(p.ID) > maxPage {
			maxPage = int(p.ID)
		}
	}
	f.Pages = make([]string, maxPage+1)
	dir := filepath.Dir(path)
	for _, p := range d.Pages {
		f.Pages[int(p.ID)] = filepath.Join(dir, p.File)
	}

	for _, g := range d.Chars {
		f.glyphs[rune(g.ID)] = Glyph{
			X:        float32(g.X),
			Y:        float32(g.Y),
			Width:    float32(g.Width),
			Height:   float32(g.Height),
			XOffset:  float32(g.XOffset),
			YOffset:  float32(g.YOffset),
			XAdvance: float32(g.XAdvance),
			Page:     int(g.Page),
		}
	}
	for p, k := range d.Kerning {
		f.kerning[[2]rune{rune(p.First), rune(p.Second)}] = float32(k.Amount)
	}
	return f, nil
}

// FixedFont is a glyphless font with a constant advance. Text laid out with
// it takes space but draws nothing, which is enough to run the UI headless.
func FixedFont(advance, lineHeight float32) *Font {
	return &Font{
		Face:       "fixed",
		LineHeight: lineHeight,
		Base:       lineHeight,
		advance:    advance,
	}
}

func (f *Font) Glyph(r rune) (Glyph, bool) {
	g, ok := f.glyphs[r]
	return g, ok
}

// Kerning is the extra advance between a and b.
func (f *Font) Kerning(a, b rune) float32 {
	return f.kerning[[2]rune{a, b}]
}

// Measure returns the advance width of text on one line.
func (f *Font) Measure(text string) float32 {
	var w float32
	var prev rune = -1
	for _, r := range text {
		w += f.advanceOf(prev, r)
		prev = r
	}
	return w
}

func (f *Font) advanceOf(prev, r rune) float32 {
	if len(f.glyphs) == 0 {
		return f.advance
	}
	g, ok := f.glyphs[r]
	if !ok {
		g, ok = f.glyphs['?']
		if !ok {
			return 0
		}
	}
	adv := g.XAdvance
	if prev >= 0 {
		adv += f.Kerning(prev, r)
	}
	return adv
}

// quad is a screen rectangle in pixels and its atlas UVs.
type quad struct {
	Min, Max     pmath.Vec2
	UVMin, UVMax pmath.Vec2
}

// layout emits one quad per visible glyph of text with its top left corner
// at (x, y).
func (f *Font) layout(text string, x, y float32, emit func(q quad)) {
	if len(f.glyphs) == 0 || f.AtlasWidth == 0 || f.AtlasHeight == 0 {
		return
	}
	var prev rune = -1
	for _, r := range text {
		if prev >= 0 {
			x += f.Kerning(prev, r)
		}
		g, ok := f.glyphs[r]
		if !ok {
			g, ok = f.glyphs['?']
		}
		if ok && g.Width > 0 && g.Height > 0 {
			x0 := x + g.XOffset
			y0 := y + g.YOffset
			emit(quad{
				Min:   pmath.NewVec2(x0, y0),
				Max:   pmath.NewVec2(x0+g.Width, y0+g.Height),
				UVMin: pmath.NewVec2(g.X/f.AtlasWidth, g.Y/f.AtlasHeight),
				UVMax: pmath.NewVec2((g.X+g.Width)/f.AtlasWidth, (g.Y+g.Height)/f.AtlasHeight),
			})
		}
		if ok {
			x += g.XAdvance
		}
		prev = r
	}
}
