package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync/atomic"

	"github.com/amoylab/castwall/internal/common/config"
	"github.com/amoylab/castwall/internal/compositor"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var palette = []color.RGBA{
	{R: 52, G: 101, B: 164, A: 255},
	{R: 115, G: 210, B: 22, A: 255},
	{R: 204, G: 0, B: 0, A: 255},
	{R: 245, G: 121, B: 0, A: 255},
	{R: 117, G: 80, B: 123, A: 255},
}

// SyntheticSource renders a fixed number of windows with a moving bar
type SyntheticSource struct {
	windows int
	width   int
	height  int
	frames  atomic.Uint64
}

// NewSyntheticSource creates a synthetic source
func NewSyntheticSource(cfg config.SyntheticCaptureConfig) *SyntheticSource {
	return &SyntheticSource{windows: cfg.Windows, width: cfg.Width, height: cfg.Height}
}

func (s *SyntheticSource) Name() string { return string(TypeSynthetic) }

func (s *SyntheticSource) Capture(ctx context.Context) ([]Window, error) {
	n := s.frames.Add(1)
	out := make([]Window, 0, s.windows)
	for i := 0; i < s.windows; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		app := fmt.Sprintf("demo-%d", i)
		out = append(out, NewWindow(fmt.Sprintf("synthetic:%d", i), app, app, s.render(i, n)))
	}
	return out, nil
}

func (s *SyntheticSource) render(index int, n uint64) *image.RGBA {
	img := compositor.Placeholder(s.width, s.height, image.Point{})

	const inset = 20
	panel := image.Rect(inset, inset, s.width-inset, s.height-inset)
	draw.Draw(img, panel, image.NewUniform(palette[index%len(palette)]), image.Point{}, draw.Src)

	if span := panel.Dx() - 16; span > 0 {
		x := panel.Min.X + int(n*8%uint64(span))
		draw.Draw(img, image.Rect(x, panel.Min.Y, x+16, panel.Max.Y), image.NewUniform(color.White), image.Point{}, draw.Src)
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(panel.Min.X+10, panel.Min.Y+20),
	}
	d.DrawString(fmt.Sprintf("demo-%d frame %d", index, n))
	return img
}
