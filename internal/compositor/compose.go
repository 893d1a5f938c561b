// Package compositor lays captured windows out on the tiled canvas.
package compositor

import (
	"image"
	"image/color"

	"github.com/amoylab/castwall/internal/common/config"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	maxColumns = 3
	fillRatio  = 0.9

	// EmptyLabel is drawn on the canvas when there is nothing to show
	EmptyLabel = "No application windows"
)

// Compositor builds the tiled view of a snapshot
type Compositor struct {
	tileWidth  int
	tileHeight int
	maxWidth   int
	scaler     draw.Scaler
}

// New creates a compositor from cfg
func New(cfg config.CompositorConfig) *Compositor {
	c := &Compositor{
		tileWidth:  cfg.TileWidth,
		tileHeight: cfg.TileHeight,
		maxWidth:   cfg.MaxWidth,
		scaler:     draw.ApproxBiLinear,
	}
	if c.tileWidth <= 0 {
		c.tileWidth = 400
	}
	if c.tileHeight <= 0 {
		c.tileHeight = 300
	}
	if c.maxWidth <= 0 {
		c.maxWidth = 1920
	}
	return c
}

// TileSize returns the size of one grid cell
func (c *Compositor) TileSize() (int, int) { return c.tileWidth, c.tileHeight }

// Grid returns the column and row count for n windows
func (c *Compositor) Grid(n int) (cols, rows int) {
	if n <= 0 {
		return 1, 1
	}
	cols = min(maxColumns, max(1, c.maxWidth/c.tileWidth))
	rows = (n + cols - 1) / cols
	return cols, rows
}

// Compose draws windows row-major onto a black canvas, each scaled to 90%
// of its cell and centered. With no windows the canvas is a single labelled
// placeholder tile.
func (c *Compositor) Compose(windows []image.Image) *image.RGBA {
	if len(windows) == 0 {
		return Placeholder(c.tileWidth, c.tileHeight, image.Pt(50, 150), EmptyLabel)
	}

	cols, rows := c.Grid(len(windows))
	canvas := blank(cols*c.tileWidth, rows*c.tileHeight)

	for i, win := range windows {
		if win == nil {
			continue
		}
		src := win.Bounds()
		w, h := src.Dx(), src.Dy()
		if w <= 0 || h <= 0 {
			continue
		}

		scale := min(float64(c.tileWidth)/float64(w), float64(c.tileHeight)/float64(h)) * fillRatio
		nw := max(1, int(float64(w)*scale))
		nh := max(1, int(float64(h)*scale))

		x := (i%cols)*c.tileWidth + (c.tileWidth-nw)/2
		y := (i/cols)*c.tileHeight + (c.tileHeight-nh)/2
		c.scaler.Scale(canvas, image.Rect(x, y, x+nw, y+nh), win, src, draw.Src, nil)
	}
	return canvas
}

// Placeholder returns a black w×h image with lines of white text, the
// first baseline at origin and following lines spaced by 40px.
func Placeholder(w, h int, origin image.Point, lines ...string) *image.RGBA {
	img := blank(w, h)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		d.Dot = fixed.P(origin.X, origin.Y+i*40)
		d.DrawString(line)
	}
	return img
}

func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}
