package compositor

import (
	"image"
	"image/color"

	"github.com/amoylab/castwall/internal/common/config"

	"golang.org/x/image/draw"
)

// minTrimSide is the smallest side length an image must exceed to be trimmed
const minTrimSide = 10

// Trimmer crops captured windows to their content, dropping frames that are
// blank or carry no sizeable bright region.
type Trimmer struct {
	threshold     uint8
	minBrightness float64
	margin        int
	minRegion     int
}

// NewTrimmer creates a trimmer from cfg
func NewTrimmer(cfg config.TrimConfig) *Trimmer {
	return &Trimmer{
		threshold:     cfg.Threshold,
		minBrightness: cfg.MinBrightness,
		margin:        cfg.Margin,
		minRegion:     cfg.MinRegion,
	}
}

// Trim returns the crop of img around its largest 8-connected region
// brighter than the threshold, padded by the margin. ok is false when the
// window is unusable: too small, too dark on average, or without a region
// larger than the minimum on both sides.
func (t *Trimmer) Trim(img image.Image) (out *image.RGBA, ok bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= minTrimSide || h <= minTrimSide {
		return nil, false
	}

	lum := luminance(img)
	var sum uint64
	for _, v := range lum {
		sum += uint64(v)
	}
	if float64(sum)/float64(len(lum)) < t.minBrightness {
		return nil, false
	}

	box, found := t.largestRegion(lum, w, h)
	if !found || box.Dx() <= t.minRegion || box.Dy() <= t.minRegion {
		return nil, false
	}

	box = image.Rect(box.Min.X-t.margin, box.Min.Y-t.margin, box.Max.X+t.margin, box.Max.Y+t.margin).
		Intersect(image.Rect(0, 0, w, h)).
		Add(b.Min)

	out = image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Draw(out, out.Bounds(), img, box.Min, draw.Src)
	return out, true
}

// largestRegion labels 8-connected pixels above the threshold and returns
// the bounding box (relative to the image origin) of the largest component.
func (t *Trimmer) largestRegion(lum []uint8, w, h int) (image.Rectangle, bool) {
	visited := make([]bool, len(lum))
	stack := make([]int, 0, 1024)

	var (
		best     image.Rectangle
		bestArea int
	)
	for start, v := range lum {
		if visited[start] || v <= t.threshold {
			continue
		}
		visited[start] = true
		stack = append(stack[:0], start)

		area := 0
		minX, minY := w, h
		maxX, maxY := -1, -1
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++

			x, y := p%w, p/w
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if (dx == 0 && dy == 0) || nx < 0 || nx >= w {
						continue
					}
					n := ny*w + nx
					if !visited[n] && lum[n] > t.threshold {
						visited[n] = true
						stack = append(stack, n)
					}
				}
			}
		}

		if area > bestArea {
			bestArea = area
			best = image.Rect(minX, minY, maxX+1, maxY+1)
		}
	}
	return best, bestArea > 0
}

// luminance returns the row-major gray levels of img
func luminance(img image.Image) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < h; y++ {
			row := rgba.Pix[(b.Min.Y+y-rgba.Rect.Min.Y)*rgba.Stride:]
			for x := 0; x < w; x++ {
				i := (b.Min.X + x - rgba.Rect.Min.X) * 4
				r, g, bl := uint32(row[i]), uint32(row[i+1]), uint32(row[i+2])
				// same weights as color.GrayModel
				out[y*w+x] = uint8((19595*r + 38470*g + 7471*bl + 1<<15) >> 16)
			}
		}
		return out
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
		}
	}
	return out
}
