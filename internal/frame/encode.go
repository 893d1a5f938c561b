package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
)

// Encoder turns rasters into JPEG frames
type Encoder struct {
	quality int
	pool    sync.Pool
}

// NewEncoder creates an encoder with the given JPEG quality (1-100)
func NewEncoder(quality int) *Encoder {
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &Encoder{
		quality: quality,
		pool: sync.Pool{New: func() any {
			return new(bytes.Buffer)
		}},
	}
}

// Quality returns the configured JPEG quality
func (e *Encoder) Quality() int { return e.quality }

// Encode compresses img. The returned slice is owned by the caller.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("cannot encode empty image")
	}
	buf := e.pool.Get().(*bytes.Buffer)
	buf.Reset()
	defer e.pool.Put(buf)

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
