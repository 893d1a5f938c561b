// Package frame defines the encoded frames fanned out to clients.
package frame

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amoylab/castwall/internal/common/cnst"
)

// StreamKey identifies one feed inside a client's queue set
type StreamKey string

// TiledKey is the key of the composed tiled feed
const TiledKey StreamKey = "tiled"

const windowPrefix = "window:"

// WindowKey returns the key of the feed for window slot index
func WindowKey(index int) StreamKey {
	return StreamKey(windowPrefix + strconv.Itoa(index))
}

// ParseStreamKey validates a key and reports whether it addresses a window
func ParseStreamKey(s string) (StreamKey, error) {
	if s == string(TiledKey) {
		return TiledKey, nil
	}
	if idx, ok := strings.CutPrefix(s, windowPrefix); ok {
		n, err := strconv.Atoi(idx)
		if err == nil && n >= 0 {
			return WindowKey(n), nil
		}
	}
	return "", fmt.Errorf("%w: %q", cnst.ErrInvalidStreamKey, s)
}

// WindowIndex returns the slot index of a window key
func (k StreamKey) WindowIndex() (int, bool) {
	idx, ok := strings.CutPrefix(string(k), windowPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// IsTiled reports whether k is the tiled feed
func (k StreamKey) IsTiled() bool { return k == TiledKey }

// Kind is the metric label of a key: "tiled" or "window"
func (k StreamKey) Kind() string {
	if k.IsTiled() {
		return "tiled"
	}
	return "window"
}

// Frame is an encoded JPEG produced once per tick per stream key.
// It is shared by reference between queues and must not be modified.
type Frame struct {
	Key        StreamKey
	Seq        uint64
	CapturedAt time.Time
	Data       []byte
}

// Size returns the encoded size in bytes
func (f *Frame) Size() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}
