// Package capture produces snapshots of application windows for the
// broadcast loop.
package capture

import (
	"context"
	"image"
)

// Window is one captured application window
type Window struct {
	ID     string
	Name   string
	App    string
	Image  image.Image
	Width  int
	Height int
}

// NewWindow fills Width and Height from img
func NewWindow(id, name, app string, img image.Image) Window {
	b := img.Bounds()
	return Window{ID: id, Name: name, App: app, Image: img, Width: b.Dx(), Height: b.Dy()}
}

// Source is a concrete capture back end. Implementations may block, fail or
// panic; the Provider shields the broadcast loop from all three.
//
// Capture must return once ctx is done. The Provider abandons a call that
// outlives its timeout, so a source ignoring ctx leaks one goroutine per
// timed-out tick. CommandSource honours it through exec.CommandContext.
type Source interface {
	Name() string
	Capture(ctx context.Context) ([]Window, error)
}
