package cnst

import "errors"

var (
	// ErrClientNotFound is returned when a client id is not registered
	ErrClientNotFound = errors.New("client not found")
	// ErrWindowNotFound is returned when a window slot was never populated
	ErrWindowNotFound = errors.New("window not found")
	// ErrNoData is returned when a queue was released before a frame arrived
	ErrNoData = errors.New("no data available")
	// ErrInvalidStreamKey is returned for stream keys that cannot be parsed
	ErrInvalidStreamKey = errors.New("invalid stream key")
	// ErrUnknownCaptureType is returned for unsupported capture sources
	ErrUnknownCaptureType = errors.New("unknown capture type")
)
