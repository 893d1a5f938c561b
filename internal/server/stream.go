package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amoylab/castwall/internal/common/cnst"
	"github.com/amoylab/castwall/internal/frame"
	"github.com/amoylab/castwall/internal/queue"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// slotPollInterval is how often a window feed checks for its slot to appear
const slotPollInterval = 100 * time.Millisecond

// handleVideoFeedTiled streams the tiled view
func (s *Server) handleVideoFeedTiled(c *gin.Context) {
	s.stream(c, frame.TiledKey)
}

// handleVideoFeedWindow streams one window slot
func (s *Server) handleVideoFeedWindow(c *gin.Context) {
	idx, ok := s.windowIndex(c)
	if !ok {
		c.String(http.StatusNotFound, "Window not found")
		return
	}
	s.stream(c, frame.WindowKey(idx))
}

// stream writes every frame of key to the response as a multipart part
// until the caller disconnects, the server shuts down or the client's
// queues are released.
func (s *Server) stream(c *gin.Context, key frame.StreamKey) {
	clientID := identity(c).ClientID
	kind := key.Kind()
	s.metrics.StreamStart(kind)
	defer s.metrics.StreamDone(kind)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	c.Header("Content-Type", cnst.ContentTypeMultipart)
	c.Header("Cache-Control", "no-cache, no-store")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	logger := s.logger.With(zap.Int64("client_id", clientID), zap.String("stream", string(key)))
	logger.Debug("stream opened")
	defer logger.Debug("stream closed")

	for ctx.Err() == nil {
		// an open stream keeps its client alive
		if !s.registry.Touch(clientID) {
			return
		}
		set, ok := s.registry.Queues(clientID)
		if !ok {
			return
		}
		q, ok := set.Queue(key)
		if !ok {
			if set.Closed() {
				return
			}
			select {
			case <-ctx.Done():
			case <-time.After(slotPollInterval):
			}
			continue
		}

		f, err := s.pop(ctx, q)
		if errors.Is(err, queue.ErrClosed) {
			return
		}
		if err != nil {
			continue
		}
		if err := writePart(c.Writer, f.Data); err != nil {
			logger.Debug("failed to write frame", zap.Error(err))
			return
		}
		c.Writer.Flush()
	}
}

// pop waits at most readTimeout for the next frame
func (s *Server) pop(ctx context.Context, q *queue.Queue) (*frame.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	return q.Pop(ctx)
}

// writePart writes one multipart/x-mixed-replace part
func writePart(w io.Writer, data []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: %s\r\n\r\n", cnst.MultipartBoundary, cnst.ContentTypeJPEG); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
