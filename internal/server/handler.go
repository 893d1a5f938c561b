package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/amoylab/castwall/internal/common/cnst"
	"github.com/amoylab/castwall/internal/frame"
	"github.com/amoylab/castwall/internal/queue"
	"github.com/amoylab/castwall/internal/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

// handleScreenshotTiled returns the next tiled frame of the caller
func (s *Server) handleScreenshotTiled(c *gin.Context) {
	f, err := s.nextFrame(c.Request.Context(), identity(c).ClientID, frame.TiledKey)
	if err != nil {
		s.frameError(c, err)
		return
	}
	s.sendFrame(c, f, fmt.Sprintf("screenshot_tiled_%d.jpg", s.registry.Now().Unix()))
}

// handleScreenshotWindow returns the next frame of one window slot
func (s *Server) handleScreenshotWindow(c *gin.Context) {
	idx, ok := s.windowIndex(c)
	if !ok {
		c.String(http.StatusNotFound, "Window not found")
		return
	}
	f, err := s.nextFrame(c.Request.Context(), identity(c).ClientID, frame.WindowKey(idx))
	if err != nil {
		s.frameError(c, err)
		return
	}
	s.sendFrame(c, f, fmt.Sprintf("screenshot_window_%d_%d.jpg", idx, s.registry.Now().Unix()))
}

// nextFrame blocks until the client's queue for key yields a frame
func (s *Server) nextFrame(ctx context.Context, clientID int64, key frame.StreamKey) (*frame.Frame, error) {
	set, ok := s.registry.Queues(clientID)
	if !ok {
		return nil, cnst.ErrNoData
	}
	q, ok := set.Queue(key)
	if !ok {
		if set.Closed() {
			return nil, cnst.ErrNoData
		}
		return nil, cnst.ErrWindowNotFound
	}
	f, err := q.Pop(ctx)
	if errors.Is(err, queue.ErrClosed) {
		return nil, cnst.ErrNoData
	}
	return f, err
}

func (s *Server) frameError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cnst.ErrWindowNotFound):
		c.String(http.StatusNotFound, "Window not found")
	case errors.Is(err, cnst.ErrNoData):
		c.String(http.StatusNotFound, "No data available")
	default:
		// the caller went away while waiting
		s.logger.Debug("screenshot request ended", zap.Error(err))
		c.Status(http.StatusServiceUnavailable)
	}
}

func (s *Server) sendFrame(c *gin.Context, f *frame.Frame, filename string) {
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, cnst.ContentTypeJPEG, f.Data)
}

// windowIndex parses the :index parameter; anything that cannot address
// a slot is rejected
func (s *Server) windowIndex(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 || idx >= s.registry.MaxWindows() {
		return 0, false
	}
	return idx, true
}

// handleClientStats reports client and session counts
func (s *Server) handleClientStats(c *gin.Context) {
	now := s.registry.Now()
	c.JSON(http.StatusOK, gin.H{
		"active_clients": s.registry.ActiveCount(now),
		"total_sessions": s.registry.SessionCount(),
		"server_time":    now.Format("2006-01-02T15:04:05.000000"),
	})
}

// handleWindowsCount reports the window count of the latest snapshot
func (s *Server) handleWindowsCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": s.windows.WindowsCount()})
}

type debugClient struct {
	ID         int64    `json:"id"`
	LastActive string   `json:"last_active"`
	AgeSeconds float64  `json:"age_seconds"`
	Active     bool     `json:"active"`
	Sessions   []string `json:"sessions"`
}

// handleDebug dumps the registry
func (s *Server) handleDebug(c *gin.Context) {
	infos := s.registry.Dump(s.registry.Now())
	clients := make([]debugClient, 0, len(infos))
	active := 0
	for _, info := range infos {
		sessions := make([]string, 0, len(info.Sessions))
		for _, sid := range info.Sessions {
			sessions = append(sessions, registry.AbbreviateSession(sid))
		}
		if info.Active {
			active++
		}
		clients = append(clients, debugClient{
			ID:         info.ID,
			LastActive: info.LastActive.Format("15:04:05"),
			AgeSeconds: math.Round(info.Age.Seconds()*10) / 10,
			Active:     info.Active,
			Sessions:   sessions,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"clients":         clients,
		"total_clients":   len(clients),
		"active_clients":  active,
		"cleanup_timeout": s.registry.Timeout().Seconds(),
	})
}

// handleHistory returns recent client lifecycle records
func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	records, err := s.history.History(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("failed to load client history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
