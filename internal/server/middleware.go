package server

import (
	"net/http"

	"github.com/amoylab/castwall/internal/common/cnst"
	"github.com/amoylab/castwall/internal/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// loggerMiddleware creates a logging middleware
func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.logger.Debug("incoming request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("remote_addr", c.Request.RemoteAddr),
		)

		c.Next()

		s.logger.Debug("outgoing response",
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("size", c.Writer.Size()),
		)
	}
}

// recoveryMiddleware creates a recovery middleware
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
				)
				if !c.Writer.Written() {
					c.JSON(http.StatusInternalServerError, gin.H{
						"error": "internal server error",
					})
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// identityMiddleware resolves the caller's client id from the session
// cookie, issuing a new cookie when a session is minted. A missing,
// tampered or expired cookie counts as no session.
func (s *Server) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sessionID string
		if token, err := c.Cookie(s.sessionCfg.CookieName); err == nil && token != "" {
			if sid, err := s.codec.Parse(token); err == nil {
				sessionID = sid
			} else {
				s.logger.Debug("ignoring invalid session cookie", zap.Error(err))
			}
		}

		ident := s.registry.Resolve(sessionID)
		if ident.NewSession {
			token, err := s.codec.Issue(ident.SessionID)
			if err != nil {
				s.logger.Error("failed to sign session cookie", zap.Error(err))
			} else {
				c.SetSameSite(http.SameSiteLaxMode)
				c.SetCookie(s.sessionCfg.CookieName, token, int(s.codec.MaxAge().Seconds()),
					"/", "", s.sessionCfg.Secure, true)
			}
		}
		if ident.NewClient {
			s.logger.Info("new client",
				zap.Int64("client_id", ident.ClientID),
				zap.String("session", registry.AbbreviateSession(ident.SessionID)))
		}

		c.Set(cnst.ContextKeyIdentity, ident)
		c.Next()
	}
}

func identity(c *gin.Context) registry.Identity {
	v, _ := c.Get(cnst.ContextKeyIdentity)
	ident, _ := v.(registry.Identity)
	return ident
}
