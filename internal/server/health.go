package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Health reports liveness. With ?check=email it also verifies the SMTP
// transport.
func (s *Server) Health(c *gin.Context) {
	if c.Query("check") != "email" {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := s.mailer.Verify(ctx); err != nil {
		s.log.Warn("email transport health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "email": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "email": "ok"})
}
