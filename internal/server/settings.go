package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) GetSettings(c *gin.Context) {
	values, err := s.settings.All(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": values})
}

// UpdateSettings stores the given values atomically. Schedule changes are
// applied to the running scheduler right away.
func (s *Server) UpdateSettings(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil || len(req) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if err := s.settings.SetMany(ctx, req); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.scheduler != nil && touchesSchedule(req) {
		if err := s.scheduler.Reload(ctx); err != nil {
			s.log.Warn("failed to reload schedules", zap.Error(err))
		}
	}

	values, err := s.settings.All(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": values})
}

func touchesSchedule(values map[string]string) bool {
	for key := range values {
		if strings.HasPrefix(strings.TrimSpace(key), "schedule.") {
			return true
		}
	}
	return false
}
