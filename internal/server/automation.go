package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	automationdomain "github.com/smallbiznis/noty/internal/automation/domain"
)

// RunAutomation triggers one automation manually. Failures answer
// {success:false, error} with the underlying message.
func (s *Server) RunAutomation(c *gin.Context) {
	automationType, err := automationdomain.ParseAutomationType(c.Param("type"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	run, err := s.runner.Run(c.Request.Context(), automationType, automationdomain.TriggerManual)
	if errors.Is(err, automationdomain.ErrAlreadyRunning) {
		AbortWithError(c, err)
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
			"data":    run,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": run})
}

func (s *Server) ListAutomationRuns(c *gin.Context) {
	filter := automationdomain.ListFilter{}
	if raw := c.Query("type"); raw != "" {
		automationType, err := automationdomain.ParseAutomationType(raw)
		if err != nil {
			AbortWithError(c, newValidationError("type", "invalid", "unknown automation type"))
			return
		}
		filter.Type = automationType
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			AbortWithError(c, newValidationError("limit", "invalid", "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	runs, err := s.runner.Runs(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": runs})
}
