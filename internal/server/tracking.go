package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func parseClientID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id <= 0 {
		AbortWithError(c, newValidationError("id", "invalid", "invalid client id"))
		return 0, false
	}
	return id, true
}

func (s *Server) ListBlockStates(c *gin.Context) {
	states, err := s.engine.States(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": states})
}

func (s *Server) EvaluateClient(c *gin.Context) {
	clientID, ok := parseClientID(c)
	if !ok {
		return
	}
	eval, err := s.engine.EvaluateClient(c.Request.Context(), clientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": eval})
}

type autoBlockRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) SetClientAutoBlock(c *gin.Context) {
	clientID, ok := parseClientID(c)
	if !ok {
		return
	}
	var req autoBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Enabled == nil {
		AbortWithError(c, newValidationError("enabled", "required", "enabled is required"))
		return
	}
	state, err := s.engine.SetAutoBlock(c.Request.Context(), clientID, *req.Enabled)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": state})
}

type mappingRequest struct {
	TraccarUserID int64 `json:"traccar_user_id"`
}

func (s *Server) MapClient(c *gin.Context) {
	clientID, ok := parseClientID(c)
	if !ok {
		return
	}
	var req mappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.TraccarUserID <= 0 {
		AbortWithError(c, newValidationError("traccar_user_id", "required", "traccar_user_id is required"))
		return
	}
	state, err := s.engine.MapManually(c.Request.Context(), clientID, req.TraccarUserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": state})
}

type accessRequest struct {
	Blocked *bool  `json:"blocked"`
	Reason  string `json:"reason"`
}

func (s *Server) SetClientAccess(c *gin.Context) {
	clientID, ok := parseClientID(c)
	if !ok {
		return
	}
	var req accessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Blocked == nil {
		AbortWithError(c, newValidationError("blocked", "required", "blocked is required"))
		return
	}
	state, err := s.engine.SetAccess(c.Request.Context(), clientID, *req.Blocked, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": state})
}
