package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type setAttributesRequest struct {
	AppUserID  string            `json:"app_user_id"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) SetAttributes(c *gin.Context) {
	var req setAttributesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	appUserID := strings.TrimSpace(req.AppUserID)
	if appUserID == "" {
		appUserID = s.cfg.DefaultAppUserID
	}

	if err := s.attributesSvc.SetAttributes(c.Request.Context(), appUserID, req.Attributes); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"accepted": len(req.Attributes)}})
}

type syncAttributesRequest struct {
	AppUserID string `json:"app_user_id"`
}

// SyncAttributes flushes unsynced attribute writes for every known app user,
// not only the caller.
func (s *Server) SyncAttributes(c *gin.Context) {
	var req syncAttributesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	appUserID := strings.TrimSpace(req.AppUserID)
	if appUserID == "" {
		appUserID = s.cfg.DefaultAppUserID
	}

	attempted, err := s.attributesSvc.SyncForAllUsers(c.Request.Context(), appUserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"users_attempted": attempted}})
}
