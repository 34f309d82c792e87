package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// productIDs parses the comma-separated ids query parameter.
func productIDs(c *gin.Context) []string {
	raw := strings.Split(c.Query("ids"), ",")
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Server) GetProducts(c *gin.Context) {
	ids := productIDs(c)
	if len(ids) == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	products, err := s.productsSvc.GetProducts(c.Request.Context(), ids)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": products})
}

func (s *Server) GetOfferings(c *gin.Context) {
	offerings, err := s.productsSvc.GetOfferings(c.Request.Context(), s.appUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": offerings})
}

func (s *Server) CheckIntroEligibility(c *gin.Context) {
	ids := productIDs(c)
	if len(ids) == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	eligibility, err := s.productsSvc.CheckIntroEligibility(c.Request.Context(), s.appUserID(c), ids)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": eligibility})
}
