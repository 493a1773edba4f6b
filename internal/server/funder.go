package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListFunders(c *gin.Context) {
	funders, err := s.funderSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": funders})
}

func (s *Server) ListFunderRateCards(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	cards, err := s.funderSvc.ListRateCards(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cards})
}
