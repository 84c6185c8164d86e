package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports ready once the database answers a ping.
func (s *Server) Readyz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: %w", ErrServiceUnavailable, err))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %w", ErrServiceUnavailable, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) ScoringConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scoring": s.holder.Get()})
}

type scoreRequest struct {
	StoreID string `json:"store_id"`
	Date    string `json:"date"`
}

// Score recomputes one store-day on demand.
func (s *Server) Score(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	storeID, err := snowflake.ParseString(strings.TrimSpace(req.StoreID))
	if err != nil || storeID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(req.Date))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.scoring.Score(c.Request.Context(), storeID, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": record})
}
