package handler

import (
	"net/http"
	"time"

	"FileShare/internal/dto"

	"github.com/gin-gonic/gin"
)

// Health handles GET /api/health.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}
