package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"LegalWise/internal/hub"
)

// MonitorHandler handles monitoring API endpoints.
type MonitorHandler interface {
	GetHubStats(c *gin.Context)
}

type monitorHandler struct {
	monitorService *hub.MonitorService
}

func NewMonitorHandler(monitorService *hub.MonitorService) MonitorHandler {
	return &monitorHandler{
		monitorService: monitorService,
	}
}

// GetHubStats returns connection and frame statistics for the push layer.
func (h *monitorHandler) GetHubStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stats": h.monitorService.GetStats()})
}
