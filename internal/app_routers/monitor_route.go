package approuters

import (
	"github.com/gin-gonic/gin"

	"LegalWise/internal/configuration"
)

func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitorRoute := router.Group("/lw/api/monitor")
	{
		monitorRoute.GET("/stats", container.MonitorHandler.GetHubStats)
	}
}
