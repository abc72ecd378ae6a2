package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		api.POST("/scanner/start", handler.StartScanner)
		api.POST("/scanner/stop", handler.StopScanner)
		api.POST("/scanner/scan", handler.ScanNow)
		api.GET("/scanner/status", handler.GetScannerStatus)

		api.GET("/opportunities", handler.ListOpportunities)
		api.POST("/opportunities/:id/purchase", handler.PurchaseOpportunity)
		api.POST("/opportunities/:id/dismiss", handler.DismissOpportunity)

		api.GET("/watches", handler.ListWatchQueries)
		api.POST("/watches", handler.CreateWatchQuery)
		api.PUT("/watches/:id", handler.UpdateWatchQuery)
		api.DELETE("/watches/:id", handler.DeleteWatchQuery)

		api.GET("/inventory", handler.ListInventory)
		api.POST("/inventory/:id/listed", handler.MarkInventoryListed)
	}
}
