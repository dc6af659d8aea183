package transport

import (
	"github.com/gin-gonic/gin"
	"github.com/kwasham/numzy/internal/transport/middleware"
	"github.com/kwasham/numzy/pkg/metrics"
)

func InitRoutes(receiptHandler *ReceiptHandler) *gin.Engine {

	router := gin.New()

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(30))

	// API routes
	api := router.Group("/api/v1")
	{
		// Receipt routes
		receipts := api.Group("/receipts")
		{
			receipts.POST("", receiptHandler.UploadReceipt)
			receipts.GET("", receiptHandler.ListReceipts)
			receipts.GET("/:id", receiptHandler.GetReceipt)
			receipts.GET("/:id/status", receiptHandler.GetStatus)
			receipts.GET("/:id/file", receiptHandler.DownloadReceiptFile)
			receipts.POST("/:id/review", receiptHandler.ReviewReceipt)
			receipts.DELETE("/:id", receiptHandler.DeleteReceipt)
		}

		// Admin routes
		api.GET("/stats", receiptHandler.GetStats)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "receipt-processor-service",
		})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return router
}
