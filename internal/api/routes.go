package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.Use(cors.Default())

	api := router.Group("/api")
	{
		api.GET("/properties", handler.GetProperties)
		api.GET("/properties/:id", handler.GetProperty)
		api.GET("/queues", handler.GetQueues)
		api.GET("/runs/last", handler.GetLastRun)
	}
}
