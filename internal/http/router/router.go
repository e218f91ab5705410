package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notifications.app/engine/internal/http/handler"
	"notifications.app/engine/internal/http/middleware"
	"notifications.app/engine/internal/service"
)

type RouterConfig struct {
	AdminAPIKey string
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := router.Group("/internal/v1")
	{
		connectorHandler := handler.NewConnectorHandler(services.DeliveryStatus(), services.Admin())
		ConnectorRouter(internal.Group("/connector"), connectorHandler)

		adminHandler := handler.NewAdminHandler(services.Admin())
		AdminRouter(internal.Group("/aggregations", middleware.RequireAdminKey(cfg.AdminAPIKey)), adminHandler)
	}
}

func ConnectorRouter(router *gin.RouterGroup, h *handler.ConnectorHandler) {
	router.POST("/status", h.Status)
	router.GET("/payloads/:id", h.Payload)
}

func AdminRouter(router *gin.RouterGroup, h *handler.AdminHandler) {
	router.DELETE("", h.PurgeAggregations)
}
