package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/techmailbox/shipmail/api/handlers"
	"github.com/techmailbox/shipmail/api/middleware"
	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/repository"
	"github.com/techmailbox/shipmail/internal/tracing"
	"github.com/techmailbox/shipmail/services/notify"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, session interfaces.IMAPSession, repos *repository.Repositories, notifier *notify.Service, apiKey string) {
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(session))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-SHIPMAIL-API-KEY",
		ValidAPIKey: apiKey,
	})

	v1 := r.Group("/v1")
	v1.Use(apiKeyMiddleware)
	{
		shipments := v1.Group("/shipments")
		{
			shipments.GET("", handlers.ListShipments(repos.ShipmentRepository))
			shipments.GET("/:delivery", handlers.GetShipment(repos.ShipmentRepository))
		}

		processConfigs := v1.Group("/process-configs")
		{
			processConfigs.GET("", handlers.ListProcessConfigs(repos.ProcessConfigRepository))
			processConfigs.POST("", handlers.CreateProcessConfig(repos.ProcessConfigRepository))
			processConfigs.PUT("/:id", handlers.UpdateProcessConfig(repos.ProcessConfigRepository))
			processConfigs.DELETE("/:id", handlers.DeleteProcessConfig(repos.ProcessConfigRepository))
		}

		v1.GET("/stream", handlers.Stream(notifier))
	}
}
