package router

import (
	"net/http"

	"github.com/cuongbtq/paid-agent/internal/agent/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, limiter *RateLimiter) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "agent-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	api := r.Group("/")
	if limiter != nil {
		api.Use(RateLimitMiddleware(limiter))
	}
	{
		api.GET("/availability", jobHandler.Availability)
		api.GET("/input_schema", jobHandler.InputSchema)
		api.POST("/start_job", jobHandler.StartJob)
		api.GET("/status", jobHandler.Status)
	}

	return r
}
