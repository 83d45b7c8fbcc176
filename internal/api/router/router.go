package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/queue-monitor/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "queue-monitor",
		})
	})

	eventHandler := handler.NewEventHandler(deps)
	pushHandler := handler.NewPushHandler(deps)
	workerHandler := handler.NewWorkerHandler(deps)

	v1 := r.Group("/api/v1")
	{
		// Lifecycle event hooks called synchronously by queue instances.
		// begin and error carry decisions back to the caller.
		events := v1.Group("/events")
		{
			events.POST("/push", eventHandler.RecordPush)
			events.POST("/exec/begin", eventHandler.BeginExec)
			events.POST("/exec/done", eventHandler.EndExec)
			events.POST("/exec/error", eventHandler.ExecError)
			events.POST("/worker/start", eventHandler.WorkerStart)
			events.POST("/worker/stop", eventHandler.WorkerStop)
		}

		// Dashboard query surface.
		pushes := v1.Group("/pushes")
		{
			pushes.GET("", pushHandler.SearchPushes)
			pushes.GET("/find", pushHandler.FindPush)
			pushes.GET("/:push_id", pushHandler.GetPush)
			pushes.POST("/:push_id/stop", pushHandler.StopPush)
		}

		stats := v1.Group("/stats")
		{
			stats.GET("/classes", pushHandler.GroupByClass)
			stats.GET("/senders", pushHandler.GroupBySender)
		}

		workers := v1.Group("/workers")
		{
			workers.GET("", workerHandler.ListWorkers)
			workers.POST("/:worker_id/stop", workerHandler.StopWorker)
		}
	}

	return r
}
