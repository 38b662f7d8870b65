package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/wembed/benchcoord/internal/handlers"
)

type RouterConfig struct {
	StatusHandler     *handlers.StatusHandler
	ProvenanceHandler *handlers.ProvenanceHandler
	ReconcileHandler  *handlers.ReconcileHandler
	GraphHandler      *handlers.GraphHandler
	CleanupHandler    *handlers.CleanupHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:3000",
			"http://localhost:8080",
		},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "X-Requested-With"},
	}))

	// Tracing. The handler spans are no-ops until InitOTel installs a provider.
	router.Use(otelgin.Middleware("benchcoord"))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/graphs", cfg.GraphHandler.Register)
		api.POST("/graphs/:id/finalize", cfg.GraphHandler.Finalize)
		api.GET("/graphs/:id/results", cfg.GraphHandler.Results)
		api.GET("/jobs/stats", cfg.StatusHandler.JobStats)
		api.GET("/jobs/running", cfg.StatusHandler.RunningJobs)
		api.GET("/provenance", cfg.ProvenanceHandler.List)
		api.POST("/reconcile", cfg.ReconcileHandler.Trigger)
		api.POST("/cleanup", cfg.CleanupHandler.Sweep)
	}

	return router
}
