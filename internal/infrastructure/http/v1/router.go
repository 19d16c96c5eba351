// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	appctx "possync/internal/core/context"
	"possync/internal/infrastructure/http/v1/handlers"
	"possync/internal/infrastructure/http/v1/middleware"
	"possync/pkg/logger"
)

// RouterConfig holds everything the terminal API serves.
type RouterConfig struct {
	// Terminal is the configured identity; request headers may override it.
	Terminal appctx.TerminalContext

	// Pool is used for health info only and may be nil.
	Pool *pgxpool.Pool

	Logger       *logger.Logger
	Connectivity handlers.Connectivity
	Checkout     handlers.SaleSubmitter
	Queue        interface {
		handlers.OfflineQueue
		handlers.QueueLength
	}
	Sequence handlers.SequenceSyncer
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery(cfg.Logger))
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Connectivity, cfg.Queue)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler()
	saleHandler := handlers.NewSaleHandler(base, cfg.Checkout)
	queueHandler := handlers.NewQueueHandler(base, cfg.Queue)
	sequenceHandler := handlers.NewSequenceHandler(base, cfg.Sequence)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Terminal(cfg.Terminal))
	{
		v1.POST("/sales", saleHandler.Submit)

		v1.GET("/offline-queue", queueHandler.List)
		v1.POST("/offline-queue/drain", queueHandler.Drain)

		v1.POST("/sequence/sync", sequenceHandler.Sync)
	}

	return router
}
