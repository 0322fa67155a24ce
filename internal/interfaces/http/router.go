package http

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/pcfp/internal/interfaces/http/handlers"
	"github.com/turtacn/pcfp/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware dependencies of the
// route tree. Nil handlers leave their routes unmounted.
type RouterConfig struct {
	FingerprintHandler *handlers.FingerprintHandler
	KeysHandler        *handlers.KeysHandler
	HealthHandler      *handlers.HealthHandler

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
	MetricsPath      string
	MaxBodySize      int64
	Logging          middleware.LoggingConfig
}

// NewRouter builds the gin engine serving probes, metrics and /api/v1.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	if cfg.Logging.SkipPaths == nil {
		cfg.Logging = middleware.DefaultLoggingConfig()
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.Logging))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(middleware.BodyLimit(cfg.MaxBodySize))

	if h := cfg.HealthHandler; h != nil {
		r.GET("/healthz", h.Liveness)
		r.GET("/readyz", h.Readiness)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	api := r.Group("/api/v1")
	registerFingerprintRoutes(api, cfg.FingerprintHandler)
	registerKeyRoutes(api, cfg.KeysHandler)
	return r
}

func registerFingerprintRoutes(r *gin.RouterGroup, h *handlers.FingerprintHandler) {
	if h == nil {
		return
	}
	fr := r.Group("/fingerprints")
	fr.GET("", h.List)
	fr.POST("", h.Compute)
	fr.POST("/batch", h.ComputeBatch)
	fr.POST("/search", h.Search)
	fr.POST("/explain", h.Explain)
	fr.GET("/:digest", h.Get)
	fr.DELETE("/:digest", h.Delete)
}

func registerKeyRoutes(r *gin.RouterGroup, h *handlers.KeysHandler) {
	if h == nil {
		return
	}
	kr := r.Group("/keys")
	kr.GET("", h.List)
	kr.GET("/sections", h.Sections)
	kr.GET("/:index", h.Get)
}
