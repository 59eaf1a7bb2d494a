// Package api implements the Public API surface (spec.md §6's HTTP
// endpoints table) as gin handlers, wiring together the catalog, fanout
// router, ledger, and transaction inspector built by the rest of the
// gateway, the way the teacher's internal/proxy package wires its own
// dependencies into gin.Context handlers.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/eternisai/multiai-gateway/internal/breaker"
	"github.com/eternisai/multiai-gateway/internal/catalog"
	"github.com/eternisai/multiai-gateway/internal/fanout"
	"github.com/eternisai/multiai-gateway/internal/inspect"
	"github.com/eternisai/multiai-gateway/internal/ledger"
	"github.com/eternisai/multiai-gateway/internal/logger"
	"github.com/eternisai/multiai-gateway/internal/upstream"
)

// Server holds every dependency the handlers need and exposes them as gin
// handler methods.
type Server struct {
	log         *logger.Logger
	catalog     *catalog.Catalog
	router      *fanout.Router
	breaker     *breaker.Breaker
	ledger      *ledger.Ledger
	inspector   *inspect.Inspector
	credentials *upstream.Credentials
}

// New constructs a Server. Every dependency is required except inspector,
// which may be nil to mean "inspection unavailable" (distinct from
// inspect.New(n, false), which is present but disabled).
func New(log *logger.Logger, cat *catalog.Catalog, router *fanout.Router, b *breaker.Breaker, l *ledger.Ledger, inspector *inspect.Inspector, creds *upstream.Credentials) *Server {
	return &Server{log: log, catalog: cat, router: router, breaker: b, ledger: l, inspector: inspector, credentials: creds}
}

// NewEngine builds a gin.Engine with every route registered and the
// teacher's permissive CORS middleware applied (this gateway serves a
// local desktop/browser client, not a multi-tenant SaaS API).
func (s *Server) NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))
	r.Use(corsMiddleware())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)

	v1 := r.Group("/v1")
	{
		v1.GET("/models", s.handleListModels)
		v1.GET("/models/grouped", s.handleListModelsGrouped)
		v1.POST("/chat/completions", s.handleChatCompletions)
		v1.GET("/inspect", s.handleExportInspect)
		v1.DELETE("/inspect", s.handleClearInspect)
	}

	settings := r.Group("/api/settings")
	{
		settings.GET("", s.handleGetSettings)
		settings.PUT("", s.handlePutSettings)
		settings.GET("/spending", s.handleGetSpending)
		settings.POST("/spending", s.handlePostSpending)
	}

	return r
}

func corsMiddleware() gin.HandlerFunc {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Authorization"},
	})
	return func(ctx *gin.Context) {
		c.HandlerFunc(ctx.Writer, ctx.Request)
		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if log == nil {
			return
		}
		log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
