// Package api exposes the verification service over HTTP.
//
// The public surface is deliberately tiny: a rate-limited verification
// endpoint reachable from a QR scan, plus a small authenticated-elsewhere
// admin API for audit trails and the dashboard. Everything else about
// documents stays in the CLI.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/famproject/sigchain/internal/sigchain"
)

// Router wires the HTTP surface onto a verification Service.
type Router struct {
	engine  *gin.Engine
	handler *Handler
	limiter *RateLimiter
	logger  sigchain.Logger
}

// NewRouter creates a Router with routes registered. verifyPerMinute and
// verifyBurst bound anonymous traffic on the /verify endpoints per client IP.
func NewRouter(svc *sigchain.Service, logger sigchain.Logger, verifyPerMinute, verifyBurst int) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	r := &Router{
		engine:  engine,
		handler: NewHandler(svc, logger),
		limiter: NewRateLimiter(verifyPerMinute, verifyBurst),
		logger:  logger,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "sigchain"})
	})

	verify := r.engine.Group("/verify")
	verify.Use(r.limiter.Middleware())
	{
		verify.GET("/:token", r.handler.VerifyToken)
		verify.POST("/:token", r.handler.VerifyTokenWithDocument)
	}

	// Admin read model. Authentication fronts this group at the proxy; the
	// service itself holds no credentials.
	admin := r.engine.Group("/api")
	{
		admin.GET("/documents/:id/audit-trail", r.handler.AuditTrail)
		admin.GET("/documents/:id/chain", r.handler.VerifyChain)
		admin.GET("/dashboard", r.handler.Dashboard)
	}
}

// Engine returns the underlying gin engine, for tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Run starts the HTTP server on addr and blocks.
func (r *Router) Run(addr string) error {
	r.logger.Info("starting HTTP server", "addr", addr)
	return r.engine.Run(addr)
}
