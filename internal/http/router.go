// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/tbourn/retail-assistant/docs" // registers the OpenAPI document
	"github.com/tbourn/retail-assistant/internal/config"
	"github.com/tbourn/retail-assistant/internal/http/handlers"
	"github.com/tbourn/retail-assistant/internal/http/middleware"
	"github.com/tbourn/retail-assistant/internal/ratelimit"
)

// readyTimeout bounds the readiness probe behind /health.
const readyTimeout = 2 * time.Second

// Deps are the collaborators the routes need.
type Deps struct {
	Agent   handlers.Agent
	Sweeper handlers.Sweeper

	// Limiter backs both the per-identity and the per-session windows.
	Limiter *ratelimit.FixedWindow

	// Ready, when set, is probed by /health (e.g. a database ping).
	Ready func(ctx context.Context) error
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers, then gzip
//
// The API group adds the auth gate and the per-identity rate limit; the
// per-session limit is applied by the agent handler once the body is parsed.
func RegisterRoutes(r *gin.Engine, cfg config.Config, d Deps) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderAPIKey},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(cfg.MaxBodyBytes))
	r.Use(middleware.Metrics())
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(d.Ready))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	limiter := d.Limiter
	if limiter == nil {
		limiter = ratelimit.New()
	}
	var opts []handlers.Option
	if cfg.Rate.SessionLimit > 0 {
		opts = append(opts, handlers.WithSessionLimit(limiter, cfg.Rate.SessionLimit, cfg.Rate.Window))
	}
	h := handlers.New(d.Agent, d.Sweeper, opts...)

	api := r.Group("")
	api.Use(middleware.AuthGate(middleware.AuthOptions{
		Required:       cfg.Auth.Required,
		APIKeys:        cfg.Auth.APIKeys,
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}))
	if cfg.Rate.AgentLimit > 0 {
		api.Use(middleware.RateLimit(limiter, cfg.Rate.AgentLimit, cfg.Rate.Window, middleware.KeyByIdentityOrIP()))
	}
	{
		api.POST("/agent", h.PostAgent)
		api.POST("/tradein/auto-submit", h.PostAutoSubmit)
	}
}

// corsMiddleware allows every origin when none are configured; otherwise
// only the listed origins, which the auth gate trusts as well.
func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderAPIKey, "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}

// health reports liveness, and readiness when a probe is configured.
func health(ready func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
			defer cancel()
			if err := ready(ctx); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("readiness probe failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// limitBody caps the request body for all endpoints. Reads past maxBytes
// fail with *http.MaxBytesError.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
