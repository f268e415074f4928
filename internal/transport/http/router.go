package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/astro-web3/superset-guest-relay/internal/config"
	"github.com/astro-web3/superset-guest-relay/internal/infra/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	guestTokenPath = "/api/guest-token"
	corsMaxAge     = 12 * time.Hour
)

// RPCRoute is an http.Handler served at a fixed procedure path.
type RPCRoute struct {
	Path    string
	Handler http.Handler
}

// NewRouter wires the HTTP surface. limiter may be nil to disable rate limiting.
func NewRouter(handler *Handler, cfg *config.Config, limiter ratelimit.Limiter, rpcRoutes ...RPCRoute) (*gin.Engine, error) {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	router.Use(gin.Recovery())
	if len(cfg.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Connect-Protocol-Version"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           corsMaxAge,
		}))
	}
	if cfg.Observability.TraceEnabled {
		router.Use(otelgin.Middleware(serviceName))
	}
	router.Use(loggingMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	if cfg.Observability.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	guestToken := []gin.HandlerFunc{handler.IssueGuestToken}
	if limiter != nil {
		guestToken = append([]gin.HandlerFunc{rateLimitMiddleware(limiter)}, guestToken...)
	}
	router.POST(guestTokenPath, guestToken...)

	for _, route := range rpcRoutes {
		router.POST(route.Path, gin.WrapH(route.Handler))
	}

	return router, nil
}
