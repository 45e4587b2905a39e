package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"invoicing-backend/internal/identity"
	"invoicing-backend/internal/pipeline"
	"invoicing-backend/internal/services/health"
	"invoicing-backend/internal/shared/auth"
	"invoicing-backend/internal/shared/config"
	"invoicing-backend/internal/shared/metrics"
	"invoicing-backend/internal/shared/server/middleware"
	"invoicing-backend/internal/shared/server/respond"
	localstore "invoicing-backend/internal/shared/storage/object/local"
)

const serviceName = "invoicing-backend"

// sendRule bounds outbound email per tenant.
var sendRule = middleware.RateLimitRule{Rate: 1, Burst: 10}

// RouterDeps carries the handlers mounted by NewRouter. Nil handlers are
// skipped.
type RouterDeps struct {
	Config    config.Config
	Signer    *auth.Signer
	Health    *health.Service
	Documents *pipeline.Handler
	Connector *identity.Connector
	Artifacts *localstore.Store
	Limiter   *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		otelgin.Middleware(serviceName),
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler(deps.Health))
	api.GET("/metrics", metrics.Handler())
	if deps.Artifacts != nil {
		deps.Artifacts.RegisterRoutes(api)
	}

	authed := api.Group("", middleware.Auth(deps.Signer))
	if deps.Connector != nil {
		deps.Connector.RegisterRoutes(authed, api)
	}
	if deps.Documents != nil {
		tenant := authed.Group("/tenants/:slug", middleware.RequireTenant("slug"))
		deps.Documents.RegisterRoutes(tenant, middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    map[string]middleware.RateLimitRule{"SEND": sendRule},
			GroupFor: func(*gin.Context) string { return "SEND" },
			Limiter:  deps.Limiter,
		}))
	}

	return r
}

func healthHandler(svc *health.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks, ok := svc.Status(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, gin.H{"ok": ok, "checks": checks})
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
