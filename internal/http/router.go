// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, rate limiting and authentication.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/course-platform-backend/docs"
	"github.com/tbourn/course-platform-backend/internal/config"
	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/http/handlers"
	"github.com/tbourn/course-platform-backend/internal/http/middleware"
	"github.com/tbourn/course-platform-backend/internal/idempotency"
	"github.com/tbourn/course-platform-backend/internal/mercadopago"
	"github.com/tbourn/course-platform-backend/internal/services"
	"github.com/tbourn/course-platform-backend/internal/storage"
)

const (
	// defaultBodyLimit caps every request except video uploads.
	defaultBodyLimit = 1 << 20

	uploadPath = "/videos/upload"
)

// VideoHost is the video provider as used by the catalog and the access gate.
type VideoHost interface {
	services.VideoProvider
	services.SecureURLProvider
}

// Deps are the process-level resources the router builds services from.
type Deps struct {
	DB        *gorm.DB
	Cache     idempotency.Cache
	Payments  services.PaymentFetcher
	VideoHost VideoHost
	Archiver  storage.Archiver
	Tasks     handlers.TaskRunner
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (uploads carry their own)
//  6. gzip
//  7. Metrics
//  8. Rate limiter (per IP; health and metrics exempt)
//  9. CORS and Security headers
//
// Authentication runs per route group.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) error {
	if err := handlers.RegisterValidators(); err != nil {
		return err
	}
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(defaultBodyLimit, joinPath(cfg.APIBasePath, uploadPath)))

	// 6) Compression; the Prometheus handler negotiates its own. The gzip
	// writer hides the connection, so uploads could not lift their deadlines.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/metrics",
		joinPath(cfg.APIBasePath, uploadPath),
	})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
		Skip("/health", "/metrics")
	r.Use(rl.Handler())

	// 9) CORS posture (allow all if none configured)
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Signature", "X-Hook-Signature"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		corsCfg.AllowAllOrigins = true
	} else {
		// Browser clients send the access_token cookie.
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auditLog := services.NewAuditService(deps.DB)
	h := handlers.New(buildServices(deps, cfg, auditLog), handlers.Options{
		UploadDir:      cfg.Upload.Dir,
		UploadMaxBytes: cfg.Upload.MaxBytes,
		SecureCookies:  cfg.IsProduction(),
	})

	// Payment webhooks live outside the versioned API.
	r.POST("/webhooks/mercadopago", h.MercadoPagoWebhook)
	r.POST("/webhook", h.LegacyWebhook)
	r.POST("/webhooks/mercadopago/health", h.WebhookHealth)

	secret := cfg.Auth.JWTSecret
	authed := middleware.Authenticate(secret, true)
	optional := middleware.Authenticate(secret, false)
	adminOnly := middleware.RequireRoles(domain.RoleAdmin, domain.RoleSubadmin)
	noStore := middleware.NoStore()
	audit := func(action, entity string) gin.HandlerFunc {
		return middleware.Audit(auditLog, action, entity)
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Auth
		api.POST("/auth/login", noStore, h.Login)
		api.POST("/auth/logout", noStore, h.Logout)
		api.GET("/auth/me", noStore, authed, h.Me)

		// Categories
		api.GET("/categories", h.ListCategories)
		api.GET("/categories/all", authed, adminOnly, h.ListAllCategories)
		api.GET("/categories/:id", h.GetCategory)
		api.POST("/categories", authed, adminOnly, audit(middleware.AuditCreate, domain.AuditEntityCategory), h.CreateCategory)
		api.PATCH("/categories/:id", authed, adminOnly, audit(middleware.AuditUpdate, domain.AuditEntityCategory), h.UpdateCategory)
		api.DELETE("/categories/:id", authed, middleware.RequireRoles(domain.RoleAdmin), audit(middleware.AuditDelete, domain.AuditEntityCategory), h.DeleteCategory)

		// Videos
		api.GET("/videos", optional, h.ListVideos)
		api.GET("/videos/:id", optional, h.GetVideo)
		api.GET("/videos/:id/stream", noStore, optional, h.StreamVideo)
		api.GET("/videos/:id/progress", authed, h.GetProgress)
		api.POST("/videos/:id/progress", authed, h.UpdateProgress)
		api.POST("/videos", authed, adminOnly, audit(middleware.AuditCreate, domain.AuditEntityVideo), h.CreateVideo)
		api.POST(uploadPath, authed, adminOnly, audit(middleware.AuditCreate, domain.AuditEntityVideo), h.UploadVideo)
		api.PATCH("/videos/:id", authed, adminOnly, audit(middleware.AuditUpdate, domain.AuditEntityVideo), h.UpdateVideo)
		api.DELETE("/videos/:id", authed, adminOnly, audit(middleware.AuditDelete, domain.AuditEntityVideo), h.DeleteVideo)
		api.GET("/videos/:id/upload-status", authed, adminOnly, h.UploadStatus)

		// Cart
		cart := api.Group("/cart", noStore, authed)
		cart.GET("", h.GetCart)
		cart.POST("/add", h.AddToCart)
		cart.DELETE("/items/:itemId", h.RemoveCartItem)
		cart.DELETE("", h.ClearCart)
		cart.GET("/summary", h.CartSummary)

		// Entitlements
		api.GET("/me/entitlements", authed, h.MyEntitlements)
		adm := api.Group("/admin", authed, adminOnly)
		adm.POST("/users/:id/entitlements", audit(middleware.AuditCreate, domain.AuditEntityEntitlement), h.GrantEntitlement)
		adm.DELETE("/users/:id/entitlements/:categoryId", audit(middleware.AuditDelete, domain.AuditEntityEntitlement), h.RevokeEntitlement)
		adm.POST("/entitlements/sweep", h.RunSweep)
		adm.GET("/entitlements/stats", h.EntitlementStats)
		adm.GET("/audit-logs", noStore, h.ListAuditLogs)

		// In-person class polls
		polls := api.Group("/presenciales/polls", authed)
		polls.GET("", h.ListPolls)
		polls.GET("/:id", h.GetPoll)
		polls.POST("/:id/vote", h.VotePoll)
		polls.POST("", adminOnly, audit(middleware.AuditCreate, domain.AuditEntityPoll), h.CreatePoll)
		polls.PUT("/:id", adminOnly, audit(middleware.AuditUpdate, domain.AuditEntityPoll), h.UpdatePoll)
		polls.PATCH("/:id/close", adminOnly, audit(middleware.AuditUpdate, domain.AuditEntityPoll), h.ClosePoll)
		polls.GET("/:id/stats", adminOnly, h.PollStats)
		polls.GET("/:id/votes", adminOnly, h.PollVotes)
	}
	return nil
}

// buildServices wires the service graph from deps.
func buildServices(deps Deps, cfg config.Config, audit *services.AuditService) handlers.Services {
	db := deps.DB
	carts := services.NewCartService(db)
	grants := services.NewGrantService(db, cfg.EntitlementDuration, carts)

	return handlers.Services{
		Videos:        services.NewVideoService(db, deps.VideoHost, deps.Archiver, cfg.Vimeo.PollInterval, cfg.Vimeo.PollAttempts),
		Access:        services.NewAccessService(db, deps.VideoHost, deps.Tasks),
		Carts:         carts,
		Entitlements:  grants,
		Sweeps:        services.NewSweepService(db),
		Polls:         services.NewPollService(db),
		Auth:          services.NewAuthService(db, cfg.Auth.JWTSecret, cfg.Auth.AccessTTL),
		Categories:    services.NewCategoryService(db),
		Audit:         audit,
		Notifications: services.NewNotificationService(deps.Payments, grants, deps.Cache),
		Verifier: mercadopago.Verifier{
			Secret:        cfg.MercadoPago.WebhookSecret,
			AllowUnsigned: cfg.MercadoPago.AllowUnsigned && !cfg.IsProduction(),
		},
		Tasks: deps.Tasks,
	}
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader. Paths in skip are left to their
// handlers. Requests exceeding the cap cause downstream body reads to error.
func limitBody(maxBytes int64, skip ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range skip {
			if c.Request.URL.Path == p {
				c.Next()
				return
			}
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(prefix, p string) string {
	return strings.TrimSuffix(prefix, "/") + p
}
