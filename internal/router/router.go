// internal/router/router.go
package router

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/greenleaf/compliance-engine/internal/config"
	"github.com/greenleaf/compliance-engine/internal/handlers"
	"github.com/greenleaf/compliance-engine/internal/metrics"
	"github.com/greenleaf/compliance-engine/internal/middleware"
	"github.com/greenleaf/compliance-engine/internal/services"
	"github.com/greenleaf/compliance-engine/internal/utils"
)

const Version = "1.0.0"

// Services carries everything the HTTP layer needs, built once in main.
type Services struct {
	Eligibility *services.EligibilityService
	Classifier  *services.ClassifierService
	COA         *services.COAService
	Compliance  *services.ComplianceService
	Audit       *services.AuditService
	Storage     *services.StorageService

	RequestLog     middleware.RequestLogWriter
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	HealthChecks   []handlers.DependencyCheck
}

// Initialize builds the gin engine. ctx bounds the rate limiter's cleanup
// loop.
func Initialize(ctx context.Context, cfg *config.Config, svc Services) *gin.Engine {
	eligibilityHandler := handlers.NewEligibilityHandler(svc.Eligibility)
	complianceHandler := handlers.NewComplianceHandler(svc.Compliance, svc.Audit)
	classificationHandler := handlers.NewClassificationHandler(svc.Classifier)
	coaHandler := handlers.NewCOAHandler(svc.COA, svc.Storage, cfg.Compliance.MaxCOAUploadMB)
	healthHandler := handlers.NewHealthHandler(Version, svc.HealthChecks...)

	utils.SetJWTSecret(cfg.JWT.SecretKey)

	publicLimiter := middleware.PerMinute(cfg.Server.RateLimitPerMinute)
	go publicLimiter.Run(ctx)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))
	r.Use(middleware.RequestLogger(svc.Metrics))

	r.GET("/health", healthHandler.Health)
	if svc.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(svc.MetricsHandler))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/eligibility", publicLimiter.Middleware(), eligibilityHandler.CheckEligibility)

		compliance := v1.Group("/compliance")
		compliance.Use(middleware.AuthRequired(), middleware.AdminRequired())
		if svc.RequestLog != nil {
			compliance.Use(middleware.AuditLogMiddleware(svc.RequestLog))
		}
		{
			compliance.GET("/rules", complianceHandler.ListRules)
			compliance.POST("/rules", complianceHandler.CreateRule)
			compliance.PUT("/rules/:id", complianceHandler.UpdateRule)

			products := compliance.Group("/products/:id")
			{
				products.GET("/summary", complianceHandler.GetProductSummary)
				products.POST("/audit", complianceHandler.AuditProduct)
				products.POST("/assign", complianceHandler.AssignCategory)
				products.POST("/reveal", complianceHandler.RevealProduct)
				products.POST("/classify", classificationHandler.ClassifyProduct)
				products.POST("/coa", coaHandler.UploadCOA)
			}

			compliance.POST("/classify/bulk", classificationHandler.BulkClassify)
			compliance.POST("/audit/all", complianceHandler.AuditAll)
			compliance.GET("/audit/logs", complianceHandler.GetAuditLogs)
			compliance.PATCH("/audit/logs/:id/resolve", complianceHandler.ResolveViolation)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		utils.NotFoundResponse(c, "route")
	})

	return r
}
