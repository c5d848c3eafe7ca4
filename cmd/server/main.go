// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/greenleaf/compliance-engine/internal/config"
	"github.com/greenleaf/compliance-engine/internal/database"
	"github.com/greenleaf/compliance-engine/internal/docai"
	"github.com/greenleaf/compliance-engine/internal/handlers"
	"github.com/greenleaf/compliance-engine/internal/i18n"
	"github.com/greenleaf/compliance-engine/internal/llm"
	"github.com/greenleaf/compliance-engine/internal/metrics"
	"github.com/greenleaf/compliance-engine/internal/middleware"
	"github.com/greenleaf/compliance-engine/internal/router"
	"github.com/greenleaf/compliance-engine/internal/services"
	"github.com/greenleaf/compliance-engine/internal/store"
)

// catalogBackend is what the services and the request trail need from the
// selected store driver.
type catalogBackend interface {
	services.CatalogStore
	middleware.RequestLogWriter
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	configureLogging(cfg)

	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize i18n")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	var (
		catalog  catalogBackend
		zips     store.ZipResolver
		checks   []handlers.DependencyCheck
		db       *gorm.DB
		redisCli *redis.Client
	)

	switch cfg.Database.Driver {
	case "memory":
		memory := store.NewMemoryCatalog()
		catalog = memory
		zips = store.NewMemoryZipStore(database.SampleZipCodes()...)
		if _, err := database.SeedRules(ctx, memory); err != nil {
			logrus.WithError(err).Fatal("Failed to seed rules")
		}
		logrus.Warn("Using in-memory catalog store; data is lost on restart")
	default:
		db, err = database.Initialize(cfg.Database)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to initialize database")
		}
		defer database.Close(db)

		if err := database.RunMigrations(db); err != nil {
			logrus.WithError(err).Fatal("Failed to run migrations")
		}

		gormCatalog := store.NewGormCatalog(db)
		if cfg.Database.SeedData {
			if err := database.SeedInitialData(ctx, db, gormCatalog); err != nil {
				logrus.WithError(err).Fatal("Failed to seed initial data")
			}
		}
		catalog = gormCatalog
		zips = store.NewZipStore(db)
		checks = append(checks, handlers.DependencyCheck{Name: "database", Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	}

	redisCli, err = database.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logrus.WithError(err).Warn("Redis unavailable; ZIP lookups are not cached")
	}
	if redisCli != nil {
		defer redisCli.Close()
		if cfg.Redis.ZipCacheTTL > 0 {
			zips = store.NewCachedZipResolver(zips, redisCli, cfg.Redis.CacheTTL(), m)
		}
		checks = append(checks, handlers.DependencyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisCli.Ping(ctx).Err()
		}})
	}

	completion := newCompletionClient(cfg.LLM)

	extractor := docai.Chain{docai.PDFText{}}
	docaiCfg := docai.Config{
		ProjectID:        cfg.DocumentAI.ProjectID,
		Location:         cfg.DocumentAI.Location,
		ProcessorID:      cfg.DocumentAI.ProcessorID,
		ProcessorVersion: cfg.DocumentAI.ProcessorVersion,
		Credentials:      cfg.DocumentAI.CredentialsFile,
		Timeout:          cfg.DocumentAI.Timeout(),
	}
	if docaiCfg.Enabled() {
		documentAI, err := docai.New(ctx, docaiCfg)
		if err != nil {
			logrus.WithError(err).Warn("Document AI unavailable; COA text is read locally")
		} else {
			defer documentAI.Close()
			extractor = docai.Chain{documentAI, docai.PDFText{}}
		}
	}

	storage, err := services.NewStorageService(cfg.AWS)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize storage")
	}

	ruleCatalog := services.NewRuleCatalog(catalog, m)
	classifier := services.NewClassifierService(catalog, ruleCatalog, completion, services.ClassifierConfig{
		KeywordShortCircuit: cfg.Compliance.KeywordShortCircuit,
		BulkPause:           cfg.Compliance.BulkPause,
		BulkPauseEvery:      cfg.Compliance.BulkPauseEvery,
		BulkDefaultLimit:    cfg.Compliance.BulkDefaultLimit,
	}, m)
	svc := router.Services{
		Eligibility:    services.NewEligibilityService(zips, ruleCatalog, m),
		Classifier:     classifier,
		COA:            services.NewCOAService(catalog, extractor, completion, m),
		Compliance:     services.NewComplianceService(catalog, ruleCatalog),
		Audit:          services.NewAuditService(catalog, ruleCatalog, classifier, cfg.Compliance.AuditConcurrency, cfg.Compliance.AuditDefaultLimit, m),
		Storage:        storage,
		RequestLog:     catalog,
		Metrics:        m,
		MetricsHandler: promhttp.Handler(),
		HealthChecks:   checks,
	}

	r := router.Initialize(ctx, cfg, svc)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"port":        cfg.Server.Port,
			"environment": cfg.Environment,
			"store":       cfg.Database.Driver,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
		return
	}

	logrus.Info("Server exited")
}

func configureLogging(cfg *config.Config) {
	if cfg.IsProduction() {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// newCompletionClient falls back to a client that always fails, so keyword
// classification and regex COA parsing keep working without an API key.
func newCompletionClient(cfg config.LLMConfig) llm.Client {
	client, err := llm.NewHTTPClient(llm.Config{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout(),
		Temperature: cfg.Temperature,
	})
	if err != nil {
		logrus.WithError(err).Warn("Completion service not configured")
		return llm.Unconfigured{}
	}
	return client
}
