package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/setu-health/terminology/pkg/audit"
	"github.com/setu-health/terminology/pkg/common/config"
	"github.com/setu-health/terminology/pkg/common/database"
	"github.com/setu-health/terminology/pkg/common/kafka"
	"github.com/setu-health/terminology/pkg/common/logger"
	"github.com/setu-health/terminology/pkg/condition"
	"github.com/setu-health/terminology/pkg/gateway/auth"
	"github.com/setu-health/terminology/pkg/gateway/middleware"
	"github.com/setu-health/terminology/pkg/icd"
	"github.com/setu-health/terminology/pkg/identity"
	"github.com/setu-health/terminology/pkg/llm"
	"github.com/setu-health/terminology/pkg/observability/metrics"
	"github.com/setu-health/terminology/pkg/resolution"
	"github.com/setu-health/terminology/pkg/terminology"
	"github.com/setu-health/terminology/pkg/vocabulary"
)

func main() {
	_ = godotenv.Load()
	logger.Init()
	cfg := config.Load()

	if cfg.JWTSecret == "" {
		logger.Log.Fatal("JWT_SECRET must be set")
	}

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	identityRepo := identity.NewRepository(db)
	auditRepo := audit.NewRepository(db)
	conditionRepo := condition.NewRepository(db)
	resolutionRepo := resolution.NewRepository(db)
	for name, migrate := range map[string]func() error{
		"users":           identityRepo.Migrate,
		"audit_logs":      auditRepo.Migrate,
		"conditions":      conditionRepo.Migrate,
		"resolution_jobs": resolutionRepo.Migrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).WithField("table", name).Fatal("failed to migrate")
		}
	}

	vocab := vocabulary.NewIndex(cfg.VocabularyPath)
	if err := vocab.Load(); err != nil {
		// The service still serves entity lookups and condition storage
		// without the vocabulary; resolution and autocomplete will refuse.
		logger.Log.WithError(err).Warn("vocabulary unavailable")
	}

	var cache *redis.Client
	if cfg.WHOSearchCacheTTL > 0 {
		cache = database.GetRedis()
	}

	icdClient := icd.NewClient(icd.Config{
		TokenURL:      cfg.WHOTokenURL,
		ClientID:      cfg.WHOClientID,
		ClientSecret:  cfg.WHOClientSecret,
		Scope:         cfg.WHOScope,
		APIBase:       cfg.WHOAPIBase,
		Release:       cfg.WHORelease,
		Linearization: cfg.WHOLinearization,
		Timeout:       cfg.WHOTimeout,
		CacheTTL:      cfg.WHOSearchCacheTTL,
	}, cache)

	var producer *kafka.Producer
	if cfg.KafkaAuditTopic != "" {
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		defer producer.Close()
	}

	var suggester resolution.Suggester
	if cfg.GeminiAPIKey != "" {
		llmClient, err := llm.NewClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to create model client")
		}
		suggester = llmClient
	} else {
		logger.Log.Warn("GEMINI_API_KEY not set, generative resolution disabled")
	}

	auditService := audit.NewService(auditRepo, producer)
	identityService := identity.NewService(identityRepo)
	conditionService := condition.NewService(conditionRepo, auditService)
	terminologyService := terminology.NewService(vocab, icdClient, icdClient, auditService, cfg.WHOCandidateLimit)
	resolutionService := resolution.NewService(
		resolutionRepo, vocab, suggester, icdClient, auditService,
		cfg.ResolutionMaxWorkers, cfg.LLMTimeout, cfg.WHOCandidateLimit,
	)

	tokens := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)

	identityHandler := identity.NewHandler(identityService, tokens)
	conditionHandler := condition.NewHandler(conditionService)
	terminologyHandler := terminology.NewHandler(terminologyService)
	resolutionHandler := resolution.NewHandler(resolutionService)
	auditHandler := audit.NewHandler(auditService)

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	public := router.PathPrefix("/api/v1").Subrouter()
	identityHandler.RegisterPublic(public)

	protected := router.PathPrefix("/api/v1").Subrouter()
	protected.Use(middleware.Authenticate(tokens))
	identityHandler.RegisterProtected(protected)
	terminologyHandler.Register(protected)
	resolutionHandler.Register(protected)
	conditionHandler.Register(protected)
	auditHandler.Register(protected)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("Terminology service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start terminology service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down terminology service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Terminology service forced to shutdown")
	}
	database.ClosePostgres()
	database.CloseRedis()
	logger.Log.Info("Terminology service stopped")
}
