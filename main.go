package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"autoapply/config"
	"autoapply/controllers"
	"autoapply/database"
	"autoapply/middleware"
	"autoapply/models"
	"autoapply/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	serve := flag.Bool("serve", false, "run the HTTP API instead of a batch")
	dryRun := flag.Bool("dry-run", false, "plan actions without executing them")
	debug := flag.Bool("debug", false, "run the browser headed")
	batchSize := flag.Int("batch-size", 10, "max jobs per batch run")
	limit := flag.Int("limit", 0, "alias for -batch-size")
	timeout := flag.Int("timeout", 0, "per-application timeout in seconds (overrides APPLY_TIMEOUT_SECONDS)")
	workers := flag.Int("workers", 1, "parallel application workers")
	flag.Parse()

	cfg := config.GetAppConfig()
	if *dryRun {
		cfg.Automation.DryRun = true
	}
	if *debug {
		cfg.Automation.Headless = false
		cfg.Automation.Debug = true
	}
	if *timeout > 0 {
		cfg.Automation.ApplyTimeout = time.Duration(*timeout) * time.Second
	}
	size := *batchSize
	if *limit > 0 {
		size = *limit
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	orchestrator, err := buildOrchestrator(db, cfg)
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}

	if *serve {
		runServer(db, cfg, orchestrator)
		return
	}
	runBatch(orchestrator, size, *workers)
}

func buildOrchestrator(db *sql.DB, cfg config.AppConfig) (*services.BatchOrchestrator, error) {
	profile, err := services.LoadProfile(cfg.Automation.ProfilePath)
	if err != nil {
		return nil, err
	}
	overrides, err := services.LoadSiteOverrides(cfg.Automation.SiteOverrides)
	if err != nil {
		return nil, err
	}

	var completer services.TextCompleter
	if cfg.AI.GeminiAPIKey != "" {
		completer = services.NewGeminiClient(cfg.AI.GeminiAPIKey, cfg.AI.GeminiModel)
	} else {
		log.Printf("GEMINI_API_KEY not set; AI tiers disabled")
	}

	var s3svc *services.S3Service
	if s3svc, err = services.NewS3Service(); err != nil {
		log.Printf("S3 disabled: %v", err)
		s3svc = nil
	}
	screenshots, err := services.NewScreenshotService(cfg.Automation.ScreenshotDir, s3svc)
	if err != nil {
		return nil, err
	}

	return &services.BatchOrchestrator{
		Jobs:       models.NewJobModel(db),
		Attempts:   models.NewApplicationAttemptModel(db),
		Profile:    profile,
		Overrides:  overrides,
		Answers:    models.NewAnswerStoreModel(db),
		Completer:  completer,
		Secrets:    services.NewCredentialBroker(profile.Email),
		Enricher:   services.NewJobEnricher(),
		Screenshot: screenshots,
		Automation: cfg.Automation,
	}, nil
}

func runBatch(orchestrator *services.BatchOrchestrator, limit, workers int) {
	ctx := context.Background()

	if err := orchestrator.Prepare(ctx, limit); err != nil {
		log.Fatalf("Batch preparation failed: %v", err)
	}
	result, err := orchestrator.Run(ctx, limit, workers)
	if err != nil {
		log.Fatalf("Batch run failed: %v", err)
	}
	log.Printf("Done: %d attempts %v", result.Total, result.Counts)
}

func runServer(db *sql.DB, cfg config.AppConfig, orchestrator *services.BatchOrchestrator) {
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set to run the API")
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTTTL)
	authController := controllers.NewAuthController(db, jwtService)
	jobController := controllers.NewJobController(db)
	appController := controllers.NewApplicationController(db, orchestrator)
	answerController := controllers.NewAnswerController(db)

	limiters := middleware.CreateRateLimiters()

	r := gin.Default()
	r.Use(middleware.CORS(corsOrigins()))
	r.Use(middleware.MaxRequestSize(1 << 20))
	r.Use(middleware.ValidateJSON())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	auth := r.Group("/api/auth", limiters["auth"].Limit())
	auth.POST("/register", authController.Register)
	auth.POST("/token", authController.Token)

	api := r.Group("/api", limiters["general"].Limit(), middleware.JWTAuth(jwtService))
	api.POST("/jobs", jobController.Create)
	api.GET("/jobs", jobController.List)
	api.GET("/jobs/:external_id", jobController.Get)
	api.GET("/jobs/:external_id/attempts", appController.ListAttempts)
	api.GET("/applications/:attempt_id", appController.GetAttempt)
	api.POST("/answers", answerController.SaveHuman)

	apply := r.Group("/api", limiters["apply"].Limit(), middleware.JWTAuth(jwtService))
	apply.POST("/applications/apply", appController.Apply)

	log.Printf("API listening on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func corsOrigins() []string {
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		return []string{origins}
	}
	return nil
}
