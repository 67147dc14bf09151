package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cohort/internal/config"
	"cohort/internal/database"
	"cohort/internal/handlers"
	"cohort/internal/jobs"
	"cohort/internal/logging"
	"cohort/internal/middleware"
	"cohort/internal/services"
	"cohort/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Cohort Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️ No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	// MongoDB is the system of record; the server cannot run without it.
	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI environment variable is required")
	}
	log.Println("🔗 Connecting to MongoDB...")
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mongoDB.Initialize(initCtx); err != nil {
		cancelInit()
		log.Fatalf("❌ Failed to initialize MongoDB indexes: %v", err)
	}
	cancelInit()
	log.Println("✅ MongoDB connected and indexes ensured")

	// Redis provides distributed run locks and the graph cache. The
	// server degrades to single-instance locking without it.
	var redisService *services.RedisService
	redisService, err = services.NewRedisService(cfg.RedisURL)
	if err != nil {
		log.Printf("⚠️ Redis unavailable: %v (distributed locks and graph cache disabled)", err)
		redisService = nil
	} else {
		defer redisService.Close()
		log.Println("✅ Redis connected")
	}

	// Prometheus metrics
	services.InitMetrics()
	log.Println("📊 Metrics initialized")

	// Clustering tunables with optional hot reload from YAML
	cfgStore := config.NewClusteringConfigStore(cfg.ClusteringYAMLPath)
	if cfg.ClusteringYAMLPath != "" {
		if err := cfgStore.Watch(); err != nil {
			log.Printf("⚠️ Failed to watch clustering config: %v", err)
		}
		defer cfgStore.Close()
	}

	// Services
	embeddingService := services.NewEmbeddingService(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim)
	profileService := services.NewProfileService(mongoDB, embeddingService)
	behaviorService := services.NewBehaviorService(mongoDB, embeddingService)
	similarityService := services.NewSimilarityService(mongoDB, behaviorService, embeddingService, cfgStore)
	clusterLabeler := services.NewClusterLabeler(cfg.LabelBaseURL, cfg.LabelAPIKey, cfg.LabelModel)
	clusterStore := services.NewClusterStore(mongoDB)
	clusteringService := services.NewClusteringService(mongoDB, behaviorService, clusterLabeler, clusterStore, redisService, cfgStore, cfg)
	log.Println("✅ Services initialized")

	// Per-org clustering schedules (requires Redis for instance locking)
	var schedulerService *services.SchedulerService
	if redisService != nil {
		schedulerService, err = services.NewSchedulerService(mongoDB, redisService, clusteringService)
		if err != nil {
			log.Printf("⚠️ Failed to create scheduler service: %v", err)
		} else if err := schedulerService.Start(context.Background()); err != nil {
			log.Printf("⚠️ Failed to start scheduler service: %v", err)
		}
	} else {
		log.Println("⚠️ Per-org clustering schedules disabled (no Redis)")
	}

	// Background jobs: nightly sweep and embedding backfill
	jobScheduler := jobs.NewJobScheduler()
	jobScheduler.Register("clustering-sweep", jobs.NewClusteringSweepJob(clusteringService, cfg.ClusterCronSpec))
	jobScheduler.Register("embedding-backfill", jobs.NewEmbeddingBackfillJob(mongoDB, profileService))
	if err := jobScheduler.Start(); err != nil {
		log.Printf("⚠️ Failed to start job scheduler: %v", err)
	}

	// JWT verification (token issuance lives in the identity service)
	var jwtAuth *auth.LocalJWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.JWTSecret)
		if err != nil {
			log.Fatalf("❌ Failed to initialize JWT auth: %v", err)
		}
		log.Println("🔐 JWT authentication enabled")
	} else if os.Getenv("ENVIRONMENT") == "production" {
		log.Fatal("❌ JWT_SECRET is required in production")
	} else {
		log.Println("⚠️ JWT_SECRET not set, running without authentication (development only)")
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Cohort v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // profiles and queries are small
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("cohort")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️ ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Handlers
	healthHandler := handlers.NewHealthHandler(mongoDB, redisService)
	profileHandler := handlers.NewProfileHandler(profileService, behaviorService)
	similarityHandler := handlers.NewSimilarityHandler(similarityService, behaviorService)
	clusterHandler := handlers.NewClusterHandler(clusterStore, clusteringService, schedulerService, redisService)
	jobsHandler := handlers.NewJobsHandler(jobScheduler)

	// Routes
	app.Get("/health", healthHandler.Handle)
	app.Get("/health/ready", healthHandler.Ready)

	api := app.Group("/api", middleware.LocalAuthMiddleware(jwtAuth))

	api.Get("/profile", profileHandler.Get)
	api.Put("/profile", profileHandler.Update)
	api.Post("/members/:id/save", profileHandler.Save)
	api.Post("/members/:id/view", profileHandler.View)

	api.Get("/members/similar", similarityHandler.Similar)
	api.Post("/members/search", similarityHandler.Search)

	api.Get("/clusters", clusterHandler.List)
	api.Get("/clusters/graph", clusterHandler.Graph)
	api.Get("/clusters/:id/members", clusterHandler.Members)

	admin := api.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Post("/clusters/run", clusterHandler.TriggerRun)
	admin.Put("/clusters/schedule", clusterHandler.UpsertSchedule)
	admin.Get("/clusters/schedule", clusterHandler.GetSchedule)
	admin.Delete("/clusters/schedule", clusterHandler.DeleteSchedule)
	admin.Get("/jobs", jobsHandler.Status)
	admin.Post("/jobs/:name/run", jobsHandler.Run)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		jobScheduler.Stop()

		if schedulerService != nil {
			if err := schedulerService.Stop(); err != nil {
				log.Printf("⚠️ Error stopping scheduler: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
