package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"docutrack/internal/config"
	"docutrack/internal/database"
	"docutrack/internal/handlers"
	"docutrack/internal/jobs"
	"docutrack/internal/logging"
	"docutrack/internal/middleware"
	"docutrack/internal/schema"
	"docutrack/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting DocuTrack Analytics Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s)", cfg.Port, cfg.Environment)

	// MongoDB is optional: without it ingestion degrades to the remaining
	// sinks and aggregation endpoints serve zeroed defaults.
	var mongoDB *database.MongoDB
	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		var err error
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Printf("⚠️ Failed to connect to MongoDB: %v (event persistence disabled)", err)
			mongoDB = nil
		} else {
			defer mongoDB.Close(context.Background())

			if err := mongoDB.Initialize(context.Background()); err != nil {
				log.Printf("⚠️ Failed to initialize MongoDB indexes: %v", err)
			}
			log.Println("✅ MongoDB connected successfully")
		}
	} else {
		log.Println("⚠️ MONGODB_URI not set - event persistence disabled")
	}

	// Redis is optional: without it the rate limiter falls back to the
	// in-process window and the rebuild job runs unlocked.
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		log.Println("🔗 Connecting to Redis...")
		var err error
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (using in-process rate limiting)", err)
			redisService = nil
		} else {
			defer redisService.Close()
		}
	} else {
		log.Println("⚠️ REDIS_URL not set - using in-process rate limiting")
	}

	// Prometheus metrics
	metrics := services.InitMetrics()
	log.Println("✅ Prometheus metrics initialized")

	// Event schema contract with hot reload
	registry, err := schema.Load(cfg.SchemaPath)
	if err != nil {
		log.Fatalf("❌ Failed to load event schema contract: %v", err)
	}
	go registry.Watch()

	// Ingestion rate limiter
	var rateLimiter services.RateLimiter
	if redisService != nil {
		rateLimiter = services.NewRedisRateLimiter(redisService, cfg.RateLimit, cfg.RateLimitWindow)
		log.Printf("🛡️  [RATE-LIMIT] Redis-backed ingestion limiter: %d/%v per IP", cfg.RateLimit, cfg.RateLimitWindow)
	} else {
		memLimiter := services.NewMemoryRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				memLimiter.Sweep()
			}
		}()
		rateLimiter = memLimiter
		log.Printf("🛡️  [RATE-LIMIT] In-process ingestion limiter: %d/%v per IP", cfg.RateLimit, cfg.RateLimitWindow)
	}

	// Event sinks: Mongo is primary; console sink in development; the
	// forwarder relays to an external analytics platform when configured.
	var sinks []services.EventSink
	if mongoDB != nil {
		sinks = append(sinks, services.NewMongoSink(mongoDB))
	}
	if cfg.IsDevelopment() {
		sinks = append(sinks, services.NewConsoleSink())
		log.Println("🖥️  Console event sink enabled (development)")
	}
	if cfg.ForwarderURL != "" {
		sinks = append(sinks, services.NewForwarderSink(cfg.ForwarderURL, cfg.ForwarderRate))
		log.Printf("📤 Analytics forwarder sink enabled: %s (%.1f req/s)", cfg.ForwarderURL, cfg.ForwarderRate)
	}
	if len(sinks) == 0 {
		log.Println("⚠️ No event sinks configured - ingestion will reject all batches")
	}
	sinkManager := services.NewSinkManager(metrics, sinks...)

	// Services
	rollupService := services.NewRollupService(mongoDB, metrics)
	rollupService.Start(context.Background())

	analyticsService := services.NewAnalyticsService(mongoDB, metrics, cfg.AnalyticsCacheTTL)
	documentAnalytics := services.NewDocumentAnalyticsService(mongoDB, metrics)
	monitoringService := services.NewMonitoringService(mongoDB, redisService, analyticsService)

	// Background jobs
	scheduler, err := jobs.NewScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	rebuildJob := jobs.NewRollupRebuildJob(rollupService, redisService, 7)
	if err := scheduler.Register("rollup-rebuild", jobs.RollupRebuildCron, func() {
		rebuildJob.Run(context.Background())
	}); err != nil {
		log.Fatalf("❌ Failed to register rollup rebuild job: %v", err)
	}
	scheduler.Start()

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "DocuTrack Analytics v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    5 * 1024 * 1024, // event batches are small; 5MB is generous
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("docutrack")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// The collector posts from arbitrary origins
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	rateLimitConfig := middleware.LoadRateLimitConfig()
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Handlers
	trackingHandler := handlers.NewTrackingHandler(sinkManager, rateLimiter, registry, rollupService, metrics)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)
	documentsHandler := handlers.NewDocumentsHandler(documentAnalytics)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)
	healthHandler := handlers.NewHealthHandler(mongoDB, redisService)

	// Routes
	app.Get("/health", healthHandler.Handle)

	app.Post("/api/tracking", trackingHandler.Ingest)
	app.Options("/api/tracking", trackingHandler.Preflight)

	analyticsRead := middleware.AnalyticsReadRateLimiter(rateLimitConfig)
	app.Get("/api/tracking/analytics", analyticsRead, analyticsHandler.Query)
	app.Get("/api/documents/analytics", analyticsRead, documentsHandler.Dashboard)
	app.Get("/api/monitoring", analyticsRead, monitoringHandler.Status)

	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("🕐 Background jobs: rollup rebuild (daily 02:10 UTC)")

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := scheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}

		// Drain pending rollup updates before closing connections
		rollupService.Stop()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
