package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"main/config"
	"main/handler"
	"main/middleware"
	"main/repository"
	"main/services"
	"main/utils"
)

func init() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil && os.Getenv("GO_ENV") != "test" {
		log.Printf("No .env file loaded: %v", err)
	}
}

func setupRouter(cfg *config.Config, sessions *services.DeviceSessionManager, sessionRepo *repository.DeviceSessionRepo, identity *services.IdentityClient, limiter *services.RateLimiter, storage *services.StorageClient) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.RequestTracingMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestSizeLimiter(cfg.MaxRequestBodySize))

	// Every route sits behind the gate; the gate knows its own allow-list.
	router.Use(middleware.DeviceGateMiddleware(cfg, sessions))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		device := api.Group("/device")
		{
			device.POST("/activate", func(c *gin.Context) {
				handler.ActivateDeviceHandler(c, cfg)
			})
			device.POST("/activate/mobile", func(c *gin.Context) {
				handler.ActivateMobileDeviceHandler(c, cfg, sessions)
			})
			device.POST("/session/refresh", func(c *gin.Context) {
				handler.RefreshDeviceSessionHandler(c, sessions)
			})
			device.POST("/session/revoke", func(c *gin.Context) {
				handler.RevokeDeviceSessionHandler(c, sessions)
			})
			device.GET("/sessions", func(c *gin.Context) {
				handler.ListDeviceSessionsHandler(c, sessionRepo)
			})
		}

		tokens := api.Group("/tokens")
		{
			tokens.GET("/kid", func(c *gin.Context) {
				handler.MintKidTokenHandler(c, cfg, identity)
			})
			tokens.POST("/parent", func(c *gin.Context) {
				handler.MintParentTokenHandler(c, cfg, identity, limiter)
			})
		}

		attachments := api.Group("/attachments")
		{
			attachments.GET("", func(c *gin.Context) {
				handler.ListAttachmentsHandler(c, cfg, storage)
			})
			attachments.POST("/upload-url", func(c *gin.Context) {
				handler.CreateUploadURLHandler(c, cfg, storage)
			})
			attachments.GET("/download-url", func(c *gin.Context) {
				handler.CreateDownloadURLHandler(c, cfg, storage)
			})
		}
	}

	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.DeviceSessionSecret == "" {
		log.Fatal("DEVICE_SESSION_SECRET is not set")
	}
	utils.InitValidator()

	// Session state lives in memory unless Redis is configured.
	var store services.SessionStateStore
	if cfg.RedisURL != "" {
		redisStore, err := services.NewRedisSessionStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect session store: %v", err)
		}
		store = redisStore
		log.Println("Device session state: redis")
	} else {
		store = services.NewMemorySessionStore()
		log.Println("Device session state: in-memory (single instance only)")
	}

	// The durable session table is optional; without Mongo the service
	// still runs, minus session listing.
	var sessionRepo *repository.DeviceSessionRepo
	if cfg.MongoURI != "" {
		client, err := utils.NewMongoClient(cfg.MongoURI)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		sessionRepo = repository.GetDeviceSessionRepo(client, cfg.MongoDB, cfg.DeviceSessionsCollection)
	}

	sessions, err := services.NewDeviceSessionManager(cfg.DeviceSessionSecret, cfg.DeviceSessionTTL, store, sessionRepo)
	if err != nil {
		log.Fatalf("Failed to create device session manager: %v", err)
	}

	limiter := services.NewRateLimiter(services.RateLimitConfig{
		Window:       cfg.PinRateLimitWindow,
		BaseBackoff:  cfg.PinRateLimitBaseBackoff,
		MaxBackoff:   cfg.PinRateLimitMaxBackoff,
		FreeFailures: cfg.PinRateLimitFreeFailures,
	})

	identity := services.NewIdentityClient(cfg)
	if !identity.Configured() {
		log.Println("Identity system not configured; token minting will answer 503")
	}

	storage := services.NewStorageClient(cfg)
	if !cfg.StorageConfigured() {
		log.Println("Object storage not configured; attachment endpoints will answer 503")
	}

	utils.StartCPUMetrics(30 * time.Second)

	router := setupRouter(cfg, sessions, sessionRepo, identity, limiter, storage)

	serverAddr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Server starting on %s", serverAddr)
	if err := router.Run(serverAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
