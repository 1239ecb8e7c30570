package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"traderoom_app_echo/internal/handlers"
	appMiddleware "traderoom_app_echo/internal/middleware"
	"traderoom_app_echo/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	logger := services.NewLogger("traderoom-server")
	defer logger.Sync()

	// Initialize Firebase
	credPath := os.Getenv("FIREBASE_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = "./firebase-service-account.json"
	}

	authClient, err := services.InitFirebase(credPath)
	if err != nil {
		logger.Warn("Firebase initialization failed; auth and identity resolution degraded", zap.Error(err))
	}

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := services.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize Redis (optional; the claim lock degrades to the
	// conditional update without it)
	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			logger.Warn("Redis unavailable, caching and claim locks disabled", zap.Error(err))
			cache = nil
		}
	} else {
		logger.Warn("REDIS_URL not set, caching and claim locks disabled")
	}

	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = "http://localhost:8080"
	}

	// Services
	catalog := services.NewCatalogService(db, cache)
	if err := catalog.SeedDefaultPlans(context.Background()); err != nil {
		logger.Fatal("Failed to seed plan catalog", zap.Error(err))
	}
	gateway := services.NewGatewayService()
	identity := services.NewIdentityService(db, authClient, logger)
	email := services.NewEmailService()
	checkout := services.NewCheckoutService(db, catalog, gateway, appURL, logger)
	reconcile := services.NewReconcileService(db, cache, gateway, identity, email, logger)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = appMiddleware.NewErrorHandler(logger)

	// Middleware
	e.Use(appMiddleware.RequestID())
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	// Handlers
	authHandler := handlers.NewAuthHandler(authClient)
	checkoutHandler := handlers.NewCheckoutHandler(checkout)
	webhookHandler := handlers.NewWebhookHandler(reconcile, logger)

	// Auth routes
	e.POST("/auth/login", authHandler.HandleLogin)
	e.POST("/auth/logout", authHandler.HandleLogout)

	// Checkout routes
	e.POST("/api/checkout", checkoutHandler.InitiateCheckout)
	e.GET("/api/checkout/:id/status", checkoutHandler.SessionStatus)

	// Gateway callbacks
	e.POST("/webhooks/payment", webhookHandler.Ingress)
	e.GET("/payment/complete", webhookHandler.Complete)

	// Admin recovery
	admin := e.Group("/api/admin")
	admin.Use(appMiddleware.RequireAuth(authClient))
	admin.POST("/recover", webhookHandler.Recover)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info("server starting", zap.String("port", port))
	e.Logger.Fatal(e.Start(":" + port))
}
