package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/safaritrails/booking-backend/internal/config"
	"github.com/safaritrails/booking-backend/internal/database"
	"github.com/safaritrails/booking-backend/internal/handlers"
	"github.com/safaritrails/booking-backend/internal/middleware"
	"github.com/safaritrails/booking-backend/internal/models"
	"github.com/safaritrails/booking-backend/internal/services"
	"github.com/safaritrails/booking-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SafariTrails booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Database
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	tourRepository := database.NewTourRepository(db.DB)
	bookingRepository := database.NewBookingRepository(db.DB)
	userRepository := database.NewUserRepository(db.DB)
	paymentRepository := database.NewPaymentRepository(db.DB)
	paymentAuditRepository := database.NewPaymentAuditRepository(db.DB, logger)

	// Rate limit store: Redis when configured, PostgreSQL otherwise
	redisClient, err := database.NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	var rateLimitStore services.RateLimitStore
	var rateLimitCleaner services.RateLimitCleaner
	if redisClient != nil {
		defer redisClient.Close()
		rateLimitStore = services.NewRedisRateLimitStore(redisClient)
		logger.Info("Booking rate limiter backed by Redis")
	} else {
		dbStore := services.NewDBRateLimitStore(db.DB)
		rateLimitStore = dbStore
		rateLimitCleaner = dbStore
		logger.Info("Booking rate limiter backed by PostgreSQL")
	}
	rateWindow := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second

	// Payment gateways
	gatewayRouter := services.NewGatewayRouter(cfg, logger)
	logger.WithField("gateways", gatewayRouter.Names()).Info("Payment gateways configured")

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	bookingService := services.NewBookingService(bookingRepository, tourRepository, userRepository, cfg.Booking, logger)
	availabilityService := services.NewAvailabilityService(tourRepository, logger)
	paymentService := services.NewPaymentService(
		paymentRepository,
		bookingRepository,
		paymentAuditRepository,
		gatewayRouter,
		cfg.Booking,
		cfg.Reconcile,
		logger,
	)
	rateLimitService := services.NewRateLimitService(rateLimitStore, cfg.RateLimit.Requests, rateWindow, logger)

	// Scheduled jobs
	var reconciliation *services.ReconciliationService
	if cfg.Reconcile.Enabled {
		reconciliation = services.NewReconciliationService(paymentService, rateLimitCleaner, cfg.Reconcile.Schedule, rateWindow, logger)
		if err := reconciliation.Start(); err != nil {
			logger.Fatalf("Failed to start reconciliation: %v", err)
		}
	}

	// Handlers
	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	tourHandler := handlers.NewTourHandler(availabilityService, bookingService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db, redisClient, reconciliation))

	api := router.Group("/api")
	{
		bookings := api.Group("/bookings")
		{
			bookings.POST("",
				middleware.OptionalAuthMiddleware(jwtService),
				middleware.BookingRateLimit(rateLimitService),
				bookingHandler.CreateBooking,
			)

			protected := bookings.Group("")
			protected.Use(middleware.AuthMiddleware(jwtService))
			{
				protected.GET("", bookingHandler.ListBookings)
				protected.GET("/:id", bookingHandler.GetBooking)
				protected.PATCH("/:id/status", bookingHandler.UpdateBookingStatus)
			}
		}

		tours := api.Group("/tours")
		{
			tours.GET("/:id/availability", tourHandler.GetAvailability)
			tours.DELETE("/:id",
				middleware.AuthMiddleware(jwtService),
				middleware.RequireRole(models.RoleAgent, models.RoleAdmin),
				tourHandler.DeleteTour,
			)
		}

		paymentRoutes := api.Group("/payments")
		{
			// Gateway callbacks (public, verified per gateway)
			paymentRoutes.GET("/webhooks/pesapal", paymentHandler.PesapalIPN)
			paymentRoutes.POST("/webhooks/pesapal", paymentHandler.PesapalIPN)
			paymentRoutes.POST("/webhooks/flutterwave", paymentHandler.FlutterwaveWebhook)

			protected := paymentRoutes.Group("")
			protected.Use(middleware.AuthMiddleware(jwtService))
			{
				protected.POST("/initiate", paymentHandler.InitiatePayment)
				protected.GET("/:id", paymentHandler.GetPayment)
			}
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if reconciliation != nil {
		reconciliation.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}
		if userCtx, ok := middleware.GetUserContext(c); ok {
			fields["user_id"] = userCtx.UserID
			fields["roles"] = userCtx.Roles
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		if status >= 500 {
			entry.Error("Request completed with server error")
		} else if status >= 400 {
			entry.Warn("Request completed with client error")
		} else {
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler reports database and Redis health plus the last
// reconciliation run
func healthCheckHandler(db database.DB, redisClient *redis.Client, reconciliation *services.ReconciliationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		resp := gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		}

		if redisClient != nil {
			resp["redis"] = "healthy"
			if err := redisClient.Ping(ctx).Err(); err != nil {
				// Redis only backs the rate limiter, which fails open
				resp["redis"] = "unhealthy"
				resp["status"] = "degraded"
			}
		}

		if reconciliation != nil {
			resp["jobs"] = reconciliation.GetJobStatus()
		}

		c.JSON(http.StatusOK, resp)
	}
}
