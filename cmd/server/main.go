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
	"github.com/pobtrack/pob-backend/internal/config"
	"github.com/pobtrack/pob-backend/internal/database"
	"github.com/pobtrack/pob-backend/internal/handlers"
	"github.com/pobtrack/pob-backend/internal/live"
	"github.com/pobtrack/pob-backend/internal/middleware"
	"github.com/pobtrack/pob-backend/internal/services"
	"github.com/pobtrack/pob-backend/pkg/jwt"
	"github.com/redis/go-redis/v9"
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

	logger.Info("Starting POB attendance backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	tz, err := cfg.Location()
	if err != nil {
		logger.Fatalf("Failed to load time zone: %v", err)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.NewConnection(connectCtx, cfg.Database)
	cancelConnect()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 2*time.Minute)
		err := database.Migrate(migrateCtx, db, logger)
		cancelMigrate()
		if err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
	}

	// Per-person scan lock. Redis extends it across instances when configured.
	var locker services.PersonLocker = services.NewKeyedMutex()
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.WithError(err).Warn("Redis not reachable at startup, scan lock falls back to local until it is")
		}
		cancelPing()
		locker = services.NewRedisPersonLocker(redisClient, cfg.Scan.LockTTL, logger)
		logger.WithField("addr", cfg.Redis.Addr).Info("Distributed scan lock enabled")
	}

	// Initialize repositories
	personnelRepository := database.NewPersonnelRepository(db)
	locationRepository := database.NewLocationRepository(db)
	deviceRepository := database.NewDeviceRepository(db)
	attendanceRepository := database.NewAttendanceRepository(db)
	eventRepository := database.NewEventRepository(db)
	vehicleRepository := database.NewVehicleRepository(db)
	visitorRepository := database.NewVisitorRepository(db)

	// Live dashboard hub
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := live.NewHub(cfg.Live, logger)
	go hub.Run(hubCtx)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, 0)
	locationIndex := services.NewLocationIndex(locationRepository, cfg.Scan.LocationCacheTTL)
	auditService := services.NewAuditService(db, logger)
	scanService := services.NewScanService(
		personnelRepository,
		deviceRepository,
		locationIndex,
		attendanceRepository,
		locker,
		services.NewMedicalPolicy(cfg.Medical),
		hub,
		auditService,
		cfg.Scan.Timeout,
		logger,
	)
	eventService := services.NewEventService(eventRepository, personnelRepository, locationIndex, locker, auditService, logger)
	occupancyService := services.NewOccupancyService(locationIndex, attendanceRepository, vehicleRepository, tz, logger)
	visitorService := services.NewVisitorService(personnelRepository, visitorRepository, scanService, logger)
	attendanceService := services.NewAttendanceService(attendanceRepository)

	var cronService *services.CronService
	if cfg.Cron.Enabled {
		cronService = services.NewCronService(hub, auditService, cfg.Cron.AuditRetentionDays, tz, logger)
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
	}

	// Initialize handlers
	scanHandler := handlers.NewScanHandler(scanService, logger)
	eventHandler := handlers.NewEventHandler(eventService, logger)
	dashboardHandler := handlers.NewDashboardHandler(occupancyService, logger)
	visitorHandler := handlers.NewVisitorHandler(visitorService, logger)
	attendanceHandler := handlers.NewAttendanceHandler(attendanceService, logger)
	locationHandler := handlers.NewLocationHandler(locationIndex, logger)
	badgeHandler := handlers.NewBadgeHandler(personnelRepository, logger)
	liveHandler := handlers.NewLiveHandler(hub)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !allowsAnyOrigin(cfg.CORS.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db, hub))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Public dashboard and fixed gate readers
		v1.GET("/dashboard/public", dashboardHandler.PublicStats)
		v1.GET("/locations/public", locationHandler.PublicLocations)
		v1.GET("/live", liveHandler.Connect)
		v1.POST("/devices/:device_id/scan", scanHandler.DeviceScan)

		// Operator routes
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(jwtService, logger))
		{
			protected.POST("/scan", scanHandler.Scan)
			protected.GET("/locations/tree", locationHandler.LocationTree)
			protected.GET("/attendance", attendanceHandler.ListAttendance)
			protected.GET("/badges/:uid/qr", badgeHandler.BadgeQR)

			visitors := protected.Group("/visitors")
			{
				visitors.GET("", visitorHandler.ListVisitors)
				visitors.POST("/check-in", visitorHandler.CheckIn)
				visitors.POST("/:id/check-out", visitorHandler.CheckOut)
			}

			events := protected.Group("/events")
			{
				events.GET("", eventHandler.ListEvents)
				events.GET("/:id", eventHandler.GetEvent)
				events.POST("/:id/scan", eventHandler.ScanEvent)

				manage := events.Group("")
				manage.Use(middleware.RequireRole(jwt.RoleAdmin, jwt.RoleOperator))
				{
					manage.POST("", eventHandler.CreateEvent)
					manage.PATCH("/:id/close", eventHandler.CloseEvent)
					manage.DELETE("/:id", eventHandler.DeleteEvent)
				}
			}
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
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

	if cronService != nil {
		cronService.Stop()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Websockets are hijacked and not covered by Shutdown
	stopHub()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close redis client")
		}
	}

	logger.Info("Server exited successfully")
}

// allowsAnyOrigin reports whether the CORS origin list is the wildcard
func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		// Add user context if available
		if userID, exists := c.Get("user_id"); exists {
			fields["user_id"] = userID
		}
		if roles, exists := c.Get("roles"); exists {
			fields["roles"] = roles
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
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB, hub *live.Hub) gin.HandlerFunc {
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

		c.JSON(http.StatusOK, gin.H{
			"status":       "healthy",
			"database":     "healthy",
			"live_clients": hub.ClientCount(),
			"version":      version,
			"timestamp":    time.Now().Unix(),
		})
	}
}
