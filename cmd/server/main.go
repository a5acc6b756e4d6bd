package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rendafacil/movements-service/internal/client"
	"github.com/rendafacil/movements-service/internal/config"
	"github.com/rendafacil/movements-service/internal/events"
	"github.com/rendafacil/movements-service/internal/handler"
	"github.com/rendafacil/movements-service/internal/middleware"
	"github.com/rendafacil/movements-service/internal/repository"
	"github.com/rendafacil/movements-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	configPath := os.Getenv("MOVEMENTS_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := createLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize repositories
	movementsRepo := repository.NewMovementsRepository(cfg.Firebase, logger)

	// Initialize clients
	b3Client := client.NewB3Client(cfg.B3, logger)
	authClient := client.NewAuthClient(cfg.AuthService.URL, cfg.AuthService.Timeout, logger)

	// Initialize event publishing (nil when disabled)
	producer := events.NewProducer(cfg.Kafka, logger)
	defer producer.Close()

	// Initialize services
	movementsService := service.NewMovementsService(movementsRepo, b3Client, producer, logger)

	// Initialize handlers
	movementsHandler := handler.NewMovementsHandler(movementsService, logger)

	// Set up HTTP server with Gin
	router := setupRouter(movementsHandler, authClient, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited properly")
}

func createLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

func setupRouter(
	movementsHandler *handler.MovementsHandler,
	authClient *client.AuthClient,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()

	// Use middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// API routes
	v1 := router.Group("/api/v1")
	{
		movements := v1.Group("/movements")
		{
			movements.Use(middleware.AuthMiddleware(authClient, logger))
			movements.GET("", movementsHandler.GetMovements)
		}
	}
	return router
}
