package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/events"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/gateway"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/handler"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/idempotency"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/ledger"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/pricing"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/repository"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/service"
	"github.com/scootsmagoo/filtersfast-next-sub004/pkg/config"
	"github.com/scootsmagoo/filtersfast-next-sub004/pkg/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.Info("Service configuration",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.String("order_table", cfg.OrderTableName),
		zap.String("gift_card_table", cfg.GiftCardTableName))

	// Initialize components
	dynamoClient, err := repository.NewDynamoDBClient(cfg)
	if err != nil {
		log.Fatal("Failed to create DynamoDB client:", err)
	}

	guard, err := idempotency.New(cfg.IdempotencyDBPath, cfg.IdempotencyRetention)
	if err != nil {
		log.Fatal("Failed to open idempotency store:", err)
	}
	defer guard.Close()

	producer := events.NewSettlementProducer(cfg.KafkaBrokers, logger)
	defer producer.Close()

	specs, err := cfg.ParseGateways()
	if err != nil {
		log.Fatal("Failed to parse gateway config:", err)
	}
	gateways := make([]gateway.Gateway, 0, len(specs))
	for _, spec := range specs {
		gateways = append(gateways, gateway.NewHTTPBackend(spec.Name, spec.Endpoint, spec.APIKey, cfg.GatewayTimeout))
	}
	router := gateway.NewRouter(gateways, cfg.GatewayTimeout, logger)
	logger.Info("Payment gateways configured", zap.Strings("gateways", router.Names()))

	orderRepo := repository.NewOrderRepository(dynamoClient, cfg.OrderTableName)
	cardRepo := repository.NewGiftCardRepository(dynamoClient, cfg.GiftCardTableName, logger)
	cardLedger := ledger.NewLedger(cardRepo, logger)
	reconciler := pricing.NewReconciler(logger)
	settlementService := service.NewSettlementService(reconciler, cardLedger, router, orderRepo, producer, logger)
	paymentHandler := handler.NewPaymentHandler(settlementService, guard, logger)

	// Expired idempotency records are swept in the background.
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed, err := guard.Sweep(); err != nil {
					logger.Error("Idempotency sweep failed", zap.Error(err))
				} else if removed > 0 {
					logger.Info("Idempotency records swept", zap.Int("removed", removed))
				}
			case <-sweepDone:
				return
			}
		}
	}()

	// Setup Gin Router
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(logger))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.RequireHTTPS(cfg.IsProduction()))

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	// Routes
	v1 := engine.Group("/api/v1")
	{
		v1.POST("/payments/process", rateLimiter.Middleware(), paymentHandler.ProcessPayment)
		v1.GET("/orders/:id", paymentHandler.GetOrder)
		v1.GET("/health", func(c *gin.Context) {
			status := gin.H{
				"status":   "healthy",
				"service":  "payment-settlement",
				"port":     cfg.Port,
				"gateways": router.Names(),
			}
			if err := producer.HealthCheck(); err != nil {
				status["kafka"] = "unhealthy"
				c.JSON(503, status)
				return
			}
			status["kafka"] = "healthy"
			c.JSON(200, status)
		})
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	close(sweepDone)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}
