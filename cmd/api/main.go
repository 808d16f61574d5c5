package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stayrewards/coupon-engine/internal/cache"
	"github.com/stayrewards/coupon-engine/internal/config"
	"github.com/stayrewards/coupon-engine/internal/handler"
	"github.com/stayrewards/coupon-engine/internal/qrtoken"
	"github.com/stayrewards/coupon-engine/internal/repository"
	"github.com/stayrewards/coupon-engine/internal/service"
	"github.com/stayrewards/coupon-engine/internal/validator"
	"github.com/stayrewards/coupon-engine/pkg/database"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	ctx := context.Background()

	// Initialize database pool with retry and apply the schema
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to apply database schema")
	}

	// QR codec with the configured key ring
	codec, err := qrtoken.NewCodec(cfg.QR.KeyRing(), cfg.QR.ActiveVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize qr codec")
	}

	// Optional redis template cache
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, template cache disabled")
			redisClient = nil
		}
	}

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Coupon Engine",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New())

	validate := validator.New()

	// Repositories
	couponRepo := repository.NewCouponRepository(pool)
	ucRepo := repository.NewUserCouponRepository(pool)
	eventRepo := repository.NewRedemptionEventRepository(pool)

	// Read-through cache in front of catalog reads; assignment reads
	// bypass it because they lock the row.
	couponCache := cache.NewCouponCache(redisClient, couponRepo,
		time.Duration(cfg.Redis.TTLSeconds)*time.Second)

	// Services
	catalogSvc := service.NewCatalogService(couponRepo, couponCache)
	assignSvc := service.NewAssignmentService(pool, couponRepo, ucRepo, codec)
	redeemSvc := service.NewRedemptionService(pool, couponCache, ucRepo, eventRepo, codec)
	availSvc := service.NewAvailabilityService(couponRepo, ucRepo, eventRepo, codec)

	// Handlers
	catalogHandler := handler.NewCatalogHandler(catalogSvc, validate)
	distHandler := handler.NewDistributionHandler(assignSvc, validate)
	redeemHandler := handler.NewRedemptionHandler(redeemSvc, validate)
	availHandler := handler.NewAvailabilityHandler(availSvc)
	healthHandler := handler.NewHealthHandler(pool)

	app.Get("/health", healthHandler.Check)

	api := app.Group("/api/coupons")
	api.Get("/validate/:token", redeemHandler.Validate)
	api.Get("/available", availHandler.Available)
	api.Get("/my-coupons", availHandler.MyCoupons)
	api.Get("/analytics/stats", availHandler.Stats)
	api.Get("/analytics/data", availHandler.AnalyticsData)
	api.Post("/", catalogHandler.CreateCoupon)
	api.Get("/", catalogHandler.ListCoupons)
	api.Get("/:id", catalogHandler.GetCoupon)
	api.Get("/:id/assignments", availHandler.CouponAssignments)
	api.Get("/:id/redemptions", availHandler.CouponRedemptions)
	api.Patch("/:id/status", catalogHandler.UpdateStatus)
	api.Post("/distribute", distHandler.Distribute)
	api.Post("/redeem", redeemHandler.Redeem)
	api.Post("/user-coupons/:id/revoke", redeemHandler.Revoke)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	if redisClient != nil {
		_ = redisClient.Close()
	}
	pool.Close()
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
