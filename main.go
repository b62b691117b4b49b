package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quest-battle-service/config"
	"quest-battle-service/handlers"
	"quest-battle-service/middleware"
	"quest-battle-service/models"
	"quest-battle-service/services"
	"quest-battle-service/utils"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger := services.NewXPLedger()
	badgeService := services.NewBadgeService(db)
	progressionService := services.NewProgressionService(db, ledger)
	resolutionService := services.NewResolutionService(db, ledger)
	resolutionService.Badges = badgeService
	resolutionService.SweepConcurrency = cfg.SweepConcurrency
	resolutionService.SweepBatchSize = cfg.SweepBatchSize

	if cfg.R2.Enabled() {
		store, err := utils.NewR2Store(ctx, utils.R2Config{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			AccessKeySecret: cfg.R2.AccessKeySecret,
			Bucket:          cfg.R2.BucketName,
			Endpoint:        cfg.R2.Endpoint,
		})
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		resolutionService.Archiver = services.NewBucketArchiver(store)
		log.Printf("✅ Sweep reports archived to R2 bucket %s", cfg.R2.BucketName)
	}

	var sched gocron.Scheduler
	if cfg.SweepInterval > 0 {
		sched, err = resolutionService.StartResolutionSweep(ctx, cfg.SweepInterval)
		if err != nil {
			log.Fatal("failed to start sweep scheduler:", err)
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      "quest-battle-service",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // a large sweep can take a while
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 🔐 Gateway-forwarded routes: gateway token + user context
	secured := app.Group("/s",
		middleware.BearerTokenMiddleware("GATEWAY_AUTH", cfg.GatewayToken),
		middleware.UserContextMiddleware(),
	)
	handlers.SetupBattleRoutes(secured, resolutionService, cfg.OperatorRoles)
	handlers.SetupProgressionRoutes(secured, progressionService, badgeService, cfg.OperatorRoles)

	// ⏰ External scheduler
	handlers.SetupCronRoutes(app, resolutionService, cfg.CronSecret)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ CORS configured for origins: %s", cfg.AllowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			log.Printf("scheduler shutdown: %v", err)
		}
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
