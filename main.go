package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wattstap-referral-service/config"
	"wattstap-referral-service/handlers"
	"wattstap-referral-service/middleware"
	"wattstap-referral-service/models"
	"wattstap-referral-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	settings, err := config.Load()
	if err != nil {
		log.Fatal("❌ configuration error: ", err)
	}

	db, err := gorm.Open(postgres.Open(settings.DatabaseURL), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Friendship{},
	); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	telegramAuth := services.NewTelegramAuthService(settings.TelegramBotToken, settings.InitDataMaxAgeSeconds)
	userService := services.NewUserService(db, settings.InitialWatts, settings.ReferralCodeLength)
	referralService := services.NewReferralService(db, settings.ReferralBonusWatts)
	tokenService := services.NewTokenService(settings.JWTSecret, settings.JWTExpirationSeconds)
	authService := services.NewAuthService(db, telegramAuth, userService, referralService, tokenService)

	app := fiber.New(fiber.Config{
		AppName: settings.AppName,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			message := err.Error()
			if code == fiber.StatusInternalServerError {
				log.Printf("[ERROR] %s %s: %v", c.Method(), c.Path(), err)
				if settings.IsProduction() {
					message = "An internal error occurred"
				}
				return c.Status(code).JSON(fiber.Map{
					"success": false,
					"error": fiber.Map{
						"code":    "INTERNAL_ERROR",
						"message": message,
					},
				})
			}
			return c.Status(code).JSON(fiber.Map{"error": message})
		},
	})

	app.Use(middleware.RequestID())
	app.Use(cors.New(cors.Config{
		AllowOrigins: settings.CORSOrigins,
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))

	handlers.SetupAuthRoutes(app, authService, settings.IsProduction())
	handlers.SetupSocialRoutes(app, db, tokenService, referralService, settings.TelegramBotUsername, settings.IsProduction())
	if !settings.IsProduction() {
		handlers.SetupDevRoutes(app, db)
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "healthy",
			"service":     settings.AppName,
			"version":     version,
			"environment": settings.AppEnv,
		})
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(":" + settings.Port); err != nil {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	log.Printf("✅ %s v%s running on port %s (env: %s)", settings.AppName, version, settings.Port, settings.AppEnv)

	<-ctx.Done()
	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
