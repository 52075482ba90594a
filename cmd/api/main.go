package main

import (
	"context"
	"log"
	"time"

	config "github.com/anjiri1684/property_manager/configs"
	"github.com/anjiri1684/property_manager/database"
	"github.com/anjiri1684/property_manager/handlers"
	"github.com/anjiri1684/property_manager/jobs"
	"github.com/anjiri1684/property_manager/middleware"
	"github.com/anjiri1684/property_manager/payments"
	"github.com/anjiri1684/property_manager/routes"
	"github.com/anjiri1684/property_manager/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	database.ConnectDB()
	database.Migrate()
	database.ConnectRedis(context.Background())

	var tokenStore payments.TokenStore
	if database.RDB != nil {
		tokenStore = payments.NewRedisTokenStore(database.RDB)
	}
	gateway := payments.NewMpesaClient(payments.OptionsFromEnv(), tokenStore)
	engine := services.NewEngine(database.DB, gateway)

	c := cron.New()
	c.AddFunc("@every 30m", jobs.ReportStalePendingPayments(engine.Ledger(), config.ConfigDuration("STALE_PAYMENT_AFTER", 24*time.Hour)))
	c.AddFunc("@hourly", jobs.ReconcileTenantRoles(engine.Occupancy()))
	go c.Start()
	log.Println("✅ Cron jobs for payments and occupancy scheduled successfully.")

	app := fiber.New(fiber.Config{
		Prefork:       false,
		AppName:       "Property Manager",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		MaxAge:       86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Africa/Nairobi",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	h := handlers.New(engine)
	protected := middleware.Protected()

	routes.PublicRoutes(app)
	routes.PaymentRoutes(app, h, protected)
	routes.UnitRoutes(app, h, protected)

	port := config.ConfigOrDefault("PORT", "8080")
	log.Printf("✅ Server is running on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
