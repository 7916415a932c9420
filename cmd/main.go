package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"schematic-service/internal/config"
	"schematic-service/internal/handlers"
	"schematic-service/internal/logger"
	"schematic-service/internal/metrics"
	"schematic-service/internal/middleware"
	"schematic-service/internal/models"
	"schematic-service/internal/renderer"
	"schematic-service/internal/repository"
	"schematic-service/internal/services"
	"schematic-service/internal/storage"
)

func main() {
	cfg := InitConfig()
	logg := InitLogger(cfg)
	defer logg.Sync()

	db := ConnectDatabase(cfg, logg)
	MigrateDatabase(db, logg)

	paths, err := storage.NewPaths(cfg.StorageRoot)
	if err != nil {
		logg.Fatal("storage root initialization failed", "error", err)
	}

	rendererClient := renderer.New(cfg.RenderServerURL, cfg.RenderTimeout, logg)
	rendererClient.StartReadinessProbe(5 * time.Second)

	collector := metrics.NewCollector()
	fetcher := storage.NewFetcher(paths, rendererClient, collector, logg)
	repo := repository.NewSchematicRepository(db)
	service := services.NewSchematicService(repo, rendererClient, fetcher, paths, collector, logg)

	auth := middleware.NewAuthMiddleware(cfg.JWTSecret, logg)
	h := handlers.NewSchematicHandler(service, logg)

	app := fiber.New(fiber.Config{
		BodyLimit: 100 * 1024 * 1024,
	})
	app.Use(middleware.RequestLogger(logg))

	// Register Prometheus metrics endpoint
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Set up schematic routes; /upload and /search must precede /:id
	api := app.Group("/api/schematics")
	api.Post("/upload", auth.RequireAuth(), h.Upload)
	api.Get("/search", auth.OptionalAuth(), h.Search)
	api.Get("/", auth.OptionalAuth(), h.Search)
	api.Get("/:id", auth.OptionalAuth(), h.Get)
	api.Put("/:id", auth.RequireAuth(), h.Update)
	api.Delete("/:id", auth.RequireAuth(), h.Delete)
	api.Get("/:id/front-view", auth.OptionalAuth(), h.FrontView)
	api.Get("/:id/side-view", auth.OptionalAuth(), h.SideView)
	api.Get("/:id/top-view", auth.OptionalAuth(), h.TopView)
	api.Get("/:id/materials", auth.OptionalAuth(), h.Materials)
	api.Get("/:id/download", auth.OptionalAuth(), h.Download)

	app.Get("/swagger/*", swagger.HandlerDefault)

	// Liveness: the process is up
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	// Readiness: the renderer has answered its first probe
	app.Get("/ready", func(c *fiber.Ctx) error {
		select {
		case <-rendererClient.Ready():
			return c.SendStatus(fiber.StatusOK)
		default:
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}
	})

	port := cfg.AppPort
	if port == "" {
		port = "8080"
		logg.Info("defaulting port", "port", port)
	}
	logg.Info("server listening", "port", port)
	logg.Fatal("server stopped", "error", app.Listen(":"+port))
}

func InitConfig() *config.Config {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	return cfg
}

func InitLogger(cfg *config.Config) *logger.Logger {
	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Logger initialization failed: %v", err)
	}
	return logg
}

func ConnectDatabase(cfg *config.Config, logg *logger.Logger) *gorm.DB {
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		logg.Fatal("database connection failed", "error", err)
	}
	return db
}

func MigrateDatabase(db *gorm.DB, logg *logger.Logger) {
	if err := db.AutoMigrate(&models.Schematic{}); err != nil {
		logg.Fatal("database migration failed", "error", err)
	}
}
