// @title           Vintara Tours Proposal API
// @version         1.0
// @description     Backend for proposal negotiation: admins draft and send priced proposals, clients accept or decline via shareable links, and declined proposals can be countered in the same negotiation chain.
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/vintaratours/proposals-backend/internal/auth"
	"github.com/vintaratours/proposals-backend/internal/notify"
	"github.com/vintaratours/proposals-backend/internal/proposals"
	"github.com/vintaratours/proposals-backend/pkg/database"
	"github.com/vintaratours/proposals-backend/pkg/models"
)

func main() {
	_ = godotenv.Load()

	db := database.Init()
	if err := db.AutoMigrate(
		&models.User{}, &models.Brand{}, &models.Proposal{},
		&models.ProposalItem{}, &models.ProposalActivity{},
	); err != nil {
		log.Fatal("migration failed:", err)
	}

	// Make sure the fallback brand exists for client pages and emails.
	brand := models.DefaultBrand
	if err := db.Where("slug = ?", brand.Slug).FirstOrCreate(&brand).Error; err != nil {
		log.Fatal("brand seed failed:", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
	})

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api := app.Group("/api")

	// Auth
	authH := auth.NewHandler(db)
	api.Post("/signup", authH.Signup)
	api.Post("/login", authH.Login)
	api.Get("/me", auth.RequireAuth(), authH.Me)

	// Mailer (best-effort client notifications)
	mailer := notify.NewServiceFromEnv()
	if !mailer.IsConfigured() {
		log.Println("SMTP not configured; client emails will be skipped")
	}

	// Proposals, admin/staff surface
	propH := proposals.NewHandler(db, mailer)
	api.Post("/proposals", auth.RequireAuth(), propH.Create)
	api.Get("/proposals", auth.RequireAuth(), propH.List)
	api.Get("/proposals/:id", auth.RequireAuth(), propH.Get)
	api.Post("/proposals/:id/send", auth.RequireAuth(), propH.Send)
	// Counter endpoints are admin-only
	api.Post("/proposals/:id/counter", auth.RequireAuth(), auth.RequireRole(string(models.RoleAdmin)), propH.CreateCounter)
	api.Get("/proposals/:id/counter", auth.RequireAuth(), auth.RequireRole(string(models.RoleAdmin)), propH.GetNegotiation)

	// Client-facing surface: opaque token only, no auth
	app.Get("/proposals/:token", propH.ClientView)
	app.Post("/proposals/:token/accept", propH.ClientAccept)
	app.Post("/proposals/:token/decline", propH.ClientDecline)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	log.Println("Server running on :" + port)
	log.Fatal(app.Listen(":" + port))
}
