// Project service: projects, memberships, invitations, role resolution.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/orastack/taskboard-backend/internal/api/handlers"
	"github.com/orastack/taskboard-backend/internal/api/middleware"
	"github.com/orastack/taskboard-backend/internal/client"
	"github.com/orastack/taskboard-backend/internal/config"
	"github.com/orastack/taskboard-backend/internal/cron"
	"github.com/orastack/taskboard-backend/internal/db"
	"github.com/orastack/taskboard-backend/internal/email"
	"github.com/orastack/taskboard-backend/internal/notification"
	"github.com/orastack/taskboard-backend/internal/repository"
	"github.com/orastack/taskboard-backend/internal/seed"
	"github.com/orastack/taskboard-backend/internal/service"
)

func main() {
	// ============================================
	// Load environment variables
	// ============================================
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// ============================================
	// Run Database Migrations FIRST
	// ============================================
	log.Println("🔄 Running database migrations...")
	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database migrations completed")

	// ============================================
	// Initialize PostgreSQL
	// ============================================
	postgres, err := db.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to PostgreSQL: %v", err)
	}
	defer postgres.Close()

	repos := repository.NewPgRepositories(postgres.Pool, postgres.SQLX)
	log.Println("📦 Repositories initialized")

	// ============================================
	// Initialize Email Service (optional)
	// ============================================
	var notifier service.Notifier = notification.NoopNotifier{}
	if cfg.SMTPHost != "" {
		emailSvc := email.NewService(&email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			UseTLS:   cfg.SMTPUseTLS,
		})
		notifier = notification.NewEmailNotifier(emailSvc)
		log.Println("📧 Email service initialized")
	} else {
		log.Println("⚠️  Email not configured (SMTP_HOST not set)")
	}

	// ============================================
	// Seed Data (for development)
	// ============================================
	if cfg.Environment != "production" {
		seed.SeedData(repos)
	}

	// ============================================
	// Initialize Services
	// ============================================
	userClient := client.NewUserClient(cfg.UserServiceURL, cfg.JWTSecret)
	taskClient := client.NewTaskClient(cfg.TaskServiceURL, cfg.JWTSecret)

	services := service.NewProjectServices(service.ProjectDeps{
		Repos:       repos,
		Notifier:    notifier,
		TaskEmitter: taskClient,
		FrontendURL: cfg.FrontendURL,
	})
	log.Println("✨ Services initialized")

	h := handlers.NewProjectHandlers(services, userClient)

	// ============================================
	// Cron Scheduler
	// ============================================
	invitationTTL := time.Duration(cfg.InvitationTTLDays) * 24 * time.Hour
	scheduler := cron.NewProjectScheduler(services.Member, invitationTTL)
	scheduler.Start()
	defer scheduler.Stop()

	// ============================================
	// Router
	// ============================================
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "projects",
			"timestamp": time.Now(),
			"database":  "connected",
			"email":     cfg.SMTPHost != "",
		})
	})

	api := r.Group("/api")
	api.Use(middleware.Auth(cfg.JWTSecret))
	{
		projects := api.Group("/projects")
		{
			projects.POST("", h.Project.Create)
			projects.GET("", h.Project.List)
			projects.POST("/join/:invitationCode", h.Member.JoinByCode)

			projects.GET("/:projectId", h.Project.Get)
			projects.PUT("/:projectId", h.Project.Update)
			projects.DELETE("/:projectId", h.Project.Delete)

			projects.POST("/:projectId/invite", h.Member.Invite)
			projects.GET("/:projectId/members", h.Member.List)
			projects.PUT("/:projectId/members/:memberId/role", h.Member.UpdateRole)
			projects.DELETE("/:projectId/members/:memberId", h.Member.Remove)
			projects.POST("/:projectId/leave", h.Member.Leave)

			// role lookup for the task service's permission bridge
			projects.GET("/:projectId/members/:memberId/role", h.Member.GetRole)
		}
	}

	// ============================================
	// HTTP Server with graceful shutdown
	// ============================================
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Project service listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("❌ Forced shutdown: %v", err)
	}
	log.Println("👋 Project service stopped")
}
