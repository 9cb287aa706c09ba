// Task service: task lifecycle, assignment, activity log. Membership is
// resolved through the project service's permission bridge.
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
	// Initialize Redis (optional, backs the role cache)
	// ============================================
	roleCache := client.NewMemoryRoleCache()
	if cfg.RedisURL != "" {
		redisDB, err := db.NewRedisDB(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (using in-memory role cache)", err)
		} else {
			defer redisDB.Close()
			roleCache = client.NewRedisRoleCache(redisDB.Client)
			log.Println("⚡ Redis role cache enabled")
		}
	}

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
	// Initialize Services
	// ============================================
	userClient := client.NewUserClient(cfg.UserServiceURL, cfg.JWTSecret)
	bridge := client.NewProjectClient(cfg.ProjectServiceURL, cfg.JWTSecret,
		time.Duration(cfg.RoleCacheTTL)*time.Second, roleCache)

	services := service.NewTaskServices(service.TaskDeps{
		Repos:  repos,
		Bridge: bridge,
	})
	log.Println("✨ Services initialized")

	h := handlers.NewTaskHandlers(services, userClient)

	// ============================================
	// Cron Scheduler
	// ============================================
	scheduler := cron.NewTaskScheduler(repos.TaskRepo, userClient, notifier)
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
			"service":   "tasks",
			"timestamp": time.Now(),
			"database":  "connected",
			"cache":     cfg.RedisURL != "",
			"email":     cfg.SMTPHost != "",
		})
	})

	api := r.Group("/api")
	api.Use(middleware.Auth(cfg.JWTSecret))
	{
		projects := api.Group("/projects/:projectId")
		{
			projects.POST("/tasks", h.Task.Create)
			projects.GET("/tasks", h.Task.List)
			projects.GET("/tasks/:taskId", h.Task.Get)
			projects.PATCH("/tasks/:taskId", h.Task.Update)
			projects.DELETE("/tasks/:taskId", h.Task.Delete)
			projects.PATCH("/tasks/:taskId/status", h.Task.ChangeStatus)
			projects.PATCH("/tasks/:taskId/assignee", h.Task.Assign)
			projects.GET("/tasks/:taskId/activity", h.Task.ListActivity)
			projects.GET("/activities", h.Task.ListProjectActivity)
		}
	}

	internal := r.Group("/internal")
	internal.Use(middleware.Auth(cfg.JWTSecret), middleware.RequireService())
	{
		internal.POST("/projects/:projectId/archive-tasks", h.Task.ArchiveProjectTasks)
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
		log.Printf("🚀 Task service listening on :%s", cfg.Port)
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
	log.Println("👋 Task service stopped")
}
