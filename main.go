// api/main.go
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

	"crewportal/api/catalog"
	"crewportal/api/database"
	"crewportal/api/handlers"
	"crewportal/api/middleware"
	"crewportal/api/progress"
	"crewportal/api/store"
	"crewportal/api/utils"
)

func main() {
	// Load .env file at the very start
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Initialize PostgreSQL Database (users + visit ledger) ---
	dbClient, err := database.NewPostgresDB()
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
	}
	defer dbClient.Close()

	// --- Initialize ClickHouse Database (visit audit stream) ---
	// The audit stream is optional: without ClickHouse the portal runs with
	// the engagement charts disabled.
	var auditStore *store.AuditStore
	chClient, err := database.NewClickHouseDB()
	if err != nil {
		log.Printf("ClickHouse unavailable, visit audit stream disabled: %v", err)
	} else {
		defer chClient.Close()
		auditStore = store.NewAuditStore(chClient)
	}

	// --- Initialize Stores ---
	userStore := store.NewUserStore(dbClient.DB)
	progressStore := store.NewProgressStore(dbClient.DB)

	// --- Initialize the Tracking Engine ---
	sections := catalog.Default()
	notifier := progress.NewNotifier()
	clock := progress.RealClock{}
	aggregator := progress.NewAggregator(progressStore, sections)

	// AuditSink is an interface; a typed-nil *AuditStore must not reach the
	// ledger or the nil checks inside stop working.
	var auditSink progress.AuditSink
	if auditStore != nil {
		auditSink = auditStore
	}
	ledger := progress.NewLedger(progressStore, sections, aggregator, notifier, auditSink, clock)
	gate := progress.NewGate(progressStore, aggregator, notifier, auditSink, clock)
	rollup := progress.NewRollup(progressStore, aggregator, clock)

	// --- Initialize Handlers ---
	authHandlers := handlers.NewAuthHandlers(userStore)
	progressHandlers := handlers.NewProgressHandlers(sections, ledger, aggregator, gate, notifier)
	adminHandlers := handlers.NewAdminHandlers(rollup, ledger, auditStore, utils.HiddenAccounts())

	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")
	{
		// Authentication Endpoints (no authentication required)
		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		// Protected Routes (require a valid JWT token)
		protected := api.Group("/")
		protected.Use(middleware.AuthRequired())
		{
			training := protected.Group("/training")
			{
				training.GET("/sections", progressHandlers.GetSections)
				training.POST("/visit", progressHandlers.RecordVisit)
				training.GET("/progress", progressHandlers.GetProgress)
				training.POST("/acknowledge", progressHandlers.SubmitAcknowledgement)
				training.GET("/stream", progressHandlers.StreamProgress)
			}

			admin := protected.Group("/admin")
			admin.Use(middleware.AdminRequired())
			{
				admin.GET("/fleet", adminHandlers.GetFleetSnapshot)
				admin.POST("/override-visit", adminHandlers.OverrideVisit)

				if auditStore != nil {
					stats := admin.Group("/stats")
					{
						stats.GET("/visit-counts", adminHandlers.GetVisitCountsOverTime)
						stats.GET("/average-dwell", adminHandlers.GetAverageDwell)
						stats.GET("/unique-visitors", adminHandlers.GetUniqueVisitorsOverTime)
						stats.GET("/top-sections", adminHandlers.GetTopSections)
					}
				}
			}
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Printf("Training portal API starting on http://localhost:%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Training portal API failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
