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

	"github.com/docuflow/backend/internal/application/services"
	"github.com/docuflow/backend/internal/config"
	"github.com/docuflow/backend/internal/infrastructure/database"
	"github.com/docuflow/backend/internal/infrastructure/directory"
	"github.com/docuflow/backend/internal/infrastructure/persistence"
	"github.com/docuflow/backend/internal/interfaces/middleware"
	"github.com/docuflow/backend/internal/interfaces/rest"
)

func main() {
	cfg := config.Load()

	conn, err := database.GetInstance()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	db := conn.DB()
	txManager := persistence.NewTransactionManager(conn)

	documentRepo := persistence.NewDocumentRepository(db)
	workflowRepo := persistence.NewWorkflowRepository(db)
	expiryRepo := persistence.NewExpiryRepository(db)
	endpointRepo := persistence.NewEndpointRepository(db)
	notificationRepo := persistence.NewNotificationRepository(db)

	bus := services.NewEventBus()
	notificationSvc := services.NewNotificationService(notificationRepo, txManager, bus)

	resolver := directory.NewEnvResolver(os.Getenv("ROLE_ASSIGNEES"))

	documentSvc := services.NewDocumentService(documentRepo, txManager, notificationSvc, cfg)
	workflowSvc := services.NewWorkflowService(workflowRepo, documentRepo, txManager, notificationSvc, resolver, cfg)
	expirySvc := services.NewExpiryService(expiryRepo, documentRepo, txManager, notificationSvc, cfg)
	endpointSvc := services.NewEndpointService(endpointRepo, txManager, cfg)

	governor := services.NewCircuitGovernor(endpointRepo, txManager, cfg)
	dispatcher := services.NewWebhookDispatcher(endpointRepo, governor, txManager, cfg)
	dispatcher.Register(bus)
	syncSvc := services.NewIntegrationSyncService(endpointRepo, governor, txManager, cfg)

	scheduler := services.NewSchedulerService(expirySvc, workflowSvc, syncSvc, cfg)
	go scheduler.Start()

	router := gin.Default()
	router.Use(middleware.Cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"server": "golang",
		})
	})

	documentHandler := rest.NewDocumentHandler(documentSvc)
	workflowHandler := rest.NewWorkflowHandler(workflowSvc)
	expiryHandler := rest.NewExpiryHandler(expirySvc)
	endpointHandler := rest.NewEndpointHandler(endpointSvc)
	notificationHandler := rest.NewNotificationHandler(notificationSvc)

	requireAuth := middleware.RequireAuth()
	requireAdmin := middleware.RequireAdmin()

	api := router.Group("/api")
	api.Use(requireAuth)
	{
		documents := api.Group("/documents")
		{
			documents.POST("", documentHandler.Create)
			documents.GET("", documentHandler.List)
			documents.GET("/statistics", documentHandler.Statistics)
			documents.GET("/:id", documentHandler.Get)
			documents.POST("/:id/archive", documentHandler.Archive)
			documents.POST("/:id/unarchive", documentHandler.Unarchive)
			documents.DELETE("/:id", documentHandler.Delete)
			documents.POST("/:id/restore", documentHandler.Restore)
			documents.POST("/:id/versions", documentHandler.CreateVersion)
			documents.GET("/:id/versions", documentHandler.ListVersions)
			documents.GET("/:id/expiry", expiryHandler.ListByDocument)
		}

		folders := api.Group("/folders")
		{
			folders.POST("", documentHandler.CreateFolder)
			folders.GET("", documentHandler.ListFolders)
			folders.PUT("/:id/parent", documentHandler.MoveFolder)
		}

		workflows := api.Group("/workflows")
		{
			workflows.POST("", workflowHandler.CreateWorkflow)
			workflows.GET("/:id", workflowHandler.GetWorkflow)
			workflows.PUT("/:id/status", requireAdmin, workflowHandler.SetWorkflowStatus)
		}

		instances := api.Group("/instances")
		{
			instances.POST("", workflowHandler.StartInstance)
			instances.GET("/overdue", workflowHandler.ListOverdue)
			instances.GET("/statistics", workflowHandler.Statistics)
			instances.GET("/:id", workflowHandler.GetInstance)
			instances.GET("/:id/steps", workflowHandler.ListSteps)
			instances.POST("/:id/steps/:stepId/action", workflowHandler.ActOnStep)
			instances.POST("/:id/cancel", workflowHandler.CancelInstance)
		}

		expiry := api.Group("/expiry")
		{
			expiry.POST("", expiryHandler.Track)
			expiry.GET("/summary", expiryHandler.Summary)
			expiry.GET("/statistics", expiryHandler.Statistics)
			expiry.GET("/:id", expiryHandler.Get)
			expiry.POST("/:id/renew", expiryHandler.Renew)
			expiry.POST("/:id/expire", expiryHandler.MarkExpired)
		}

		webhooks := api.Group("/webhooks", requireAdmin)
		{
			webhooks.POST("", endpointHandler.CreateWebhook)
			webhooks.GET("/:id", endpointHandler.GetWebhook)
			webhooks.PUT("/:id/enabled", endpointHandler.SetWebhookEnabled)
		}

		integrations := api.Group("/integrations", requireAdmin)
		{
			integrations.POST("", endpointHandler.CreateIntegration)
			integrations.GET("/:id", endpointHandler.GetIntegration)
			integrations.PUT("/:id/enabled", endpointHandler.SetIntegrationEnabled)
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Server listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("⏹️  Shutting down...")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Forced shutdown: %v", err)
	}

	if err := conn.Close(); err != nil {
		log.Printf("⚠️ Failed to close database: %v", err)
	}
	log.Println("✅ Shutdown complete")
}
