package main

import (
	"net/http"

	"taskpro/internal/config"
	"taskpro/internal/files"
	"taskpro/internal/handlers"
	"taskpro/internal/logger"
	"taskpro/internal/routing"
	"taskpro/internal/storage"
	"taskpro/internal/user"
	"taskpro/internal/webhooks"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
)

func main() {
	sugarLogger, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}

	c := config.NewConfig()
	err = config.Init(c)
	if err != nil {
		sugarLogger.Fatalf("Failed to initialize config: %v", err)
	}

	user.JwtKey = []byte(c.SecretKey)

	s, err := storage.NewPostgresStorage(c.DBConnection)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to database: %v", err)
	}

	fileStore, err := files.NewStore(c.UploadDir, c.MaxUploadBytes, c.AllowedExt)
	if err != nil {
		sugarLogger.Fatalf("Failed to initialize upload store: %v", err)
	}

	notifier := webhooks.NewNotifier(c.WebhookTaskMutation, c.WebhookStatusChange, sugarLogger)

	ctrl := handlers.NewController(c, s, sugarLogger, fileStore, notifier)

	r := chi.NewRouter()

	routing.InitMiddleware(r, c, ctrl)
	routing.Routing(r, ctrl)

	server := routing.CreateServer(c, r, sugarLogger)

	// purge old audit rows every night at 03:00
	cron := cron.New()
	_, err = cron.AddFunc("0 3 * * *", func() {
		removed, err := s.PurgeAudit(c.AuditRetentionDays)
		if err != nil {
			sugarLogger.Errorf("Audit purge failed: %v", err)
			return
		}
		if removed > 0 {
			sugarLogger.Infof("Audit purge removed %d rows", removed)
		}
	})
	if err != nil {
		sugarLogger.Fatalf("Failed to schedule audit purge: %v", err)
	}
	cron.Start()
	defer cron.Stop()

	go func() {
		sugarLogger.Infof("Starting server on %s", c.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugarLogger.Fatalf("Server failed: %v", err)
		}
	}()

	ctrl.HandleGracefulShutdown(server)
}
