package routing

import (
	"net/http"
	"time"

	"taskpro/internal/config"
	"taskpro/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func InitMiddleware(r *chi.Mux, conf *config.Config, ctrl *handlers.Controller) {
	r.Use(ctrl.PanicRecoveryMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(ctrl.AuthenticateMiddleware)
}

func Routing(r *chi.Mux, ctrl *handlers.Controller) {
	r.Post("/register", ctrl.Register())
	r.Post("/login", ctrl.Login())
	r.Get("/healthz", ctrl.Healthz())
	r.Get("/readyz", ctrl.Readyz())

	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks", ctrl.ListTasks())
		r.Post("/tasks", ctrl.CreateTask())
		r.Get("/tasks/{id}", ctrl.GetTask())
		r.Put("/tasks/{id}", ctrl.UpdateTask())
		r.Delete("/tasks/{id}", ctrl.DeleteTask())
		r.Post("/tasks/{id}/status", ctrl.UpdateTaskStatus())
		r.Post("/tasks/{id}/tags", ctrl.AddTag())
		r.Delete("/tasks/{id}/tags/{tagID}", ctrl.RemoveTag())
		r.Post("/tasks/{id}/comments", ctrl.AddComment())
		r.Post("/tasks/{id}/attachments", ctrl.UploadAttachment())
		r.Get("/attachments/{id}", ctrl.DownloadAttachment())
		r.Get("/stats", ctrl.TaskStats())
		r.Get("/users", ctrl.ListUsers())
		r.Get("/export/tasks.csv", ctrl.ExportTasksCSV())
		r.With(ctrl.RequireAdminMiddleware).Get("/audit", ctrl.ListAudit())
	})
}

func CreateServer(c *config.Config, handler http.Handler, logger *zap.SugaredLogger) *http.Server {
	return &http.Server{
		Addr:              c.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 20 * time.Second,
	}
}
