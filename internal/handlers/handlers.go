// Package handlers contains the HTTP controller and its middleware.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"taskpro/internal/config"
	"taskpro/internal/files"
	"taskpro/internal/models"
	"taskpro/internal/storage"
	"taskpro/internal/user"
	"taskpro/internal/webhooks"

	"github.com/asaskevich/govalidator"
	"go.uber.org/zap"
)

// contextKey is a custom type.
type contextKey string

// UserIDKey carries the authenticated user id (0 for API-key access).
const UserIDKey contextKey = "User-ID"

// RoleKey carries the authenticated role ("api" for API-key access).
const RoleKey contextKey = "Role"

type Controller struct {
	conf           *config.Config
	storageService storage.StorageService
	logger         *zap.SugaredLogger
	fileStore      *files.Store
	notifier       *webhooks.Notifier
}

// NewController creates and returns a new instance of Controller using the
// provided configuration, storage, logger, file store and webhook notifier.
func NewController(conf *config.Config, storageService storage.StorageService, logger *zap.SugaredLogger, fileStore *files.Store, notifier *webhooks.Notifier) *Controller {
	con := &Controller{
		conf:           conf,
		storageService: storageService,
		logger:         logger,
		fileStore:      fileStore,
		notifier:       notifier,
	}

	return con
}

// HandleGracefulShutdown handles termination signals.
func (con *Controller) HandleGracefulShutdown(server *http.Server) {
	notifyCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	<-notifyCtx.Done()
	con.logger.Infof("Received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(con.conf.Timeout)*time.Second)
	defer cancel()

	go func() {
		if con.conf.DBConnection != "" {
			con.logger.Infof("Closing database connection...")
			if err := con.storageService.Close(); err != nil {
				con.logger.Errorf("Failed to close database connection: %v", err)
			}
		}
	}()

	con.logger.Infof("Shutting down gracefully...")
	if err := server.Shutdown(ctx); err != nil {
		con.logger.Infof("HTTP server shutdown error: %v", err)
	}

	con.logger.Infof("Server has been shut down.")
}

func (con *Controller) Debug(res http.ResponseWriter, formatString string, code int) {
	con.logger.Debugf(formatString)
	if code != http.StatusOK {
		http.Error(res, formatString, code)
	} else {
		res.WriteHeader(http.StatusOK)
	}
}

func (con *Controller) writeJSON(res http.ResponseWriter, code int, v any) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(code)
	if err := json.NewEncoder(res).Encode(v); err != nil {
		con.logger.Errorf("Failed to encode response: %v", err)
	}
}

// userID returns the authenticated user id from the request context.
func userID(req *http.Request) int64 {
	id, _ := req.Context().Value(UserIDKey).(int64)
	return id
}

// role returns the authenticated role from the request context.
func role(req *http.Request) string {
	r, _ := req.Context().Value(RoleKey).(string)
	return r
}

// audit records a mutation; failures are logged, never fatal.
func (con *Controller) audit(req *http.Request, action, entity string, entityID int64, detail map[string]any) {
	if err := con.storageService.Audit(userID(req), action, entity, entityID, detail); err != nil {
		con.logger.Warnf("audit write failed: %v", err)
	}
}

func (con *Controller) issueToken(res http.ResponseWriter, id int64, userRole string) {
	token, err := user.GenerateToken(id, userRole)
	if err != nil {
		http.Error(res, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	con.writeJSON(res, http.StatusOK, map[string]string{"token": token})
}

// Register handles the registration of a new user.
//
// Request Body:
// - A JSON object containing "name", "email" and "password".
//
// Response:
// - 200 OK: Account created, returns {"token": ...}.
// - 400 Bad Request: Missing fields or invalid email.
// - 409 Conflict: The email is already registered.
// - 500 Internal Server Error: Hashing or storage failure.
func (con *Controller) Register() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		var body models.RegisterRequest
		err := json.NewDecoder(req.Body).Decode(&body)
		body.Name = strings.TrimSpace(body.Name)
		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		if err != nil || body.Name == "" || body.Email == "" || body.Password == "" {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}
		if !govalidator.IsEmail(body.Email) {
			con.Debug(res, "Bad request: invalid email", http.StatusBadRequest)
			return
		}

		taken, err := con.storageService.EmailTaken(body.Email)
		if err != nil {
			con.Debug(res, "(Register) Internal server error", http.StatusInternalServerError)
			return
		}
		if taken {
			con.Debug(res, "Conflict: Email already registered", http.StatusConflict)
			return
		}

		hashedPassword, err := con.storageService.HashPassword(body.Password)
		if err != nil {
			con.Debug(res, "(Register) Internal server error", http.StatusInternalServerError)
			return
		}

		id, err := con.storageService.CreateUser(body.Name, body.Email, hashedPassword, models.RoleMember)
		if err != nil {
			con.Debug(res, "(Register) Internal server error", http.StatusInternalServerError)
			return
		}

		if aerr := con.storageService.Audit(id, "register", "user", id, map[string]any{"email": body.Email}); aerr != nil {
			con.logger.Warnf("audit write failed: %v", aerr)
		}

		con.issueToken(res, id, models.RoleMember)
	}
}

// Login handles user authentication by verifying email and password.
//
// Request Body:
// - A JSON object containing "email" and "password".
//
// Response:
// - 200 OK: Returns {"token": ...}.
// - 400 Bad Request: Missing email/password.
// - 401 Unauthorized: Unknown email, inactive account or wrong password.
func (con *Controller) Login() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		var body models.LoginRequest
		err := json.NewDecoder(req.Body).Decode(&body)
		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		if err != nil || body.Email == "" || body.Password == "" {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}

		u, err := con.storageService.GetUserByEmail(body.Email)
		if err != nil {
			con.Debug(res, "Unauthorized: Invalid email/password", http.StatusUnauthorized)
			return
		}
		if !con.storageService.CheckPasswordHash(body.Password, u.PasswordHash) {
			con.Debug(res, "Unauthorized: Invalid email/password", http.StatusUnauthorized)
			return
		}

		if aerr := con.storageService.Audit(u.ID, "login", "user", u.ID, map[string]any{"email": u.Email}); aerr != nil {
			con.logger.Warnf("audit write failed: %v", aerr)
		}

		con.issueToken(res, u.ID, u.Role)
	}
}

// PanicRecoveryMiddleware recovers the application after a panic.
func (con *Controller) PanicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				con.logger.Errorf("Error recovering from panic: %v", err)
				http.Error(res, "Error recovering from panic", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(res, req)
	})
}

// AuthenticateMiddleware validates the JWT (or the read-only API key)
// and adds the user id and role to the context.
func (con *Controller) AuthenticateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		openEndpoints := map[string]bool{
			"/register": true,
			"/login":    true,
			"/healthz":  true,
			"/readyz":   true,
		}

		if openEndpoints[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			// A configured API key grants read-only access.
			apiKey := r.Header.Get("X-API-Key")
			if r.Method == http.MethodGet && con.conf.APIKey != "" && apiKey == con.conf.APIKey {
				ctx := context.WithValue(r.Context(), UserIDKey, int64(0))
				ctx = context.WithValue(ctx, RoleKey, "api")
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, "Unauthorized: Invalid token format", http.StatusUnauthorized)
			return
		}

		claims, err := user.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
		ctx = context.WithValue(ctx, RoleKey, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdminMiddleware rejects non-admin callers.
func (con *Controller) RequireAdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if role(r) != models.RoleAdmin {
			http.Error(w, "Forbidden: admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Healthz is the liveness probe.
//
// Response:
// - 200 OK: Always, while the process serves requests.
func (con *Controller) Healthz() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		con.writeJSON(res, http.StatusOK, map[string]bool{"ok": true})
	}
}

// Readyz is the readiness probe; it pings the database.
//
// Response:
// - 200 OK: The database answers.
// - 503 Service Unavailable: The database ping failed.
func (con *Controller) Readyz() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		if err := con.storageService.Ping(); err != nil {
			con.logger.Errorf("Database connection error: %v", err)
			con.writeJSON(res, http.StatusServiceUnavailable, map[string]string{"db": "fail", "error": err.Error()})
			return
		}
		con.writeJSON(res, http.StatusOK, map[string]string{"db": "ok"})
	}
}
