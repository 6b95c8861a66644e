package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"taskpro/internal/config"
	"taskpro/internal/files"
	"taskpro/internal/mocks"
	"taskpro/internal/models"
	"taskpro/internal/storage"
	"taskpro/internal/user"
	"taskpro/internal/webhooks"

	"github.com/go-chi/chi/v5"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestController(mockStorage *mocks.MockStorageService) *Controller {
	logger := zap.NewNop().Sugar()
	return &Controller{
		conf:           config.NewConfig(),
		storageService: mockStorage,
		logger:         logger,
		notifier:       webhooks.NewNotifier("", "", logger),
	}
}

// taskRouter wires the handlers under their real routes so chi.URLParam
// resolves inside the tests.
func taskRouter(controller *Controller) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks", controller.ListTasks())
		r.Post("/tasks", controller.CreateTask())
		r.Get("/tasks/{id}", controller.GetTask())
		r.Put("/tasks/{id}", controller.UpdateTask())
		r.Post("/tasks/{id}/status", controller.UpdateTaskStatus())
		r.Delete("/tasks/{id}", controller.DeleteTask())
		r.Post("/tasks/{id}/tags", controller.AddTag())
		r.Delete("/tasks/{id}/tags/{tagID}", controller.RemoveTag())
		r.Post("/tasks/{id}/comments", controller.AddComment())
		r.Post("/tasks/{id}/attachments", controller.UploadAttachment())
		r.Get("/attachments/{id}", controller.DownloadAttachment())
		r.Get("/stats", controller.TaskStats())
		r.Get("/users", controller.ListUsers())
		r.Get("/export/tasks.csv", controller.ExportTasksCSV())
	})
	return r
}

func authed(req *http.Request, id int64, userRole string) *http.Request {
	ctx := context.WithValue(req.Context(), UserIDKey, id)
	ctx = context.WithValue(ctx, RoleKey, userRole)
	return req.WithContext(ctx)
}

func TestRegister_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)

	tests := []struct {
		name               string
		body               string
		mockBehavior       func()
		expectedStatusCode int
	}{
		{
			name: "Success",
			body: `{"name":"Ana","email":"Ana@Example.com","password":"password123"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().EmailTaken("ana@example.com").Return(false, nil)
				mockStorage.EXPECT().HashPassword("password123").Return("hashed_password", nil)
				mockStorage.EXPECT().CreateUser("Ana", "ana@example.com", "hashed_password", models.RoleMember).Return(int64(2), nil)
				mockStorage.EXPECT().Audit(int64(2), "register", "user", int64(2), gomock.Any()).Return(nil)
			},
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "BadRequest_EmptyBody",
			body:               `{}`,
			mockBehavior:       func() {},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name:               "BadRequest_InvalidJSON",
			body:               "invalid-json",
			mockBehavior:       func() {},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name:               "BadRequest_InvalidEmail",
			body:               `{"name":"Ana","email":"not-an-email","password":"password123"}`,
			mockBehavior:       func() {},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name: "Conflict_EmailTaken",
			body: `{"name":"Ana","email":"ana@example.com","password":"password123"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().EmailTaken("ana@example.com").Return(true, nil)
			},
			expectedStatusCode: http.StatusConflict,
		},
		{
			name: "InternalServerError_HashError",
			body: `{"name":"Ana","email":"ana@example.com","password":"password123"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().EmailTaken("ana@example.com").Return(false, nil)
				mockStorage.EXPECT().HashPassword("password123").Return("", errors.New("hash error"))
			},
			expectedStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()

			req, _ := http.NewRequest("POST", "/register", bytes.NewBufferString(tt.body))
			res := httptest.NewRecorder()

			controller.Register()(res, req)

			require.Equal(t, tt.expectedStatusCode, res.Code)
			if tt.expectedStatusCode == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
				assert.NotEmpty(t, body["token"])
			}
		})
	}
}

func TestLogin_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)

	account := &models.User{ID: 1, Email: "admin@example.com", PasswordHash: "hashed_password", Role: models.RoleAdmin}

	tests := []struct {
		name               string
		body               string
		mockBehavior       func()
		expectedStatusCode int
	}{
		{
			name: "Success",
			body: `{"email":"admin@example.com","password":"admin123"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().GetUserByEmail("admin@example.com").Return(account, nil)
				mockStorage.EXPECT().CheckPasswordHash("admin123", "hashed_password").Return(true)
				mockStorage.EXPECT().Audit(int64(1), "login", "user", int64(1), gomock.Any()).Return(nil)
			},
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "BadRequest_MissingPassword",
			body:               `{"email":"admin@example.com"}`,
			mockBehavior:       func() {},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name: "Unauthorized_UnknownEmail",
			body: `{"email":"ghost@example.com","password":"admin123"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().GetUserByEmail("ghost@example.com").Return(nil, storage.ErrUserNotFound)
			},
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name: "Unauthorized_WrongPassword",
			body: `{"email":"admin@example.com","password":"wrong"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().GetUserByEmail("admin@example.com").Return(account, nil)
				mockStorage.EXPECT().CheckPasswordHash("wrong", "hashed_password").Return(false)
			},
			expectedStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()

			req, _ := http.NewRequest("POST", "/login", bytes.NewBufferString(tt.body))
			res := httptest.NewRecorder()

			controller.Login()(res, req)

			require.Equal(t, tt.expectedStatusCode, res.Code)
		})
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	controller.conf.APIKey = "secret-key"

	token, err := user.GenerateToken(1, models.RoleAdmin)
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, int64(1), userID(r))
		w.WriteHeader(http.StatusOK)
	})
	apiNext := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, int64(0), userID(r))
		assert.Equal(t, "api", role(r))
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name               string
		method             string
		path               string
		header             map[string]string
		next               http.Handler
		expectedStatusCode int
	}{
		{
			name:               "Open endpoint passes without token",
			method:             "POST",
			path:               "/login",
			next:               http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "Missing token",
			method:             "GET",
			path:               "/api/tasks",
			next:               next,
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "Invalid token format",
			method:             "GET",
			path:               "/api/tasks",
			header:             map[string]string{"Authorization": token},
			next:               next,
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "Invalid token",
			method:             "GET",
			path:               "/api/tasks",
			header:             map[string]string{"Authorization": "Bearer garbage"},
			next:               next,
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "Valid bearer token",
			method:             "GET",
			path:               "/api/tasks",
			header:             map[string]string{"Authorization": "Bearer " + token},
			next:               next,
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "API key grants read-only GET",
			method:             "GET",
			path:               "/api/tasks",
			header:             map[string]string{"X-API-Key": "secret-key"},
			next:               apiNext,
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "API key rejected on POST",
			method:             "POST",
			path:               "/api/tasks",
			header:             map[string]string{"X-API-Key": "secret-key"},
			next:               next,
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "Wrong API key",
			method:             "GET",
			path:               "/api/tasks",
			header:             map[string]string{"X-API-Key": "wrong"},
			next:               next,
			expectedStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			res := httptest.NewRecorder()

			controller.AuthenticateMiddleware(tt.next).ServeHTTP(res, req)

			require.Equal(t, tt.expectedStatusCode, res.Code)
		})
	}
}

func TestRequireAdminMiddleware(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("Member is forbidden", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/audit", nil)
		res := httptest.NewRecorder()

		controller.RequireAdminMiddleware(next).ServeHTTP(res, authed(req, 2, models.RoleMember))
		require.Equal(t, http.StatusForbidden, res.Code)
	})

	t.Run("Admin passes", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/audit", nil)
		res := httptest.NewRecorder()

		controller.RequireAdminMiddleware(next).ServeHTTP(res, authed(req, 1, models.RoleAdmin))
		require.Equal(t, http.StatusOK, res.Code)
	})
}

func TestHealthProbes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)

	t.Run("Healthz", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/healthz", nil)
		res := httptest.NewRecorder()

		controller.Healthz()(res, req)
		require.Equal(t, http.StatusOK, res.Code)
	})

	t.Run("Readyz ok", func(t *testing.T) {
		mockStorage.EXPECT().Ping().Return(nil)

		req, _ := http.NewRequest("GET", "/readyz", nil)
		res := httptest.NewRecorder()

		controller.Readyz()(res, req)
		require.Equal(t, http.StatusOK, res.Code)
	})

	t.Run("Readyz db down", func(t *testing.T) {
		mockStorage.EXPECT().Ping().Return(errors.New("connection refused"))

		req, _ := http.NewRequest("GET", "/readyz", nil)
		res := httptest.NewRecorder()

		controller.Readyz()(res, req)
		require.Equal(t, http.StatusServiceUnavailable, res.Code)
	})
}

func TestCreateTask_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	tests := []struct {
		name               string
		body               string
		mockBehavior       func()
		expectedStatusCode int
	}{
		{
			name: "Success",
			body: `{"title":"Ship release","priority":"high","due_date":"2026-09-01"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().CreateTask(gomock.Any(), int64(1)).Return(int64(7), nil)
				mockStorage.EXPECT().Audit(int64(1), "create", "task", int64(7), gomock.Any()).Return(nil)
			},
			expectedStatusCode: http.StatusCreated,
		},
		{
			name:               "BadRequest_MissingTitle",
			body:               `{"description":"no title"}`,
			mockBehavior:       func() {},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name:               "BadRequest_InvalidPriority",
			body:               `{"title":"Ship release","priority":"urgent"}`,
			mockBehavior:       func() {},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name:               "BadRequest_InvalidDueDate",
			body:               `{"title":"Ship release","due_date":"next week"}`,
			mockBehavior:       func() {},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name: "InternalServerError",
			body: `{"title":"Ship release"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().CreateTask(gomock.Any(), int64(1)).Return(int64(0), errors.New("database error"))
			},
			expectedStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()

			req, _ := http.NewRequest("POST", "/api/tasks", bytes.NewBufferString(tt.body))
			res := httptest.NewRecorder()

			router.ServeHTTP(res, authed(req, 1, models.RoleMember))

			require.Equal(t, tt.expectedStatusCode, res.Code)
		})
	}
}

func TestGetTask_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	t.Run("Success", func(t *testing.T) {
		detail := &models.TaskDetail{
			Task: models.Task{ID: 5, Title: "Ship release", Status: "pending", Priority: "high"},
			Tags: []models.Tag{{ID: 1, Name: "backend"}},
		}
		mockStorage.EXPECT().GetTask(int64(5)).Return(detail, nil)

		req, _ := http.NewRequest("GET", "/api/tasks/5", nil)
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))

		require.Equal(t, http.StatusOK, res.Code)
		var got models.TaskDetail
		require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
		assert.Equal(t, "Ship release", got.Task.Title)
		assert.Len(t, got.Tags, 1)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockStorage.EXPECT().GetTask(int64(404)).Return(nil, nil)

		req, _ := http.NewRequest("GET", "/api/tasks/404", nil)
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))
		require.Equal(t, http.StatusNotFound, res.Code)
	})

	t.Run("BadID", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/tasks/abc", nil)
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))
		require.Equal(t, http.StatusBadRequest, res.Code)
	})
}

func TestUpdateTaskStatus_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	tests := []struct {
		name               string
		body               string
		mockBehavior       func()
		expectedStatusCode int
	}{
		{
			name: "Success",
			body: `{"status":"completed"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().UpdateTaskStatus(int64(5), "completed").Return(int64(1), nil)
				mockStorage.EXPECT().Audit(int64(1), "status", "task", int64(5), gomock.Any()).Return(nil)
			},
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "BadRequest_InvalidStatus",
			body:               `{"status":"done"}`,
			mockBehavior:       func() {},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name: "NotFound",
			body: `{"status":"completed"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().UpdateTaskStatus(int64(5), "completed").Return(int64(0), nil)
			},
			expectedStatusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()

			req, _ := http.NewRequest("POST", "/api/tasks/5/status", bytes.NewBufferString(tt.body))
			res := httptest.NewRecorder()

			router.ServeHTTP(res, authed(req, 1, models.RoleMember))

			require.Equal(t, tt.expectedStatusCode, res.Code)
		})
	}
}

func TestDeleteTask_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	t.Run("Success", func(t *testing.T) {
		mockStorage.EXPECT().DeleteTask(int64(5)).Return(int64(1), nil)
		mockStorage.EXPECT().Audit(int64(1), "delete", "task", int64(5), gomock.Any()).Return(nil)

		req, _ := http.NewRequest("DELETE", "/api/tasks/5", nil)
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))
		require.Equal(t, http.StatusOK, res.Code)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockStorage.EXPECT().DeleteTask(int64(404)).Return(int64(0), nil)

		req, _ := http.NewRequest("DELETE", "/api/tasks/404", nil)
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))
		require.Equal(t, http.StatusNotFound, res.Code)
	})
}

func TestTags_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	t.Run("AddTag lowercases the name", func(t *testing.T) {
		mockStorage.EXPECT().AddTag(int64(5), "backend").Return(&models.Tag{ID: 1, Name: "backend"}, nil)
		mockStorage.EXPECT().Audit(int64(1), "update", "task", int64(5), gomock.Any()).Return(nil)

		req, _ := http.NewRequest("POST", "/api/tasks/5/tags", bytes.NewBufferString(`{"name":" Backend "}`))
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))

		require.Equal(t, http.StatusOK, res.Code)
		var tag models.Tag
		require.NoError(t, json.NewDecoder(res.Body).Decode(&tag))
		assert.Equal(t, "backend", tag.Name)
	})

	t.Run("AddTag empty name", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/api/tasks/5/tags", bytes.NewBufferString(`{"name":"  "}`))
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))
		require.Equal(t, http.StatusBadRequest, res.Code)
	})

	t.Run("RemoveTag not attached", func(t *testing.T) {
		mockStorage.EXPECT().RemoveTag(int64(5), int64(9)).Return(int64(0), nil)

		req, _ := http.NewRequest("DELETE", "/api/tasks/5/tags/9", nil)
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))
		require.Equal(t, http.StatusNotFound, res.Code)
	})
}

func TestAddComment_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	t.Run("Success", func(t *testing.T) {
		mockStorage.EXPECT().AddComment(int64(5), int64(2), "on it").Return(int64(9), nil)
		mockStorage.EXPECT().Audit(int64(2), "comment", "task", int64(5), gomock.Any()).Return(nil)

		req, _ := http.NewRequest("POST", "/api/tasks/5/comments", bytes.NewBufferString(`{"content":"on it"}`))
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 2, models.RoleMember))
		require.Equal(t, http.StatusOK, res.Code)
	})

	t.Run("Empty content", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/api/tasks/5/comments", bytes.NewBufferString(`{"content":"   "}`))
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 2, models.RoleMember))
		require.Equal(t, http.StatusBadRequest, res.Code)
	})
}

func TestDownloadAttachment_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	mockStorage.EXPECT().GetAttachment(int64(404)).Return(nil, nil)

	req, _ := http.NewRequest("GET", "/api/attachments/404", nil)
	res := httptest.NewRecorder()

	router.ServeHTTP(res, authed(req, 1, models.RoleMember))
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestListTasks_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	mockStorage.EXPECT().ListTasks(models.TaskFilter{
		Query:    "release",
		Status:   "pending",
		Priority: "high",
		Page:     2,
		PerPage:  5,
	}).Return(&models.TaskList{
		Tasks:   []models.Task{{ID: 5, Title: "Ship release"}},
		Total:   6,
		Page:    2,
		PerPage: 5,
	}, nil)

	req, _ := http.NewRequest("GET", "/api/tasks?q=release&status=pending&priority=high&page=2&per_page=5", nil)
	res := httptest.NewRecorder()

	router.ServeHTTP(res, authed(req, 1, models.RoleMember))

	require.Equal(t, http.StatusOK, res.Code)
	var list models.TaskList
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	assert.Equal(t, int64(6), list.Total)
	assert.Len(t, list.Tasks, 1)
}

func TestTaskStats_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	mockStorage.EXPECT().TaskStats().Return(&models.Stats{Pending: 3, Completed: 10, High: 4}, nil)

	req, _ := http.NewRequest("GET", "/api/stats", nil)
	res := httptest.NewRecorder()

	router.ServeHTTP(res, authed(req, 1, models.RoleMember))

	require.Equal(t, http.StatusOK, res.Code)
	var stats models.Stats
	require.NoError(t, json.NewDecoder(res.Body).Decode(&stats))
	assert.Equal(t, int64(3), stats.Pending)
	assert.Equal(t, int64(10), stats.Completed)
}

func TestListUsers_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	mockStorage.EXPECT().ListActiveUsers().Return([]models.UserRef{{ID: 1, Name: "Admin"}, {ID: 2, Name: "Ana"}}, nil)

	req, _ := http.NewRequest("GET", "/api/users", nil)
	res := httptest.NewRecorder()

	router.ServeHTTP(res, authed(req, 1, models.RoleMember))

	require.Equal(t, http.StatusOK, res.Code)
	var users []models.UserRef
	require.NoError(t, json.NewDecoder(res.Body).Decode(&users))
	assert.Len(t, users, 2)
}

func TestExportTasksCSV_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	mockStorage.EXPECT().ListAllTasks().Return([]models.Task{
		{ID: 5, Title: "Ship release", Status: "pending", Priority: "high"},
	}, nil)

	req, _ := http.NewRequest("GET", "/api/export/tasks.csv", nil)
	res := httptest.NewRecorder()

	router.ServeHTTP(res, authed(req, 1, models.RoleMember))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/csv", res.Header().Get("Content-Type"))
	assert.Contains(t, res.Header().Get("Content-Disposition"), "tasks.csv")
	assert.Contains(t, res.Body.String(), "Ship release")
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })

	req, _ := http.NewRequest("GET", "/api/tasks", nil)
	res := httptest.NewRecorder()

	controller.PanicRecoveryMiddleware(next).ServeHTTP(res, req)
	require.Equal(t, http.StatusInternalServerError, res.Code)
}

func TestUpdateTask_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	tests := []struct {
		name               string
		body               string
		mockBehavior       func()
		expectedStatusCode int
	}{
		{
			name: "Success",
			body: `{"title":"Ship release","status":"in_progress","priority":"high","due_date":"2026-09-01"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().UpdateTask(int64(5), gomock.Any()).Return(int64(1), nil)
				mockStorage.EXPECT().Audit(int64(1), "update", "task", int64(5), gomock.Any()).Return(nil)
			},
			expectedStatusCode: http.StatusOK,
		},
		{
			name: "Empty priority defaults to medium",
			body: `{"title":"Ship release","status":"pending"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().UpdateTask(int64(5), models.TaskRequest{
					Title:    "Ship release",
					Status:   "pending",
					Priority: models.PriorityMedium,
				}).Return(int64(1), nil)
				mockStorage.EXPECT().Audit(int64(1), "update", "task", int64(5), gomock.Any()).Return(nil)
			},
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "BadRequest_MissingTitle",
			body:               `{"status":"pending"}`,
			mockBehavior:       func() {},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name:               "BadRequest_InvalidStatus",
			body:               `{"title":"Ship release","status":"done"}`,
			mockBehavior:       func() {},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name:               "BadRequest_InvalidPriority",
			body:               `{"title":"Ship release","status":"pending","priority":"urgent"}`,
			mockBehavior:       func() {},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name: "NotFound",
			body: `{"title":"Ship release","status":"pending"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().UpdateTask(int64(5), gomock.Any()).Return(int64(0), nil)
			},
			expectedStatusCode: http.StatusNotFound,
		},
		{
			name: "InternalServerError",
			body: `{"title":"Ship release","status":"pending"}`,
			mockBehavior: func() {
				mockStorage.EXPECT().UpdateTask(int64(5), gomock.Any()).Return(int64(0), errors.New("database error"))
			},
			expectedStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()

			req, _ := http.NewRequest("PUT", "/api/tasks/5", bytes.NewBufferString(tt.body))
			res := httptest.NewRecorder()

			router.ServeHTTP(res, authed(req, 1, models.RoleMember))

			require.Equal(t, tt.expectedStatusCode, res.Code)
		})
	}
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func newUploadController(t *testing.T, mockStorage *mocks.MockStorageService, storeMax int64) (*Controller, *files.Store) {
	t.Helper()
	controller := newTestController(mockStorage)
	store, err := files.NewStore(t.TempDir(), storeMax, []string{"txt"})
	require.NoError(t, err)
	controller.fileStore = store
	return controller, store
}

func TestUploadAttachment_Handlers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)

	t.Run("Success", func(t *testing.T) {
		controller, _ := newUploadController(t, mockStorage, 64)
		router := taskRouter(controller)

		mockStorage.EXPECT().AddAttachment(int64(5), "notes.txt", gomock.Any(), int64(5)).Return(int64(3), nil)
		mockStorage.EXPECT().Audit(int64(1), "attach", "task", int64(5), gomock.Any()).Return(nil)

		body, contentType := multipartBody(t, "notes.txt", []byte("hello"))
		req, _ := http.NewRequest("POST", "/api/tasks/5/attachments", body)
		req.Header.Set("Content-Type", contentType)
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))

		require.Equal(t, http.StatusOK, res.Code)
		var got map[string]any
		require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
		assert.Equal(t, "notes.txt", got["filename"])
		assert.Equal(t, float64(5), got["size_bytes"])
	})

	t.Run("BadRequest_Extension", func(t *testing.T) {
		controller, _ := newUploadController(t, mockStorage, 64)
		router := taskRouter(controller)

		body, contentType := multipartBody(t, "shell.sh", []byte("x"))
		req, _ := http.NewRequest("POST", "/api/tasks/5/attachments", body)
		req.Header.Set("Content-Type", contentType)
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))
		require.Equal(t, http.StatusBadRequest, res.Code)
	})

	t.Run("TooLarge_StoreCap", func(t *testing.T) {
		controller, store := newUploadController(t, mockStorage, 4)
		router := taskRouter(controller)

		body, contentType := multipartBody(t, "big.txt", []byte("hello"))
		req, _ := http.NewRequest("POST", "/api/tasks/5/attachments", body)
		req.Header.Set("Content-Type", contentType)
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))

		require.Equal(t, http.StatusRequestEntityTooLarge, res.Code)
		entries, err := os.ReadDir(store.Dir())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("TooLarge_RequestBodyCap", func(t *testing.T) {
		controller, _ := newUploadController(t, mockStorage, 8<<20)
		controller.conf.MaxUploadBytes = 16
		router := taskRouter(controller)

		// past MaxUploadBytes plus the one-megabyte framing allowance
		body, contentType := multipartBody(t, "huge.txt", bytes.Repeat([]byte("a"), (1<<20)+1024))
		req, _ := http.NewRequest("POST", "/api/tasks/5/attachments", body)
		req.Header.Set("Content-Type", contentType)
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))
		require.Equal(t, http.StatusRequestEntityTooLarge, res.Code)
	})

	t.Run("InternalServerError_OrphanRemoved", func(t *testing.T) {
		controller, store := newUploadController(t, mockStorage, 64)
		router := taskRouter(controller)

		mockStorage.EXPECT().AddAttachment(int64(5), "notes.txt", gomock.Any(), int64(5)).
			Return(int64(0), errors.New("database error"))

		body, contentType := multipartBody(t, "notes.txt", []byte("hello"))
		req, _ := http.NewRequest("POST", "/api/tasks/5/attachments", body)
		req.Header.Set("Content-Type", contentType)
		res := httptest.NewRecorder()

		router.ServeHTTP(res, authed(req, 1, models.RoleMember))

		require.Equal(t, http.StatusInternalServerError, res.Code)
		entries, err := os.ReadDir(store.Dir())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 120))

	s := "a" + strings.Repeat("€", 60)
	out := truncate(s, 120)
	assert.Equal(t, 118, len(out))
	assert.True(t, utf8.ValidString(out))
}

func TestAddComment_AuditDetailRuneSafe(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockStorage := mocks.NewMockStorageService(ctrl)
	controller := newTestController(mockStorage)
	router := taskRouter(controller)

	long := "a" + strings.Repeat("€", 60)
	mockStorage.EXPECT().AddComment(int64(5), int64(2), long).Return(int64(10), nil)
	mockStorage.EXPECT().Audit(int64(2), "comment", "task", int64(5), gomock.Any()).
		Do(func(_ int64, _, _ string, _ int64, detail map[string]any) {
			content, ok := detail["content"].(string)
			require.True(t, ok)
			assert.LessOrEqual(t, len(content), 120)
			assert.True(t, utf8.ValidString(content))
		}).Return(nil)

	payload, _ := json.Marshal(map[string]string{"content": long})
	req, _ := http.NewRequest("POST", "/api/tasks/5/comments", bytes.NewBuffer(payload))
	res := httptest.NewRecorder()

	router.ServeHTTP(res, authed(req, 2, models.RoleMember))
	require.Equal(t, http.StatusOK, res.Code)
}
