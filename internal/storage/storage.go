// Package storage implements the PostgreSQL persistence layer.
package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"taskpro/internal/models"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"golang.org/x/crypto/bcrypt"
)

// StorageService defines methods for working with the data storage.
type StorageService interface {
	EmailTaken(email string) (bool, error)
	CreateUser(name, email, hashedPassword, role string) (int64, error)
	GetUserByEmail(email string) (*models.User, error)
	HashPassword(password string) (string, error)
	CheckPasswordHash(password, hash string) bool
	ListActiveUsers() ([]models.UserRef, error)

	CreateTask(req models.TaskRequest, createdBy int64) (int64, error)
	GetTask(id int64) (*models.TaskDetail, error)
	UpdateTask(id int64, req models.TaskRequest) (int64, error)
	UpdateTaskStatus(id int64, status string) (int64, error)
	DeleteTask(id int64) (int64, error)
	ListTasks(f models.TaskFilter) (*models.TaskList, error)
	ListAllTasks() ([]models.Task, error)
	TaskStats() (*models.Stats, error)

	AddTag(taskID int64, name string) (*models.Tag, error)
	RemoveTag(taskID, tagID int64) (int64, error)
	AddComment(taskID, userID int64, content string) (int64, error)
	AddAttachment(taskID int64, filename, storedPath string, sizeBytes int64) (int64, error)
	GetAttachment(id int64) (*models.Attachment, error)

	Audit(userID int64, action, entity string, entityID int64, detail map[string]any) error
	ListAudit(page, perPage int) ([]models.AuditEntry, error)
	PurgeAudit(olderThanDays int) (int64, error)

	Ping() error
	Close() error
}

var ErrUserNotFound = errors.New("user not found")

// Seed admin credentials, created only when the users table is empty.
const (
	seedAdminName     = "Admin"
	seedAdminEmail    = "admin@example.com"
	seedAdminPassword = "admin123"
)

// PostgresStorage implements the StorageService interface for PostgreSQL.
type PostgresStorage struct {
	DB *sql.DB
}

//go:embed migrations/*.sql
var embedMigrations embed.FS

// UpDBMigrations applies database migrations using the Goose library.
func UpDBMigrations(db *sql.DB) {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		log.Printf("error setting SQL dialect\n")
	}

	if err := goose.Up(db, "migrations"); err != nil {
		log.Printf("error migration %s\n", err.Error())
	}
}

// NewPostgresStorage initializes a new PostgresStorage instance.
func NewPostgresStorage(dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("(NewPostgresStorage) failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("(NewPostgresStorage) failed to ping database: %w", err)
	}

	UpDBMigrations(db)

	s := &PostgresStorage{DB: db}
	if err := s.seedAdmin(); err != nil {
		log.Printf("seed admin: %s\n", err.Error())
	}

	return s, nil
}

// seedAdmin creates the initial admin account when no users exist yet.
func (s *PostgresStorage) seedAdmin() error {
	var count int64
	if err := s.DB.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := s.HashPassword(seedAdminPassword)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(
		"INSERT INTO users (name, email, password_hash, role) VALUES ($1, $2, $3, $4)",
		seedAdminName, seedAdminEmail, hash, models.RoleAdmin,
	)
	if err != nil {
		return err
	}
	log.Printf("admin user created: %s (change the password)\n", seedAdminEmail)
	return nil
}

// EmailTaken reports whether an account already uses the given email.
func (s *PostgresStorage) EmailTaken(email string) (bool, error) {
	var one int
	err := s.DB.QueryRow("SELECT 1 FROM users WHERE email=$1", email).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateUser inserts a new account and returns its id.
func (s *PostgresStorage) CreateUser(name, email, hashedPassword, role string) (int64, error) {
	var id int64
	err := s.DB.QueryRow(
		"INSERT INTO users (name, email, password_hash, role) VALUES ($1, $2, $3, $4) RETURNING id",
		name, email, hashedPassword, role,
	).Scan(&id)
	return id, err
}

// GetUserByEmail retrieves an active account by email, including the
// password hash for verification. Returns ErrUserNotFound when absent.
func (s *PostgresStorage) GetUserByEmail(email string) (*models.User, error) {
	var u models.User
	err := s.DB.QueryRow(
		"SELECT id, name, email, password_hash, role, active, created_at FROM users WHERE email=$1 AND active",
		email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// HashPassword generates a bcrypt hash of the given password.
func (s *PostgresStorage) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash verifies if the provided password matches the given bcrypt hash.
func (s *PostgresStorage) CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ListActiveUsers returns active accounts for assignment pickers.
func (s *PostgresStorage) ListActiveUsers() ([]models.UserRef, error) {
	rows, err := s.DB.Query("SELECT id, name FROM users WHERE active ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.UserRef{}
	for rows.Next() {
		var u models.UserRef
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Ping checks the health of the database connection.
func (s *PostgresStorage) Ping() error {
	return s.DB.Ping()
}

// Close closes the database connection.
func (s *PostgresStorage) Close() error {
	return s.DB.Close()
}
