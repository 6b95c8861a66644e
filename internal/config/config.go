// Package config is used to configure the application settings.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config - application configuration structure.
type Config struct {
	// Addr: server listen address (e.g., ":5000").
	Addr string `json:"server_address"`
	// DBConnection: database connection string.
	DBConnection string `json:"database_dsn"`
	// SecretKey: HMAC key for signing JWTs. Randomized when unset.
	SecretKey string
	// APIKey: optional X-API-Key value granting read-only API access.
	APIKey string
	// UploadDir: directory for attachment files.
	UploadDir string
	// MaxUploadBytes: attachment size cap.
	MaxUploadBytes int64
	// AllowedExt: lowercased attachment extensions without dots.
	AllowedExt []string
	// WebhookTaskMutation / WebhookStatusChange: optional notify URLs.
	WebhookTaskMutation string
	WebhookStatusChange string
	// AuditRetentionDays: audit rows older than this are purged daily.
	// Zero disables the purge.
	AuditRetentionDays int
	// Timeout: request/shutdown timeout in seconds.
	Timeout int
}

var cfgDefault = Config{
	Addr:               ":5000",
	DBConnection:       "",
	UploadDir:          "uploads",
	MaxUploadBytes:     10 << 20,
	AllowedExt:         []string{"png", "jpg", "jpeg", "pdf", "doc", "docx", "xls", "xlsx", "txt"},
	AuditRetentionDays: 90,
	Timeout:            15,
}

// NewConfig creates and returns a new instance of the Config structure with predefined values.
func NewConfig() *Config {
	c := cfgDefault
	c.AllowedExt = append([]string(nil), cfgDefault.AllowedExt...)
	return &c
}

func lookup(key string) (string, bool) {
	if val, exist := os.LookupEnv(key); exist {
		return strings.Trim(val, `"`), true
	}
	return "", false
}

func parseEnv(c *Config) {
	if val, exist := lookup("SERVER_ADDRESS"); exist {
		c.Addr = val
	}
	if val, exist := lookup("DATABASE_DSN"); exist {
		c.DBConnection = val
	}
	// Piecewise DSN assembly for compose-style deployments.
	if c.DBConnection == "" {
		if val, exist := lookup("POSTGRES_USER"); exist {
			c.DBConnection = "postgresql://" + val + ":"
		}
		if val, exist := lookup("POSTGRES_PASSWORD"); exist {
			c.DBConnection += val + "@"
		}
		if val, exist := lookup("DB_HOST"); exist {
			c.DBConnection += val + ":5432/"
		}
		if val, exist := lookup("POSTGRES_DB"); exist {
			c.DBConnection += val + "?sslmode=disable"
		}
	}
	if val, exist := lookup("SECRET_KEY"); exist {
		c.SecretKey = val
	}
	if val, exist := lookup("API_KEY"); exist {
		c.APIKey = val
	}
	if val, exist := lookup("UPLOAD_DIR"); exist {
		c.UploadDir = val
	}
	if val, exist := lookup("MAX_CONTENT_LENGTH"); exist {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > 0 {
			c.MaxUploadBytes = n
		}
	}
	if val, exist := lookup("ALLOWED_EXT"); exist {
		c.AllowedExt = splitExt(val)
	}
	if val, exist := lookup("WEBHOOK_TASK_MUTATION"); exist {
		c.WebhookTaskMutation = val
	}
	if val, exist := lookup("WEBHOOK_STATUS_CHANGE"); exist {
		c.WebhookStatusChange = val
	}
	if val, exist := lookup("AUDIT_RETENTION_DAYS"); exist {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			c.AuditRetentionDays = n
		}
	}
}

func splitExt(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		e = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(e, ".")))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// fileConfig is the optional TOML config file shape.
type fileConfig struct {
	Addr                string `toml:"addr"`
	DatabaseDSN         string `toml:"database_dsn"`
	SecretKey           string `toml:"secret_key"`
	APIKey              string `toml:"api_key"`
	UploadDir           string `toml:"upload_dir"`
	MaxUploadBytes      int64  `toml:"max_upload_bytes"`
	AllowedExt          string `toml:"allowed_ext"`
	WebhookTaskMutation string `toml:"webhook_task_mutation"`
	WebhookStatusChange string `toml:"webhook_status_change"`
	AuditRetentionDays  int    `toml:"audit_retention_days"`
	Timeout             int    `toml:"timeout"`
}

func applyFile(c *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config file: %w", err)
	}
	if meta.IsDefined("addr") {
		c.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("database_dsn") {
		c.DBConnection = strings.TrimSpace(raw.DatabaseDSN)
	}
	if meta.IsDefined("secret_key") {
		c.SecretKey = raw.SecretKey
	}
	if meta.IsDefined("api_key") {
		c.APIKey = raw.APIKey
	}
	if meta.IsDefined("upload_dir") {
		c.UploadDir = strings.TrimSpace(raw.UploadDir)
	}
	if meta.IsDefined("max_upload_bytes") && raw.MaxUploadBytes > 0 {
		c.MaxUploadBytes = raw.MaxUploadBytes
	}
	if meta.IsDefined("allowed_ext") {
		c.AllowedExt = splitExt(raw.AllowedExt)
	}
	if meta.IsDefined("webhook_task_mutation") {
		c.WebhookTaskMutation = strings.TrimSpace(raw.WebhookTaskMutation)
	}
	if meta.IsDefined("webhook_status_change") {
		c.WebhookStatusChange = strings.TrimSpace(raw.WebhookStatusChange)
	}
	if meta.IsDefined("audit_retention_days") && raw.AuditRetentionDays >= 0 {
		c.AuditRetentionDays = raw.AuditRetentionDays
	}
	if meta.IsDefined("timeout") && raw.Timeout > 0 {
		c.Timeout = raw.Timeout
	}
	return nil
}

// Init initializes the application configuration from the .env file,
// environment variables, an optional TOML file and command-line flags,
// in that order of precedence (later wins).
func Init(c *Config) error {
	_ = godotenv.Load()
	parseEnv(c)

	var flagCfg Config
	var cfgPath string
	flag.StringVar(&flagCfg.Addr, "a", "", "HTTP server startup address")
	flag.StringVar(&flagCfg.DBConnection, "d", "", "database connection address")
	flag.StringVar(&cfgPath, "c", "", "path to TOML config file")

	flag.Parse()

	if cfgPath != "" {
		if err := applyFile(c, cfgPath); err != nil {
			return err
		}
	}

	// override
	if flagCfg.Addr != "" {
		c.Addr = flagCfg.Addr
	}
	if flagCfg.DBConnection != "" {
		c.DBConnection = flagCfg.DBConnection
	}

	if c.SecretKey == "" {
		key := make([]byte, 16)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generate secret key: %w", err)
		}
		c.SecretKey = hex.EncodeToString(key)
	}

	return nil
}
