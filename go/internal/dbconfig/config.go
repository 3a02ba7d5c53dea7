package dbconfig

import (
	"database/sql"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config describes the Postgres database holding match records and checkpoints
type Config struct {
	// URL, when set from DATABASE_URL, wins over the individual fields
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// FromEnv reads DATABASE_URL or the DB_* variables, falling back to a local
// matchclock database.
func FromEnv() Config {
	return Config{
		URL:             os.Getenv("DATABASE_URL"),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		Database:        getEnv("DB_NAME", "matchclock"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DSN returns the connection URL accepted by lib/pq and pgxpool
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return c.url(url.UserPassword(c.User, c.Password)).String()
}

// Redacted is DSN with the password masked, for logs
func (c Config) Redacted() string {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return "postgres://invalid"
		}
		return u.Redacted()
	}
	return c.url(url.UserPassword(c.User, c.Password)).Redacted()
}

// Apply sizes the pool of a lib/pq handle. Checkpoint writes come from a
// handful of dispatch workers, so the defaults stay small.
func (c Config) Apply(db *sql.DB) {
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
}

func (c Config) url(user *url.Userinfo) *url.URL {
	return &url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return fallback
}
