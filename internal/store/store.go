package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute

	mysqlDefaultMaxOpenConns = 4

	maxOpenConnsEnvKey    = "IMGMIGRATE_DB_MAX_OPEN_CONNS"
	connMaxLifetimeEnvKey = "IMGMIGRATE_DB_CONN_MAX_LIFETIME"
)

// Options shape table naming for a store.
type Options struct {
	TablePrefix    string
	SettingsPrefix string
}

// Store reads forum posts and settings and owns the migration log.
type Store struct {
	db             *sql.DB
	d              dialect
	settingsPrefix string
}

// Open opens the database for driver and brings the schema up to date.
// sqlite runs standalone and owns its posts and settings tables; mysql
// attaches to an existing forum database and only creates the log table.
func Open(driver, dsn string, opts Options) (*Store, error) {
	db, err := OpenRaw(driver, dsn)
	if err != nil {
		return nil, err
	}
	d, err := newDialect(driver, opts.TablePrefix)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := configureDB(db, d); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db, d); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, d: d, settingsPrefix: opts.SettingsPrefix}, nil
}

// OpenRaw opens a connection pool without touching the schema.
func OpenRaw(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite, "":
		path, err := sqliteDSN(dsn)
		if err != nil {
			return nil, err
		}
		return sql.Open("sqlite", path)
	case DriverMySQL:
		normalized, err := mysqlDSN(dsn)
		if err != nil {
			return nil, err
		}
		return sql.Open("mysql", normalized)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver returns the name of the active driver.
func (s *Store) Driver() string {
	return s.d.driver
}

func configureDB(db *sql.DB, d dialect) error {
	if d.driver == DriverMySQL {
		db.SetMaxOpenConns(intFromEnv(maxOpenConnsEnvKey, mysqlDefaultMaxOpenConns))
		db.SetMaxIdleConns(intFromEnv(maxOpenConnsEnvKey, mysqlDefaultMaxOpenConns))
		db.SetConnMaxLifetime(durationFromEnv(connMaxLifetimeEnvKey, connMaxLifetime))
		return db.Ping()
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// Single writer for the local file.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

// mysqlDSN validates the DSN and makes UPDATE report matched rows, so an
// unchanged row is not mistaken for a missing one.
func mysqlDSN(dsn string) (string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", fmt.Errorf("mysql dsn is required")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ClientFoundRows = true
	cfg.MultiStatements = false
	return cfg.FormatDSN(), nil
}

func intFromEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
