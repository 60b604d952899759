package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultLogLevel       = "info"
	DefaultDBDriver       = "sqlite"
	DefaultDBFileName     = ".imgmigrate.db"
	DefaultSettingsPrefix = "image-migrate."

	DefaultBackendEnv            = "production"
	DefaultBackendTimeout        = 30 * time.Second
	DefaultBackendConnectTimeout = 5 * time.Second

	DefaultFetchMaxBytes       int64 = 20 * 1024 * 1024
	DefaultFetchTimeout              = 60 * time.Second
	DefaultFetchConnectTimeout       = 10 * time.Second
	DefaultFetchUserAgent            = "imgmigrate/1.0"

	DefaultScaleFactor       = 1.01
	DefaultScanConcurrency   = 4
	DefaultScheduleFrequency = "weekly"
	DefaultMailPort          = 587
	DefaultMetricsJob        = "imgmigrate"

	configFileName           = ".imgmigrate.toml"
	configDirEnvKey          = "IMGMIGRATE_CONFIG_DIR"
	trustProjectConfigEnvKey = "IMGMIGRATE_TRUST_PROJECT_CONFIG"

	dbDSNEnvKey          = "IMGMIGRATE_DB_DSN"
	backendURLEnvKey     = "IMGMIGRATE_BACKEND_URL"
	backendAPIKeyEnvKey  = "IMGMIGRATE_BACKEND_API_KEY"
	allowedOriginsEnvKey = "IMGMIGRATE_ALLOWED_ORIGINS"
)

// DBConfig selects the content database.
type DBConfig struct {
	Driver         string `toml:"driver"`
	DSN            string `toml:"dsn"`
	TablePrefix    string `toml:"table_prefix"`
	SettingsPrefix string `toml:"settings_prefix"`
}

// BackendConfig holds the asset backend connection.
type BackendConfig struct {
	BaseURL        string        `toml:"base_url"`
	APIKey         string        `toml:"api_key"`
	Env            string        `toml:"env"`
	Timeout        time.Duration `toml:"timeout"`
	ConnectTimeout time.Duration `toml:"connect_timeout"`
}

// FetchConfig bounds remote image downloads.
type FetchConfig struct {
	MaxBytes       int64         `toml:"max_bytes"`
	Timeout        time.Duration `toml:"timeout"`
	ConnectTimeout time.Duration `toml:"connect_timeout"`
	TempDir        string        `toml:"temp_dir"`
	UserAgent      string        `toml:"user_agent"`
}

type MigrateConfig struct {
	ScaleFactor float64 `toml:"scale_factor"`
}

type ScanConfig struct {
	Concurrency int `toml:"concurrency"`
}

// ScheduleConfig drives scheduled-check.
type ScheduleConfig struct {
	Enabled   bool     `toml:"enabled"`
	Frequency string   `toml:"frequency"`
	Emails    []string `toml:"emails"`
}

// MailConfig is the SMTP relay used for reports.
type MailConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

type MetricsConfig struct {
	PushgatewayURL string `toml:"pushgateway_url"`
	Job            string `toml:"job"`
}

// Config defines runtime configuration for imgmigrate.
type Config struct {
	ForumURL                 string         `toml:"forum_url"`
	AllowedOrigins           []string       `toml:"allowed_origins"`
	LogLevel                 string         `toml:"log_level"`
	DB                       DBConfig       `toml:"db"`
	Backend                  BackendConfig  `toml:"backend"`
	Fetch                    FetchConfig    `toml:"fetch"`
	Migrate                  MigrateConfig  `toml:"migrate"`
	Scan                     ScanConfig     `toml:"scan"`
	Schedule                 ScheduleConfig `toml:"schedule"`
	Mail                     MailConfig     `toml:"mail"`
	Metrics                  MetricsConfig  `toml:"metrics"`
	TrustedProjectConfigPath string         `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		DB: DBConfig{
			Driver:         DefaultDBDriver,
			SettingsPrefix: DefaultSettingsPrefix,
		},
		Backend: BackendConfig{
			Env:            DefaultBackendEnv,
			Timeout:        DefaultBackendTimeout,
			ConnectTimeout: DefaultBackendConnectTimeout,
		},
		Fetch: FetchConfig{
			MaxBytes:       DefaultFetchMaxBytes,
			Timeout:        DefaultFetchTimeout,
			ConnectTimeout: DefaultFetchConnectTimeout,
			UserAgent:      DefaultFetchUserAgent,
		},
		Migrate:  MigrateConfig{ScaleFactor: DefaultScaleFactor},
		Scan:     ScanConfig{Concurrency: DefaultScanConcurrency},
		Schedule: ScheduleConfig{Frequency: DefaultScheduleFrequency},
		Mail:     MailConfig{Port: DefaultMailPort},
		Metrics:  MetricsConfig{Job: DefaultMetricsJob},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"forum_url",
	"allowed_origins",
	"log_level",
	"db.driver",
	"db.dsn",
	"db.table_prefix",
	"db.settings_prefix",
	"backend.base_url",
	"backend.api_key",
	"backend.env",
	"backend.timeout",
	"backend.connect_timeout",
	"fetch.max_bytes",
	"fetch.timeout",
	"fetch.connect_timeout",
	"fetch.temp_dir",
	"fetch.user_agent",
	"migrate.scale_factor",
	"scan.concurrency",
	"schedule.enabled",
	"schedule.frequency",
	"schedule.emails",
	"mail.host",
	"mail.port",
	"mail.username",
	"mail.password",
	"mail.from",
	"metrics.pushgateway_url",
	"metrics.job",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// IsSecretKey reports whether a key holds a credential that should not be echoed.
func IsSecretKey(key string) bool {
	return key == "backend.api_key" || key == "mail.password"
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "forum_url":
		return c.ForumURL, nil
	case "allowed_origins":
		return strings.Join(c.AllowedOrigins, ","), nil
	case "log_level":
		return c.LogLevel, nil
	case "db.driver":
		return c.DB.Driver, nil
	case "db.dsn":
		return c.DB.DSN, nil
	case "db.table_prefix":
		return c.DB.TablePrefix, nil
	case "db.settings_prefix":
		return c.DB.SettingsPrefix, nil
	case "backend.base_url":
		return c.Backend.BaseURL, nil
	case "backend.api_key":
		return c.Backend.APIKey, nil
	case "backend.env":
		return c.Backend.Env, nil
	case "backend.timeout":
		return c.Backend.Timeout.String(), nil
	case "backend.connect_timeout":
		return c.Backend.ConnectTimeout.String(), nil
	case "fetch.max_bytes":
		return strconv.FormatInt(c.Fetch.MaxBytes, 10), nil
	case "fetch.timeout":
		return c.Fetch.Timeout.String(), nil
	case "fetch.connect_timeout":
		return c.Fetch.ConnectTimeout.String(), nil
	case "fetch.temp_dir":
		return c.Fetch.TempDir, nil
	case "fetch.user_agent":
		return c.Fetch.UserAgent, nil
	case "migrate.scale_factor":
		return strconv.FormatFloat(c.Migrate.ScaleFactor, 'f', -1, 64), nil
	case "scan.concurrency":
		return strconv.Itoa(c.Scan.Concurrency), nil
	case "schedule.enabled":
		return strconv.FormatBool(c.Schedule.Enabled), nil
	case "schedule.frequency":
		return c.Schedule.Frequency, nil
	case "schedule.emails":
		return strings.Join(c.Schedule.Emails, ","), nil
	case "mail.host":
		return c.Mail.Host, nil
	case "mail.port":
		return strconv.Itoa(c.Mail.Port), nil
	case "mail.username":
		return c.Mail.Username, nil
	case "mail.password":
		return c.Mail.Password, nil
	case "mail.from":
		return c.Mail.From, nil
	case "metrics.pushgateway_url":
		return c.Metrics.PushgatewayURL, nil
	case "metrics.job":
		return c.Metrics.Job, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if dsn := os.Getenv(dbDSNEnvKey); dsn != "" {
		cfg.DB.DSN = dsn
	}
	if baseURL := os.Getenv(backendURLEnvKey); baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	if apiKey := os.Getenv(backendAPIKeyEnvKey); apiKey != "" {
		cfg.Backend.APIKey = apiKey
	}
	if raw := strings.TrimSpace(os.Getenv(allowedOriginsEnvKey)); raw != "" {
		cfg.AllowedOrigins = splitCSV(raw)
	}

	if cfg.DB.DSN == "" && cfg.DB.Driver == DefaultDBDriver {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DB.DSN = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	cfg.normalizeDefaults()

	return &cfg, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "fetch.max_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "scan.concurrency", "mail.port":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "backend.timeout", "backend.connect_timeout", "fetch.timeout", "fetch.connect_timeout":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration such as 30s", key)
		}
		return parsed.String(), nil
	case "migrate.scale_factor":
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive number", key)
		}
		return parsed, nil
	case "schedule.enabled":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "db.driver":
		switch value {
		case "sqlite", "mysql":
			return value, nil
		default:
			return nil, fmt.Errorf("%s must be sqlite or mysql", key)
		}
	case "allowed_origins", "schedule.emails":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.DB.Driver) == "" {
		c.DB.Driver = DefaultDBDriver
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = DefaultBackendTimeout
	}
	if c.Backend.ConnectTimeout <= 0 {
		c.Backend.ConnectTimeout = DefaultBackendConnectTimeout
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = DefaultFetchMaxBytes
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = DefaultFetchTimeout
	}
	if c.Fetch.ConnectTimeout <= 0 {
		c.Fetch.ConnectTimeout = DefaultFetchConnectTimeout
	}
	if strings.TrimSpace(c.Fetch.UserAgent) == "" {
		c.Fetch.UserAgent = DefaultFetchUserAgent
	}
	if c.Migrate.ScaleFactor <= 0 {
		c.Migrate.ScaleFactor = DefaultScaleFactor
	}
	if c.Scan.Concurrency <= 0 {
		c.Scan.Concurrency = DefaultScanConcurrency
	}
	if strings.TrimSpace(c.Schedule.Frequency) == "" {
		c.Schedule.Frequency = DefaultScheduleFrequency
	}
	if c.Mail.Port <= 0 {
		c.Mail.Port = DefaultMailPort
	}
	if strings.TrimSpace(c.Metrics.Job) == "" {
		c.Metrics.Job = DefaultMetricsJob
	}
}
