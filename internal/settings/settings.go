// Package settings resolves runtime settings from the forum settings table
// and the local config file, in that order.
package settings

import (
	"context"
	"strconv"
	"strings"

	"imgmigrate/internal/config"
	"imgmigrate/internal/models"
	"imgmigrate/internal/origin"
)

// Setting keys, without the settings table prefix.
const (
	KeyAllowedOrigins    = "allowed_origins"
	KeyBackendBaseURL    = "snapgrab_base_url"
	KeyBackendAPIKey     = "snapgrab_api_key"
	KeyBackendEnv        = "snapgrab_env"
	KeyScheduleEnabled   = "scheduled_enabled"
	KeyScheduleFrequency = "scheduled_frequency"
	KeyScheduleEmails    = "scheduled_emails"
)

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Source looks up a single setting. ok is false when the source has no value.
type Source interface {
	Setting(ctx context.Context, key string) (value string, ok bool, err error)
}

// Schedule controls the scheduled check.
type Schedule struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Frequency string   `json:"frequency" yaml:"frequency"`
	Emails    []string `json:"emails" yaml:"emails"`
}

// Cron returns the crontab expression for the schedule frequency.
func (s Schedule) Cron() string {
	switch NormalizeFrequency(s.Frequency) {
	case FrequencyDaily:
		return "0 0 * * *"
	case FrequencyMonthly:
		return "0 0 1 * *"
	default:
		return "0 0 * * 0"
	}
}

// NormalizeFrequency maps unknown values to weekly.
func NormalizeFrequency(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case FrequencyDaily:
		return FrequencyDaily
	case FrequencyMonthly:
		return FrequencyMonthly
	default:
		return FrequencyWeekly
	}
}

// Provider walks its sources in order and returns the first non-empty value.
type Provider struct {
	sources []Source
}

func NewProvider(sources ...Source) *Provider {
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Provider{sources: out}
}

func (p *Provider) lookup(ctx context.Context, key string) (string, error) {
	for _, src := range p.sources {
		value, ok, err := src.Setting(ctx, key)
		if err != nil {
			return "", err
		}
		if ok && strings.TrimSpace(value) != "" {
			return value, nil
		}
	}
	return "", nil
}

// AllowedOrigins returns the parsed allowlist.
func (p *Provider) AllowedOrigins(ctx context.Context) ([]string, error) {
	raw, err := p.lookup(ctx, KeyAllowedOrigins)
	if err != nil {
		return nil, err
	}
	return origin.ParseAllowlist(raw), nil
}

// Backend returns the backend connection settings.
func (p *Provider) Backend(ctx context.Context) (models.BackendConfig, error) {
	var cfg models.BackendConfig
	var err error
	if cfg.BaseURL, err = p.lookup(ctx, KeyBackendBaseURL); err != nil {
		return cfg, err
	}
	if cfg.APIKey, err = p.lookup(ctx, KeyBackendAPIKey); err != nil {
		return cfg, err
	}
	env, err := p.lookup(ctx, KeyBackendEnv)
	if err != nil {
		return cfg, err
	}
	cfg.Environment = models.NormalizeEnvironment(env)
	return cfg, nil
}

// Schedule returns the scheduled check settings.
func (p *Provider) Schedule(ctx context.Context) (Schedule, error) {
	var s Schedule
	enabled, err := p.lookup(ctx, KeyScheduleEnabled)
	if err != nil {
		return s, err
	}
	s.Enabled = parseFlag(enabled)
	frequency, err := p.lookup(ctx, KeyScheduleFrequency)
	if err != nil {
		return s, err
	}
	s.Frequency = NormalizeFrequency(frequency)
	emails, err := p.lookup(ctx, KeyScheduleEmails)
	if err != nil {
		return s, err
	}
	s.Emails = SplitRecipients(emails)
	return s, nil
}

// SplitRecipients parses a comma-separated address list.
func SplitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFlag(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value != "0"
}

// ConfigSource exposes the local config file under setting keys.
type ConfigSource struct {
	cfg *config.Config
}

func NewConfigSource(cfg *config.Config) ConfigSource {
	return ConfigSource{cfg: cfg}
}

func (s ConfigSource) Setting(_ context.Context, key string) (string, bool, error) {
	if s.cfg == nil {
		return "", false, nil
	}
	var value string
	switch key {
	case KeyAllowedOrigins:
		value = strings.Join(s.cfg.AllowedOrigins, ",")
	case KeyBackendBaseURL:
		value = s.cfg.Backend.BaseURL
	case KeyBackendAPIKey:
		value = s.cfg.Backend.APIKey
	case KeyBackendEnv:
		value = s.cfg.Backend.Env
	case KeyScheduleEnabled:
		value = strconv.FormatBool(s.cfg.Schedule.Enabled)
	case KeyScheduleFrequency:
		value = s.cfg.Schedule.Frequency
	case KeyScheduleEmails:
		value = strings.Join(s.cfg.Schedule.Emails, ",")
	default:
		return "", false, nil
	}
	return value, value != "", nil
}
