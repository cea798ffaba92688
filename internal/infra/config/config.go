package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL     string
	TelegramToken   string // empty: alerts are only logged
	AdminTelegramID int64
	AlertChatID     int64 // defaults to the admin chat
	LogLevel        string
	Environment     string
	Timezone        string

	// Collection schedule
	TickSpec                   string
	DailyCollectionTime        string // HH:MM
	DailyTolerance             time.Duration
	PeriodicInterval           time.Duration
	PeriodicRetry              time.Duration
	ActiveStart                string // HH:MM
	ActiveEnd                  string // HH:MM
	FailureEscalationThreshold int
	StartupCollection          bool
	PlanFreshness              time.Duration
	RecordFreshness            time.Duration

	// Reconciliation thresholds
	MatchTolerance           time.Duration
	MissingGrace             time.Duration
	VolumeVarianceWarn       float64
	VolumeVarianceCritical   float64
	DurationVarianceCritical float64

	// Vendor API
	HydrawiseAPIKey      string
	HydrawiseBaseURL     string
	GeneralRateLimit     int
	GeneralRateWindow    time.Duration
	PrivilegedRateLimit  int
	PrivilegedRateWindow time.Duration
	AdvisoryCap          time.Duration

	// Report drops
	ReportsDir   string
	WatchReports bool
	ZonesFile    string

	HTTPAddr        string
	KafkaBrokers    []string
	KafkaAlertTopic string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
	if adminIDStr == "" && cfg.TelegramToken != "" {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
	}
	if adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}
	if cfg.AlertChatID, err = getInt64("ALERT_CHAT_ID", cfg.AdminTelegramID); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.Timezone = getString("TIMEZONE", "Local")
	cfg.TickSpec = getString("TICK_SPEC", "@every 1m")
	cfg.DailyCollectionTime = getString("DAILY_COLLECTION_TIME", "06:00")
	cfg.ActiveStart = getString("ACTIVE_START", "06:00")
	cfg.ActiveEnd = getString("ACTIVE_END", "22:00")
	cfg.HydrawiseAPIKey = os.Getenv("HYDRAWISE_API_KEY")
	cfg.HydrawiseBaseURL = getString("HYDRAWISE_BASE_URL", "https://api.hydrawise.com/api/v1")
	cfg.ReportsDir = os.Getenv("REPORTS_DIR")
	cfg.ZonesFile = getString("ZONES_FILE", "zones.yaml")
	cfg.HTTPAddr = getString("HTTP_ADDR", ":8080")
	cfg.KafkaAlertTopic = getString("KAFKA_ALERT_TOPIC", "irrigation-alerts")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if cfg.HydrawiseAPIKey == "" && cfg.ReportsDir == "" {
		return nil, fmt.Errorf("neither HYDRAWISE_API_KEY nor REPORTS_DIR is set")
	}

	minutes := []struct {
		key string
		def int
		dst *time.Duration
	}{
		{"DAILY_TOLERANCE_MINUTES", 5, &cfg.DailyTolerance},
		{"PERIODIC_INTERVAL_MINUTES", 30, &cfg.PeriodicInterval},
		{"PERIODIC_RETRY_MINUTES", 5, &cfg.PeriodicRetry},
		{"PLAN_FRESHNESS_MINUTES", 30, &cfg.PlanFreshness},
		{"RECORD_FRESHNESS_MINUTES", 15, &cfg.RecordFreshness},
		{"MATCH_TOLERANCE_MINUTES", 30, &cfg.MatchTolerance},
		{"MISSING_GRACE_MINUTES", 60, &cfg.MissingGrace},
	}
	for _, m := range minutes {
		if *m.dst, err = getDuration(m.key, m.def, time.Minute); err != nil {
			return nil, err
		}
	}
	seconds := []struct {
		key string
		def int
		dst *time.Duration
	}{
		{"GENERAL_RATE_WINDOW_SECONDS", 300, &cfg.GeneralRateWindow},
		{"PRIVILEGED_RATE_WINDOW_SECONDS", 30, &cfg.PrivilegedRateWindow},
		{"ADVISORY_CAP_SECONDS", 10, &cfg.AdvisoryCap},
	}
	for _, s := range seconds {
		if *s.dst, err = getDuration(s.key, s.def, time.Second); err != nil {
			return nil, err
		}
	}

	if cfg.FailureEscalationThreshold, err = getInt("FAILURE_ESCALATION_THRESHOLD", 3); err != nil {
		return nil, err
	}
	if cfg.GeneralRateLimit, err = getInt("GENERAL_RATE_LIMIT", 30); err != nil {
		return nil, err
	}
	if cfg.PrivilegedRateLimit, err = getInt("PRIVILEGED_RATE_LIMIT", 3); err != nil {
		return nil, err
	}
	if cfg.VolumeVarianceWarn, err = getFloat("VOLUME_VARIANCE_WARN", 0.25); err != nil {
		return nil, err
	}
	if cfg.VolumeVarianceCritical, err = getFloat("VOLUME_VARIANCE_CRITICAL", 0.5); err != nil {
		return nil, err
	}
	if cfg.DurationVarianceCritical, err = getFloat("DURATION_VARIANCE_CRITICAL", 0.5); err != nil {
		return nil, err
	}
	if cfg.StartupCollection, err = getBool("STARTUP_COLLECTION", true); err != nil {
		return nil, err
	}
	if cfg.WatchReports, err = getBool("WATCH_REPORTS", true); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location resolves Timezone; "Local" or empty means the host zone.
func (c *AppConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return n, nil
}

func getInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def int, unit time.Duration) (time.Duration, error) {
	n, err := getInt(key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * unit, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
