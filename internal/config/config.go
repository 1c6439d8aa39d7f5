package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/drag"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	ClinicTimezone    string
	BusinessStartHour int
	BusinessEndHour   int
	SlotStepMinutes   int
	LunchStart        string
	LunchEnd          string
	SlotHeightPx      int
	Providers         string

	ScheduleAPIBaseURL string
	ScheduleAPIToken   string
	ScheduleAPITimeout time.Duration
	PollInterval       time.Duration

	DragActivationDelay      time.Duration
	DragActivationDistancePx float64

	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	SnapshotCacheTTL time.Duration

	CORSAllowedOrigins []string
	RefreshRateLimit   float64
	RefreshRateBurst   int

	// Staff login. Empty StaffPassword leaves /api open.
	StaffPassword   string
	StaffJWTSecret  string
	StaffSessionTTL time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ClinicTimezone:    getEnv("CLINIC_TIMEZONE", "Pacific/Honolulu"),
		BusinessStartHour: getEnvAsInt("BUSINESS_START_HOUR", 7),
		BusinessEndHour:   getEnvAsInt("BUSINESS_END_HOUR", 17),
		SlotStepMinutes:   getEnvAsInt("SLOT_STEP_MINUTES", 15),
		LunchStart:        getEnv("LUNCH_START", "12:00"),
		LunchEnd:          getEnv("LUNCH_END", "13:00"),
		SlotHeightPx:      getEnvAsInt("SLOT_HEIGHT_PX", 48),
		Providers:         getEnv("PROVIDERS", "cherie:Cherie,anna-lia:Anna-Lia"),

		ScheduleAPIBaseURL: strings.TrimRight(getEnv("SCHEDULE_API_BASE_URL", ""), "/"),
		ScheduleAPIToken:   getEnv("SCHEDULE_API_TOKEN", ""),
		ScheduleAPITimeout: getEnvAsDuration("SCHEDULE_API_TIMEOUT", 15*time.Second),
		PollInterval:       getEnvAsDuration("POLL_INTERVAL", 15*time.Second),

		DragActivationDelay:      getEnvAsDuration("DRAG_ACTIVATION_DELAY", 200*time.Millisecond),
		DragActivationDistancePx: getEnvAsFloat("DRAG_ACTIVATION_DISTANCE_PX", 8),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		SnapshotCacheTTL: getEnvAsDuration("SNAPSHOT_CACHE_TTL", 24*time.Hour),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RefreshRateLimit:   getEnvAsFloat("REFRESH_RATE_LIMIT", 1),
		RefreshRateBurst:   getEnvAsInt("REFRESH_RATE_BURST", 3),

		StaffPassword:   getEnv("STAFF_PASSWORD", ""),
		StaffJWTSecret:  getEnv("STAFF_JWT_SECRET", ""),
		StaffSessionTTL: getEnvAsDuration("STAFF_SESSION_TTL", 12*time.Hour),
	}
}

// GridConfig builds the slot lattice configuration.
func (c *Config) GridConfig() (timegrid.Config, error) {
	lunchStart, err := timegrid.ParseClock(c.LunchStart)
	if err != nil {
		return timegrid.Config{}, fmt.Errorf("config: LUNCH_START: %w", err)
	}
	lunchEnd, err := timegrid.ParseClock(c.LunchEnd)
	if err != nil {
		return timegrid.Config{}, fmt.Errorf("config: LUNCH_END: %w", err)
	}
	grid := timegrid.Config{
		StartHour:   c.BusinessStartHour,
		EndHour:     c.BusinessEndHour,
		StepMinutes: c.SlotStepMinutes,
		LunchStart:  lunchStart,
		LunchEnd:    lunchEnd,
	}
	if err := grid.Validate(); err != nil {
		return timegrid.Config{}, fmt.Errorf("config: %w", err)
	}
	return grid, nil
}

// ProviderList parses PROVIDERS ("id:Name,id:Name") in display order.
func (c *Config) ProviderList() ([]calendar.Provider, error) {
	providers, err := calendar.ParseProviders(c.Providers)
	if err != nil {
		return nil, fmt.Errorf("config: PROVIDERS: %w", err)
	}
	return providers, nil
}

// DragConfig returns the gesture activation thresholds.
func (c *Config) DragConfig() drag.Config {
	return drag.Config{
		ActivationDelay:    c.DragActivationDelay,
		ActivationDistance: c.DragActivationDistancePx,
		SlotHeightPx:       c.SlotHeightPx,
	}
}

// StaffAuthEnabled reports whether /api requires a session token.
func (c *Config) StaffAuthEnabled() bool {
	return c.StaffPassword != ""
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.ScheduleAPIBaseURL == "" {
		return fmt.Errorf("config: SCHEDULE_API_BASE_URL is required")
	}
	if c.StaffAuthEnabled() && c.StaffJWTSecret == "" {
		return fmt.Errorf("config: STAFF_JWT_SECRET is required when STAFF_PASSWORD is set")
	}
	if _, err := c.GridConfig(); err != nil {
		return err
	}
	if _, err := c.ProviderList(); err != nil {
		return err
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
