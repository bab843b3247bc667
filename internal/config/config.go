package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                 string
	AppEnv                  string
	AppPort                 string
	DatabaseURL             string
	RedisURL                string
	NATSURL                 string
	DBMaxOpenConns          int
	DBMaxIdleConns          int
	DBConnMaxLifetime       time.Duration
	JWTSecret               string
	JWTIssuer               string
	JWTLeeway               time.Duration
	CORSAllowOrigins        string
	DashboardCacheTTL       time.Duration
	AnalyticsCacheTTL       time.Duration
	LeaderboardKey          string
	StreakTimezone          string
	StreakLocation          *time.Location
	StreakFreezeTTL         time.Duration
	NotificationChannelBase string
	SubmitRateLimit         int
	SubmitRateWindow        time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	v.SetDefault("app.name", "GEMA Grading API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("jwt.leeway", "30s")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("dashboard.cache_ttl", "5m")
	v.SetDefault("analytics.cache_ttl", "2m")
	v.SetDefault("leaderboard.key", "streaks:leaderboard")
	v.SetDefault("streak.timezone", "UTC")
	v.SetDefault("streak.freeze_ttl", "720h")
	v.SetDefault("notifications.channel", "gema:grading")
	v.SetDefault("rate_limit.submit_max", 10)
	v.SetDefault("rate_limit.submit_window", "1m")

	ttl, err := parseDuration(v, "dashboard.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	analyticsTTL, err := parseDuration(v, "analytics.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	connLifetime, err := parseDuration(v, "database.conn_max_lifetime")
	if err != nil {
		return Config{}, err
	}
	leeway, err := parseDuration(v, "jwt.leeway")
	if err != nil {
		return Config{}, err
	}
	freezeTTL, err := parseDuration(v, "streak.freeze_ttl")
	if err != nil {
		return Config{}, err
	}
	submitWindow, err := parseDuration(v, "rate_limit.submit_window")
	if err != nil {
		return Config{}, err
	}

	timezone := strings.TrimSpace(v.GetString("streak.timezone"))
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return Config{}, fmt.Errorf("invalid streak timezone %q: %w", timezone, err)
	}

	cfg := Config{
		AppName:                 v.GetString("app.name"),
		AppEnv:                  v.GetString("app.env"),
		AppPort:                 v.GetString("app.port"),
		DatabaseURL:             v.GetString("database.url"),
		RedisURL:                v.GetString("redis.url"),
		NATSURL:                 v.GetString("nats.url"),
		DBMaxOpenConns:          v.GetInt("database.max_open_conns"),
		DBMaxIdleConns:          v.GetInt("database.max_idle_conns"),
		DBConnMaxLifetime:       connLifetime,
		JWTSecret:               v.GetString("jwt.secret"),
		JWTIssuer:               strings.TrimSpace(v.GetString("jwt.issuer")),
		JWTLeeway:               leeway,
		CORSAllowOrigins:        v.GetString("cors.allow_origins"),
		DashboardCacheTTL:       ttl,
		AnalyticsCacheTTL:       analyticsTTL,
		LeaderboardKey:          v.GetString("leaderboard.key"),
		StreakTimezone:          timezone,
		StreakLocation:          location,
		StreakFreezeTTL:         freezeTTL,
		NotificationChannelBase: v.GetString("notifications.channel"),
		SubmitRateLimit:         v.GetInt("rate_limit.submit_max"),
		SubmitRateWindow:        submitWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.SubmitRateLimit <= 0 {
		cfg.SubmitRateLimit = 10
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
