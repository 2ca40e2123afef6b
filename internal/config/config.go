package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	GoogleClientID string
	GoogleJWKSURL  string

	SessionTokenSecret  string
	SessionTokenTTLDays int

	TeacherSecret string
	Timezone      string

	QRRotationIntervalMs int
	NonceMaxAgeMs        int64
	GeofenceRadiusMeters float64

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		GoogleClientID:         os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleJWKSURL:          envDefault("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),
		SessionTokenSecret:     os.Getenv("SESSION_TOKEN_SECRET"),
		SessionTokenTTLDays:    envIntDefault("SESSION_TOKEN_TTL_DAYS", 30),
		TeacherSecret:          os.Getenv("TEACHER_SECRET"),
		Timezone:               envDefault("TIMEZONE", "Asia/Kolkata"),
		QRRotationIntervalMs:   envIntDefault("QR_ROTATION_INTERVAL_MS", 15000),
		NonceMaxAgeMs:          int64(envIntDefault("NONCE_MAX_AGE_MS", 300000)),
		GeofenceRadiusMeters:   envFloatDefault("GEOFENCE_RADIUS_METERS", 50),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func (c Config) SessionTokenTTL() time.Duration {
	days := c.SessionTokenTTLDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
