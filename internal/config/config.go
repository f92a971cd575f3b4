package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret       string
	JwtTTL          time.Duration
	CaptchaTokenTTL time.Duration

	// Server
	ApiPort        string
	ServiceApiPort string
	CorsOrigin     string

	// Cloudflare
	CloudflareTurnstileSecretKey string
	CloudflareSiteVerifyURL      string

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	AwsEndpoint        string
	ImageBaseS3URL     string
	ImageMaxDimension  int
	ImageThumbSize     int
	ImageMaxSizeMB     int
	ImageMaxCount      int

	// Marketplace rules
	AppName             string
	AppURL              string
	PasswordRegexp      string
	UsernameChangeDays  int
	AdExtendAllowedDays []int
	AdLifetimeDays      int
	ReviewWindowDays    int
	NavCacheTTL         time.Duration
	AdExpirySweepCron   string

	// Logging
	LogLevel string
	LogDev   bool
	LogFile  string

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second

	// Development switches
	MockServices bool
	LogEmails    bool
	EmailLogFile string
}

// env reads variables with defaults and collects the first parse error.
type env struct {
	err error
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func (e *env) required(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok && e.err == nil {
		e.err = fmt.Errorf("missing required environment variable: %s", key)
	}
	return v
}

func (e *env) int(key string, def int) int {
	v, err := strconv.Atoi(e.str(key, strconv.Itoa(def)))
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

func (e *env) seconds(key string, def int) time.Duration {
	return time.Duration(e.int(key, def)) * time.Second
}

func (e *env) bool(key string) bool {
	v := strings.ToLower(e.str(key, ""))
	return v == "1" || v == "true" || v == "yes"
}

// ints parses a comma separated list such as "14,30".
func (e *env) ints(key, def string) []int {
	raw := e.str(key, def)
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			if e.err == nil {
				e.err = fmt.Errorf("invalid %s: %w", key, err)
			}
			return nil
		}
		out = append(out, n)
	}
	return out
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	e := &env{}
	cfg := &Config{
		RunMode: runMode,

		MongoURI:      e.required("MONGO_URI"),
		MongoDbName:   e.str("MONGO_DB_NAME", "marketplace"),
		RedisAddr:     e.str("REDIS_ADDR", "localhost:6379"),
		RedisPassword: e.str("REDIS_PASSWORD", ""),
		RedisDB:       e.int("REDIS_DB", 0),

		JwtSecret:       e.required("JWT_SECRET"),
		JwtTTL:          e.seconds("JWT_TTL_SECONDS", 3600),
		CaptchaTokenTTL: e.seconds("CAPTCHA_TOKEN_TTL", 1200),

		ApiPort:        e.str("API_PORT", "8080"),
		ServiceApiPort: e.str("SERVICE_API_PORT", "12345"),
		CorsOrigin:     e.str("CORS_ORIGIN", "*"),

		CloudflareTurnstileSecretKey: e.str("CLOUDFLARE_TURNSTILE_SECRET_KEY", ""),
		CloudflareSiteVerifyURL:      e.str("CLOUDFLARE_SITEVERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),

		SmtpHost:        e.str("SMTP_HOST", ""),
		SmtpPort:        e.int("SMTP_PORT", 587),
		SmtpUsername:    e.str("SMTP_USERNAME", ""),
		SmtpPassword:    e.str("SMTP_PASSWORD", ""),
		SmtpFromAddress: e.str("SMTP_FROM_ADDRESS", "noreply@example.com"),

		AwsAccessKeyID:     e.str("AWS_ACCESS_KEY_ID", ""),
		AwsSecretAccessKey: e.str("AWS_SECRET_ACCESS_KEY", ""),
		AwsRegion:          e.str("AWS_REGION", ""),
		AwsS3Bucket:        e.str("AWS_S3_BUCKET", ""),
		AwsEndpoint:        e.str("AWS_ENDPOINT_URL", ""),
		ImageBaseS3URL:     e.str("IMAGE_BASE_S3_URL", ""),
		ImageMaxDimension:  e.int("IMAGE_MAX_DIMENSION", 2048),
		ImageThumbSize:     e.int("IMAGE_THUMB_SIZE", 400),
		ImageMaxSizeMB:     e.int("IMAGE_MAX_SIZE_MB", 8),
		ImageMaxCount:      e.int("IMAGE_MAX_COUNT", 15),

		AppName:             e.str("APP_NAME", "Marketplace"),
		AppURL:              strings.TrimRight(e.str("APP_URL", "http://localhost:3000"), "/"),
		PasswordRegexp:      e.str("PASSWORD_REGEXP", "^.{8,}$"),
		UsernameChangeDays:  e.int("USERNAME_CHANGE_DAYS", 30),
		AdExtendAllowedDays: e.ints("AD_EXTEND_ALLOWED_DAYS", "14,30"),
		AdLifetimeDays:      e.int("AD_LIFETIME_DAYS", 30),
		ReviewWindowDays:    e.int("REVIEW_WINDOW_DAYS", 30),
		NavCacheTTL:         e.seconds("NAV_CACHE_TTL_SECONDS", 3600),
		AdExpirySweepCron:   e.str("AD_EXPIRY_SWEEP_CRON", "@every 1h"),

		LogLevel: e.str("LOG_LEVEL", "info"),
		LogDev:   e.bool("LOG_DEV"),
		LogFile:  e.str("LOG_FILE", ""),

		RateLimitSoftBucketSize: e.int("RATE_LIMIT_SOFT_BUCKET_SIZE", 2),
		RateLimitSoftRefillRate: e.int("RATE_LIMIT_SOFT_REFILL_RATE", 1),
		RateLimitHardBucketSize: e.int("RATE_LIMIT_HARD_BUCKET_SIZE", 8),
		RateLimitHardRefillRate: e.int("RATE_LIMIT_HARD_REFILL_RATE", 4),

		MockServices: e.bool("MOCK_SERVICES"),
		LogEmails:    e.bool("LOG_EMAILS"),
		EmailLogFile: e.str("EMAIL_LOG_FILE", "logs/emails.log"),
	}
	if e.err != nil {
		return nil, e.err
	}
	return cfg, nil
}

// Days converts a day count to a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
