package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	AllowedOrigins []string
	AdminJWTSecret string
	Brand          string

	// City lookup service
	CityAPIURL     string
	CityAPIKey     string
	CityFromSource string
	CityCountryID  int
	CityUserType   string
	CityCacheTTL   time.Duration

	// OTP provider
	OTPBaseURL     string
	OTPCountryCode string
	OTPMaxAttempts int
	OTPValidity    time.Duration
	OTPCooldown    time.Duration
	OTPBypass      bool

	// Lead intake
	IntakeURL             string
	IntakeAPIKey          string
	IntakeSource          string
	IntakeCountryID       int
	IntakeRequirementType int

	// Conversation
	IdleReminderDelay time.Duration
	SessionTTL        time.Duration
	HTTPTimeout       time.Duration
	RateLimitRPS      float64
	RateLimitBurst    int

	// Follow-up assistant
	GeminiAPIKey      string
	GeminiModel       string
	ChatHistoryLength int

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	LeadNotifyEmail   string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	LeadEventsQueueURL  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", "*"),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		Brand:          getEnv("BRAND_NAME", "SquareYards"),

		CityAPIURL:     getEnv("CITY_API_URL", "https://beats.squareyards.com/api/SecondaryPortal/getCityList"),
		CityAPIKey:     getEnv("CITY_API_KEY", ""),
		CityFromSource: getEnv("CITY_FROM_SOURCE", "whatsapp"),
		CityCountryID:  getEnvAsInt("CITY_COUNTRY_ID", 1),
		CityUserType:   getEnv("CITY_USER_TYPE", "CP"),
		CityCacheTTL:   getEnvAsDuration("CITY_CACHE_TTL", 24*time.Hour),

		OTPBaseURL:     getEnv("OTP_BASE_URL", "https://apigee.squareyards.com/api/otp"),
		OTPCountryCode: getEnv("OTP_COUNTRY_CODE", "91"),
		OTPMaxAttempts: getEnvAsInt("OTP_MAX_ATTEMPTS", 3),
		OTPValidity:    getEnvAsDuration("OTP_VALIDITY", 5*time.Minute),
		OTPCooldown:    getEnvAsDuration("OTP_RESEND_COOLDOWN", 30*time.Second),
		OTPBypass:      getEnvAsBool("OTP_BYPASS", false),

		IntakeURL:             getEnv("INTAKE_URL", "https://beatsdemo.squareyards.com/api/SecondaryPortal/ownerRegistration"),
		IntakeAPIKey:          getEnv("INTAKE_API_KEY", ""),
		IntakeSource:          getEnv("INTAKE_SOURCE", "WhatsAppChat"),
		IntakeCountryID:       getEnvAsInt("INTAKE_COUNTRY_ID", 1),
		IntakeRequirementType: getEnvAsInt("INTAKE_REQUIREMENT_TYPE", 0),

		IdleReminderDelay: getEnvAsDuration("IDLE_REMINDER_DELAY", 20*time.Second),
		SessionTTL:        getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		HTTPTimeout:       getEnvAsDuration("UPSTREAM_HTTP_TIMEOUT", 10*time.Second),
		RateLimitRPS:      getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:    getEnvAsInt("RATE_LIMIT_BURST", 20),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		ChatHistoryLength: getEnvAsInt("CHAT_HISTORY_LENGTH", 10),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Listing Assistant"),
		LeadNotifyEmail:   getEnv("LEAD_NOTIFY_EMAIL", ""),

		AWSRegion:           getEnv("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		LeadEventsQueueURL:  getEnv("LEAD_EVENTS_QUEUE_URL", ""),
	}
}

// IsProduction reports whether the service runs with production semantics.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// Validate rejects settings that must never reach production.
func (c *Config) Validate() error {
	var errs []error
	if c.IsProduction() {
		if c.OTPBypass {
			errs = append(errs, errors.New("config: OTP_BYPASS cannot be enabled in production"))
		}
		if strings.TrimSpace(c.IntakeAPIKey) == "" {
			errs = append(errs, errors.New("config: INTAKE_API_KEY is required in production"))
		}
	}
	if c.OTPMaxAttempts <= 0 {
		errs = append(errs, errors.New("config: OTP_MAX_ATTEMPTS must be positive"))
	}
	if c.OTPValidity <= 0 {
		errs = append(errs, errors.New("config: OTP_VALIDITY must be positive"))
	}
	return errors.Join(errs...)
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
func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
