package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the reporting service
type Config struct {
	// Server configuration
	Port      string
	SecretKey string

	// AI configuration
	LLMProvider  string
	GeminiAPIKey string
	GeminiModel  string

	// Mail configuration
	SenderEmail    string
	SenderPassword string
	MailServer     string
	MailPort       int
	MailUseTLS     bool
	SendGridAPIKey string

	// Authority registry
	AuthoritiesFile string
	RegistryWatch   bool

	// Geocoding
	NominatimURL       string
	NominatimUserAgent string
	GeocodeTimeout     time.Duration

	// Image normalization
	MaxImageDimension int
	MaxImagePixels    int
	MaxUploadBytes    int

	// Report events
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:      getEnv("PORT", "5000"),
		SecretKey: getEnv("SECRET_KEY", "dev"),

		LLMProvider: strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		// The Gemini SDK accepts either variable; the first non-empty one wins.
		GeminiAPIKey: firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		SenderEmail:    firstEnv("GMAIL_SENDER", "MAIL_USERNAME"),
		SenderPassword: firstEnv("GMAIL_APP_PASSWORD", "MAIL_PASSWORD"),
		MailServer:     getEnv("MAIL_SERVER", "smtp.gmail.com"),
		MailPort:       getIntEnv("MAIL_PORT", 587),
		MailUseTLS:     getBoolEnv("MAIL_USE_TLS", true),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),

		AuthoritiesFile: getEnv("AUTHORITIES_FILE", "authorities.json"),
		RegistryWatch:   getBoolEnv("REGISTRY_WATCH", false),

		NominatimURL:       getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent: getEnv("NOMINATIM_USER_AGENT", "Sahayak/1.0"),
		GeocodeTimeout:     getDurationEnv("GEOCODE_TIMEOUT", 30*time.Second),

		MaxImageDimension: getIntEnv("MAX_IMAGE_DIMENSION", 1536),
		MaxImagePixels:    getIntEnv("MAX_IMAGE_PIXELS", 50_000_000),
		MaxUploadBytes:    getIntEnv("MAX_UPLOAD_BYTES", 20<<20),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "sahayak"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "report.sent"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// MailTransport names the transport the sender will use.
func (c *Config) MailTransport() string {
	if c.SendGridAPIKey != "" {
		return "sendgrid"
	}
	return "smtp"
}

// HasSenderCredentials reports whether a complaint e-mail can be sent at all.
func (c *Config) HasSenderCredentials() bool {
	if c.SenderEmail == "" {
		return false
	}
	if c.MailTransport() == "sendgrid" {
		return true
	}
	return c.SenderPassword != ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// firstEnv returns the first non-empty value among keys
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv treats true/on/1 (any case) as true
func getBoolEnv(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "on", "1":
		return true
	default:
		return false
	}
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
