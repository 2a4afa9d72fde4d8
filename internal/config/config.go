package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	DynamoTimeout  time.Duration

	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	RedisTimeout  time.Duration

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration

	OTPTTL               time.Duration
	OTPHashCost          int
	OTPSendLimit         int
	OTPSendWindow        time.Duration
	OTPMaxVerifyAttempts int // 0 disables lockout
	CountryCodes         []string

	SMSProvider   string // "sns" | "http" | "log"
	SMSTimeout    time.Duration
	SMSGatewayURL string
	SMSAuthKey    string
	SMSTemplateID string
	SMSAppHash    string
	SMSSessionID  string
	SNSRegion     string

	ExchangeKeysEnabled   bool
	ExchangeKeyTTL        time.Duration
	APIKeySessionsEnabled bool
	APIKeySessionTTL      time.Duration
	RotateExpiredAPIKeys  bool

	AllowedOrigins    []string // CORS allowed origins
	TrustProxyHeaders bool     // take the client IP from X-Forwarded-For/X-Real-IP
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users      string
	UserPhones string
	OTPs       string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:  getEnv("APP_PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:      getEnv("DYNAMO_TABLE_USERS", "users"),
			UserPhones: getEnv("DYNAMO_TABLE_USER_PHONES", "user_phones"),
			OTPs:       getEnv("DYNAMO_TABLE_OTPS", "otps"),
		},
		DynamoTimeout: getEnvDuration("DYNAMO_TIMEOUT", 5*time.Second),

		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		RedisTimeout:  getEnvDuration("REDIS_TIMEOUT", 3*time.Second),

		AccessTokenSecret:  getEnv("ACCESS_TOKEN_SECRET", ""),
		RefreshTokenSecret: getEnv("REFRESH_TOKEN_SECRET", ""),
		AccessTokenTTL:     getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		OTPTTL:               getEnvDuration("OTP_TTL", 5*time.Minute),
		OTPHashCost:          getEnvInt("OTP_HASH_COST", 10),
		OTPSendLimit:         getEnvInt("OTP_SEND_LIMIT", 5),
		OTPSendWindow:        getEnvDuration("OTP_SEND_WINDOW", 15*time.Minute),
		OTPMaxVerifyAttempts: getEnvInt("OTP_MAX_VERIFY_ATTEMPTS", 0),
		CountryCodes:         getEnvList("SUPPORTED_COUNTRY_CODES", "91"),

		SMSProvider:   getEnv("SMS_PROVIDER", "log"),
		SMSTimeout:    getEnvDuration("SMS_TIMEOUT", 10*time.Second),
		SMSGatewayURL: getEnv("SMS_API_URL", ""),
		SMSAuthKey:    getEnv("SMS_AUTH_KEY", ""),
		SMSTemplateID: getEnv("SMS_TEMPLATE_ID", ""),
		SMSAppHash:    getEnv("SMS_HELLO_APP_HASH", ""),
		SMSSessionID:  getEnv("SMS_PHPSESSID", ""),
		SNSRegion:     getEnv("SNS_REGION", "us-east-1"),

		ExchangeKeysEnabled:   getEnvBool("EXCHANGE_KEYS_ENABLED", true),
		ExchangeKeyTTL:        getEnvDuration("EXCHANGE_KEY_TTL", 15*time.Minute),
		APIKeySessionsEnabled: getEnvBool("API_KEY_SESSIONS_ENABLED", false),
		APIKeySessionTTL:      getEnvDuration("API_KEY_SESSION_TTL", 30*24*time.Hour),
		RotateExpiredAPIKeys:  getEnvBool("ROTATE_EXPIRED_API_KEYS", false),

		AllowedOrigins:    getEnvList("ALLOWED_ORIGINS", "*"),
		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
	}
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	// An expired refresh token can only be rotated while the key that holds it
	// is still stored.
	if c.APIKeySessionsEnabled && c.RotateExpiredAPIKeys && c.APIKeySessionTTL <= c.RefreshTokenTTL {
		return fmt.Errorf("API_KEY_SESSION_TTL (%s) must exceed REFRESH_TOKEN_TTL (%s) when ROTATE_EXPIRED_API_KEYS is set",
			c.APIKeySessionTTL, c.RefreshTokenTTL)
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("15m", "168h").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := strings.Split(getEnv(key, fallback), ",")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
