package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env               string
	Port              string
	DBURL             string
	AccessTokenSecret string
	FingerprintKey    string

	AccessTokenExpiry      time.Duration
	RefreshTokenExpiry     time.Duration
	MaxActiveRefreshTokens int

	MaxConcurrentSessions    int
	SessionInactivityTimeout time.Duration

	AttemptWindow       time.Duration
	CaptchaThreshold    int
	IPBlockThreshold    int
	EmailBlockThreshold int

	LockoutThreshold int
	LockoutMaxLevel  int

	ResetTokenExpiry       time.Duration
	ResetMaxPerWindow      int
	ResetIssueWindow       time.Duration
	ResetMaxFailedAttempts int
	ResetCooldown          time.Duration

	AttemptRetention time.Duration
	EventRetention   time.Duration
	SweepInterval    time.Duration

	AuditBufferSize int
}

func Load() *Config {
	return &Config{
		Env:               getEnv("ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DBURL:             mustGetEnv("DB_URL"),
		AccessTokenSecret: mustGetEnv("ACCESS_TOKEN_SECRET"),
		FingerprintKey:    mustGetEnv("FINGERPRINT_KEY"),

		AccessTokenExpiry:      minutes(getEnvAsInt("ACCESS_TOKEN_EXPIRY", 1440)),
		RefreshTokenExpiry:     minutes(getEnvAsInt("REFRESH_TOKEN_EXPIRY", 30)),
		MaxActiveRefreshTokens: getEnvAsInt("MAX_ACTIVE_REFRESH_TOKENS", 5),

		MaxConcurrentSessions:    getEnvAsInt("MAX_CONCURRENT_SESSIONS", 3),
		SessionInactivityTimeout: minutes(getEnvAsInt("SESSION_INACTIVITY_TIMEOUT", 15)),

		AttemptWindow:       minutes(getEnvAsInt("LOGIN_ATTEMPT_WINDOW", 15)),
		CaptchaThreshold:    getEnvAsInt("CAPTCHA_THRESHOLD", 3),
		IPBlockThreshold:    getEnvAsInt("IP_BLOCK_THRESHOLD", 5),
		EmailBlockThreshold: getEnvAsInt("EMAIL_BLOCK_THRESHOLD", 3),

		LockoutThreshold: getEnvAsInt("LOCKOUT_THRESHOLD", 3),
		LockoutMaxLevel:  getEnvAsInt("LOCKOUT_MAX_LEVEL", 5),

		ResetTokenExpiry:       minutes(getEnvAsInt("RESET_TOKEN_EXPIRY", 60)),
		ResetMaxPerWindow:      getEnvAsInt("RESET_MAX_PER_WINDOW", 3),
		ResetIssueWindow:       minutes(getEnvAsInt("RESET_ISSUE_WINDOW", 60)),
		ResetMaxFailedAttempts: getEnvAsInt("RESET_MAX_FAILED_ATTEMPTS", 3),
		ResetCooldown:          minutes(getEnvAsInt("RESET_COOLDOWN", 15)),

		AttemptRetention: minutes(getEnvAsInt("ATTEMPT_RETENTION", 60*24*30)),
		EventRetention:   minutes(getEnvAsInt("EVENT_RETENTION", 60*24*90)),
		SweepInterval:    minutes(getEnvAsInt("SWEEP_INTERVAL", 5)),

		AuditBufferSize: getEnvAsInt("AUDIT_BUFFER_SIZE", 256),
	}
}

// Production reports whether the service runs with production hardening
// (reset tokens are then never echoed back to the caller).
func (c *Config) Production() bool {
	return c.Env == "production"
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func mustGetEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Fatalf("Missing required environment variable: %s", key)
	return ""
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %d", key, defaultVal)
		return defaultVal
	}
	return val
}
