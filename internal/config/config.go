package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MinJWTSecretLength はJWT署名鍵の最小バイト数。
const MinJWTSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token
	JWTSecret       string
	SessionTokenTTL time.Duration

	// ID
	IDMaxAttempts int

	// Rate Limit（ウィンドウあたりの最大リクエスト数）
	RateLimitVerify       int
	RateLimitVerifyWindow time.Duration
	RateLimitLogin        int
	RateLimitLoginWindow  time.Duration
	RateLimitAPI          int
	RateLimitAPIWindow    time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string // 共有リンクに使うフロントエンドのURL
	TrustProxy bool

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.JWTSecret) < MinJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", MinJWTSecretLength, len(cfg.JWTSecret))
	}

	// Optional fields with defaults
	cfg.SessionTokenTTL = getEnvDuration("SESSION_TOKEN_TTL", 24*time.Hour)
	cfg.IDMaxAttempts = getEnvInt("ID_MAX_ATTEMPTS", 5)
	cfg.RateLimitVerify = getEnvInt("RATE_LIMIT_VERIFY", 10)
	cfg.RateLimitVerifyWindow = getEnvDuration("RATE_LIMIT_VERIFY_WINDOW", 5*time.Minute)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 50)
	cfg.RateLimitLoginWindow = getEnvDuration("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute)
	cfg.RateLimitAPI = getEnvInt("RATE_LIMIT_API", 100)
	cfg.RateLimitAPIWindow = getEnvDuration("RATE_LIMIT_API_WINDOW", 15*time.Minute)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:3000")
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
