package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AutomationConfig struct {
	Headless        bool
	DryRun          bool
	Debug           bool
	MaxPages        int
	MaxActionsPage  int
	PageTimeout     time.Duration
	ApplyTimeout    time.Duration
	ScreenshotDir   string
	ResumePath      string
	ProfilePath     string
	SiteOverrides   string
	MinDelayPerHost time.Duration
}

type AIConfig struct {
	GeminiAPIKey string
	GeminiModel  string
}

type S3Config struct {
	Bucket string
	Region string
}

type AppConfig struct {
	Port        string
	Database    DatabaseConfig
	Automation  AutomationConfig
	AI          AIConfig
	S3          S3Config
	JWTSecret   string
	JWTTTL      time.Duration
	Environment string
}

func GetDatabaseConfig() DatabaseConfig {
	port, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	password := getEnv("DB_PASSWORD", "")

	if password == "" {
		fmt.Println("Warning: DB_PASSWORD environment variable is not set.")
	}

	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     port,
		User:     getEnv("DB_USER", "postgres"),
		Password: password,
		DBName:   getEnv("DB_NAME", "autoapply"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func GetAutomationConfig() AutomationConfig {
	return AutomationConfig{
		Headless:        getEnvBool("HEADLESS", true),
		DryRun:          getEnvBool("DRY_RUN", false),
		Debug:           getEnvBool("DEBUG", false),
		MaxPages:        getEnvInt("MAX_PAGES_PER_APPLICATION", 15),
		MaxActionsPage:  getEnvInt("MAX_ACTIONS_PER_PAGE", 40),
		PageTimeout:     time.Duration(getEnvInt("PAGE_TIMEOUT_SECONDS", 30)) * time.Second,
		ApplyTimeout:    time.Duration(getEnvInt("APPLY_TIMEOUT_SECONDS", 420)) * time.Second,
		ScreenshotDir:   getEnv("SCREENSHOT_DIR", "screenshots"),
		ResumePath:      getEnv("RESUME_PATH", ""),
		ProfilePath:     getEnv("PROFILE_PATH", "profile.json"),
		SiteOverrides:   getEnv("SITE_OVERRIDES_PATH", "site_overrides.yaml"),
		MinDelayPerHost: time.Duration(getEnvInt("MIN_DELAY_PER_HOST_SECONDS", 8)) * time.Second,
	}
}

func GetAIConfig() AIConfig {
	return AIConfig{
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
	}
}

func GetS3Config() S3Config {
	return S3Config{
		Bucket: getEnv("S3_BUCKET", ""),
		Region: getEnv("AWS_REGION", "us-east-1"),
	}
}

func GetAppConfig() AppConfig {
	return AppConfig{
		Port:        getEnv("PORT", "8081"),
		Database:    GetDatabaseConfig(),
		Automation:  GetAutomationConfig(),
		AI:          GetAIConfig(),
		S3:          GetS3Config(),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTTTL:      time.Duration(getEnvInt("JWT_TTL_HOURS", 24)) * time.Hour,
		Environment: getEnv("ENVIRONMENT", "development"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
