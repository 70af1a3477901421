package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port         string
	LogLevel     string
	DatabasePath string

	BacktestDataPath string // directory holding .xlsx backtest reports
	ForwardDataPath  string // directory holding the forward-test .csv export
	ReportHTMLPath   string // directory holding MT5 HTML reports and chart images
	NamesFilePath    string // strategy display-name override file

	MaxUploadSizeBytes int64

	// TargetDrawdown is the normalization unit every strategy's merged series
	// is rescaled to. InitialBalance seeds equity-relative percentages.
	TargetDrawdown float64
	InitialBalance float64
}

var Cfg *AppConfig

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found. Relying on OS environment variables and defaults.")
	} else {
		log.Println(".env file loaded successfully.")
	}

	maxUploadSizeBytes := getEnvAsInt64("MAX_UPLOAD_SIZE_BYTES", 10*1024*1024)
	targetDrawdown := getEnvAsFloat("TARGET_DRAWDOWN", 1000)
	if targetDrawdown <= 0 {
		log.Printf("WARNING: TARGET_DRAWDOWN must be positive, got %v. Using default 1000.", targetDrawdown)
		targetDrawdown = 1000
	}
	initialBalance := getEnvAsFloat("INITIAL_BALANCE", 10000)
	if initialBalance <= 0 {
		log.Printf("WARNING: INITIAL_BALANCE must be positive, got %v. Using default 10000.", initialBalance)
		initialBalance = 10000
	}

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabasePath:       getEnv("DATABASE_PATH", "./quantfolio.db"),
		BacktestDataPath:   getEnv("BACKTEST_DATA_PATH", "data/backtest"),
		ForwardDataPath:    getEnv("FORWARD_DATA_PATH", "data/forward"),
		ReportHTMLPath:     getEnv("REPORT_HTML_PATH", "data/backtest/html"),
		NamesFilePath:      getEnv("NAMES_FILE_PATH", "data/names.json"),
		MaxUploadSizeBytes: maxUploadSizeBytes,
		TargetDrawdown:     targetDrawdown,
		InitialBalance:     initialBalance,
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, BacktestDir=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.BacktestDataPath)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid numeric value for %s ('%s'), using default: %v", key, valueStr, fallback)
	return fallback
}
