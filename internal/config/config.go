package config

import (
	"os"
	"path/filepath"
)

// Config holds the process configuration, sourced from environment
// variables (optionally loaded from a .env file by main).
type Config struct {
	Addr           string // listen address
	BrowserBin     string // browser CLI binary name
	DataDir        string // root for the database and screenshots
	DBPath         string
	ScreenshotsDir string
	NLPBaseURL     string // OpenAI-compatible completion endpoint
	NLPAPIKey      string
	NLPModel       string
	LogMode        string // "dev" or "prod"
}

// Load reads configuration from the environment, applying defaults that
// match a local single-operator deployment.
func Load() Config {
	dataDir := envOr("VIEWER_DATA_DIR", "data")

	return Config{
		Addr:           envOr("VIEWER_ADDR", ":3458"),
		BrowserBin:     envOr("VIEWER_BROWSER_BIN", "agent-browser"),
		DataDir:        dataDir,
		DBPath:         envOr("VIEWER_DB_PATH", filepath.Join(dataDir, "viewer.db")),
		ScreenshotsDir: envOr("VIEWER_SCREENSHOTS_DIR", filepath.Join(dataDir, "screenshots")),
		NLPBaseURL:     envOr("VIEWER_NLP_BASE_URL", "http://localhost:8080/v1"),
		NLPAPIKey:      envOr("VIEWER_NLP_API_KEY", "local"),
		NLPModel:       envOr("VIEWER_NLP_MODEL", "gemini-2.5-flash"),
		LogMode:        envOr("VIEWER_LOG_MODE", "dev"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
